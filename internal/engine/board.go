package engine

import (
	"fmt"
	"strings"
)

// StartPlacement is the standard initial position in placement notation.
const StartPlacement = "Ra1,Nb1,Bc1,Qd1,Ke1,Bf1,Ng1,Rh1," +
	"Pa2,Pb2,Pc2,Pd2,Pe2,Pf2,Pg2,Ph2," +
	"pa7,pb7,pc7,pd7,pe7,pf7,pg7,ph7," +
	"ra8,nb8,bc8,qd8,ke8,bf8,ng8,rh8"

// Cut records one capture: the kind and color of the captured figure.
type Cut struct {
	Kind  Kind  `json:"kind"`
	Color Color `json:"color"`
}

// Board owns every figure in play together with the capture history.
type Board struct {
	cells   [64]*Figure
	cuts    []Cut
	lastCut *Cut
}

// NewBoard returns the standard initial position.
func NewBoard() *Board {
	b, err := ParseBoard(StartPlacement)
	if err != nil {
		panic(err)
	}
	return b
}

// ParseBoard builds a board from comma separated placement tokens such as
// "Ke1,Ra1,ke8,pe7". Uppercase letters are white, lowercase black; a bare
// square ("e2") is a white pawn.
func ParseBoard(placement string) (*Board, error) {
	b := &Board{}
	kings := map[Color]int{}
	for _, raw := range strings.Split(placement, ",") {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			continue
		}
		kind, color := Pawn, White
		sqText := tok
		if len(tok) == 3 {
			k, ok := kindFromLetter(tok[0])
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrBadSetup, tok)
			}
			kind = k
			if tok[0] >= 'a' && tok[0] <= 'z' {
				color = Black
			}
			sqText = tok[1:]
		} else if len(tok) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrBadSetup, tok)
		}
		sq, err := ParseSquare(sqText)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadSetup, tok)
		}
		if b.cells[sq] != nil {
			return nil, fmt.Errorf("%w: square %s used twice", ErrBadSetup, sq)
		}
		if kind == King {
			kings[color]++
			if kings[color] > 1 {
				return nil, fmt.Errorf("%w: more than one %s king", ErrBadSetup, color)
			}
		}
		b.cells[sq] = &Figure{Kind: kind, Color: color, Square: sq}
	}
	b.initCastling()
	return b, nil
}

func (b *Board) initCastling() {
	for _, c := range []Color{White, Black} {
		k, err := b.GetFigure(c, King)
		if err != nil || k.Square != NewSquare(4, homeRank(c)) {
			continue
		}
		k.castleKingside = b.isHomeRook(c, rookCorner(c, true))
		k.castleQueenside = b.isHomeRook(c, rookCorner(c, false))
	}
}

func (b *Board) isHomeRook(c Color, sq Square) bool {
	f := b.At(sq)
	return f != nil && f.Kind == Rook && f.Color == c
}

func rookCorner(c Color, kingside bool) Square {
	if kingside {
		return NewSquare(7, homeRank(c))
	}
	return NewSquare(0, homeRank(c))
}

// At returns the occupant of sq or nil.
func (b *Board) At(sq Square) *Figure {
	if !sq.Valid() {
		return nil
	}
	return b.cells[sq]
}

// GetFigure returns the live figure of that color and kind. For kinds with
// several figures the one on the lowest square is returned.
func (b *Board) GetFigure(c Color, k Kind) (*Figure, error) {
	for _, f := range b.cells {
		if f != nil && f.Color == c && f.Kind == k {
			return f, nil
		}
	}
	return nil, ErrNotFound
}

// Figures lists the figures of one color ordered by square.
func (b *Board) Figures(c Color) []*Figure {
	var out []*Figure
	for _, f := range b.cells {
		if f != nil && f.Color == c {
			out = append(out, f)
		}
	}
	return out
}

// Cuts returns a copy of the capture history in chronological order.
func (b *Board) Cuts() []Cut { return append([]Cut(nil), b.cuts...) }

// LastCut returns the most recent capture or nil.
func (b *Board) LastCut() *Cut {
	if b.lastCut == nil {
		return nil
	}
	c := *b.lastCut
	return &c
}

// ApplyMove moves the occupant of from to to, recording a capture when an
// enemy figure stood on to. Rules are not checked here.
func (b *Board) ApplyMove(from, to Square) (*Cut, error) {
	if !from.Valid() || !to.Valid() {
		return nil, ErrOutOfBoard
	}
	f := b.cells[from]
	if f == nil {
		return nil, ErrNotFound
	}
	var cut *Cut
	if victim := b.cells[to]; victim != nil {
		if victim.Color == f.Color {
			return nil, ErrCellIsBusy
		}
		c := Cut{Kind: victim.Kind, Color: victim.Color}
		b.cuts = append(b.cuts, c)
		last := c
		b.lastCut = &last
		cut = &c
		victim.Square = NoSquare
	}
	b.cells[from] = nil
	b.cells[to] = f
	f.Square = to
	return cut, nil
}

func (b *Board) pathClear(from, to Square) bool {
	df, dr := sign(to.File()-from.File()), sign(to.Rank()-from.Rank())
	for sq := from.Offset(df, dr); sq.Valid() && sq != to; sq = sq.Offset(df, dr) {
		if b.cells[sq] != nil {
			return false
		}
	}
	return true
}

// attacked reports whether any figure of color by threatens sq.
func (b *Board) attacked(sq Square, by Color) bool {
	for _, f := range b.cells {
		if f != nil && f.Color == by && f.attacks(b, sq) {
			return true
		}
	}
	return false
}

func (b *Board) inCheck(c Color) bool {
	k, err := b.GetFigure(c, King)
	if err != nil {
		return false
	}
	return b.attacked(k.Square, c.Opponent())
}

func (b *Board) canCastle(k *Figure, kingside bool) bool {
	if !k.CanCastle(kingside) || k.Square != NewSquare(4, homeRank(k.Color)) {
		return false
	}
	corner := rookCorner(k.Color, kingside)
	if !b.isHomeRook(k.Color, corner) || !b.pathClear(k.Square, corner) {
		return false
	}
	enemy := k.Color.Opponent()
	step := 1
	if !kingside {
		step = -1
	}
	for i := 0; i <= 2; i++ {
		if b.attacked(k.Square.Offset(i*step, 0), enemy) {
			return false
		}
	}
	return true
}

func (b *Board) clone() *Board {
	nb := &Board{cuts: append([]Cut(nil), b.cuts...)}
	if b.lastCut != nil {
		last := *b.lastCut
		nb.lastCut = &last
	}
	for i, f := range b.cells {
		if f != nil {
			cp := *f
			nb.cells[i] = &cp
		}
	}
	return nb
}

// Placement renders the board back into placement notation.
func (b *Board) Placement() string {
	parts := make([]string, 0, 32)
	for sq, f := range b.cells {
		if f == nil {
			continue
		}
		l := f.Kind.Letter()
		if f.Color == Black {
			l += 'a' - 'A'
		}
		parts = append(parts, string(l)+Square(sq).String())
	}
	return strings.Join(parts, ",")
}

// String draws the board from white's side, for debugging.
func (b *Board) String() string {
	var sb strings.Builder
	for r := 7; r >= 0; r-- {
		for f := 0; f < 8; f++ {
			fig := b.cells[NewSquare(f, r)]
			switch {
			case fig == nil:
				sb.WriteByte('.')
			case fig.Color == Black:
				sb.WriteByte(fig.Kind.Letter() + 'a' - 'A')
			default:
				sb.WriteByte(fig.Kind.Letter())
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

// FEN renders the position in Forsyth-Edwards notation with toMove to play.
// En passant is never available in this variant.
func (b *Board) FEN(toMove Color) string {
	var sb strings.Builder
	for r := 7; r >= 0; r-- {
		empty := 0
		for f := 0; f < 8; f++ {
			fig := b.cells[NewSquare(f, r)]
			if fig == nil {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			l := fig.Kind.Letter()
			if fig.Color == Black {
				l += 'a' - 'A'
			}
			sb.WriteByte(l)
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if r > 0 {
			sb.WriteByte('/')
		}
	}
	side := "w"
	if toMove == Black {
		side = "b"
	}
	castles := ""
	for _, c := range []Color{White, Black} {
		k, err := b.GetFigure(c, King)
		if err != nil {
			continue
		}
		ks, qs := "K", "Q"
		if c == Black {
			ks, qs = "k", "q"
		}
		if k.CanCastle(true) {
			castles += ks
		}
		if k.CanCastle(false) {
			castles += qs
		}
	}
	if castles == "" {
		castles = "-"
	}
	return sb.String() + " " + side + " " + castles + " - 0 1"
}
