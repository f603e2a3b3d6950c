package engine

import (
	"fmt"
	"strings"
)

// Kind is the closed set of figure types.
type Kind uint8

const (
	Pawn Kind = iota + 1
	Knight
	Bishop
	Rook
	Queen
	King
)

func (k Kind) String() string {
	switch k {
	case Pawn:
		return "pawn"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Rook:
		return "rook"
	case Queen:
		return "queen"
	case King:
		return "king"
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown figure kind %q", string(b))
	}
	*k = v
	return nil
}

// Letter is the uppercase placement letter of the kind.
func (k Kind) Letter() byte {
	switch k {
	case Pawn:
		return 'P'
	case Knight:
		return 'N'
	case Bishop:
		return 'B'
	case Rook:
		return 'R'
	case Queen:
		return 'Q'
	case King:
		return 'K'
	}
	return '?'
}

func kindFromLetter(b byte) (Kind, bool) {
	switch b {
	case 'P', 'p':
		return Pawn, true
	case 'N', 'n':
		return Knight, true
	case 'B', 'b':
		return Bishop, true
	case 'R', 'r':
		return Rook, true
	case 'Q', 'q':
		return Queen, true
	case 'K', 'k':
		return King, true
	}
	return 0, false
}

// ParseKind accepts a kind name such as "pawn".
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pawn":
		return Pawn, true
	case "knight":
		return Knight, true
	case "bishop":
		return Bishop, true
	case "rook":
		return Rook, true
	case "queen":
		return Queen, true
	case "king":
		return King, true
	}
	return 0, false
}

// Figure is a piece placed on a Board. Castling flags are only meaningful
// for kings and can only go from true to false.
type Figure struct {
	Kind   Kind
	Color  Color
	Square Square

	castleKingside  bool
	castleQueenside bool
}

// CanCastle reports the stored eligibility for the given side.
func (f *Figure) CanCastle(kingside bool) bool {
	if f == nil || f.Kind != King {
		return false
	}
	if kingside {
		return f.castleKingside
	}
	return f.castleQueenside
}

func (f *Figure) clearCastle(kingside bool) {
	if kingside {
		f.castleKingside = false
	} else {
		f.castleQueenside = false
	}
}

var (
	knightJumps = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
)

func pawnDir(c Color) int {
	if c == White {
		return 1
	}
	return -1
}

func pawnHomeRank(c Color) int {
	if c == White {
		return 1
	}
	return 6
}

func lastRank(c Color) int {
	if c == White {
		return 7
	}
	return 0
}

func homeRank(c Color) int {
	if c == White {
		return 0
	}
	return 7
}

// IsLegalMove checks the geometry of moving f to `to`, including blocking
// figures on the path. Occupancy of the destination by a friendly figure and
// the safety of the own king are checked by Game.
func (f *Figure) IsLegalMove(b *Board, to Square) bool {
	from := f.Square
	if !to.Valid() || !from.Valid() || from == to {
		return false
	}
	df, dr := to.File()-from.File(), to.Rank()-from.Rank()
	switch f.Kind {
	case Pawn:
		dir := pawnDir(f.Color)
		switch {
		case df == 0 && dr == dir:
			return b.At(to) == nil
		case df == 0 && dr == 2*dir && from.Rank() == pawnHomeRank(f.Color):
			return b.At(from.Offset(0, dir)) == nil && b.At(to) == nil
		case abs(df) == 1 && dr == dir:
			return b.At(to) != nil
		}
		return false
	case Knight:
		return (abs(df) == 1 && abs(dr) == 2) || (abs(df) == 2 && abs(dr) == 1)
	case Bishop:
		return abs(df) == abs(dr) && b.pathClear(from, to)
	case Rook:
		return (df == 0 || dr == 0) && b.pathClear(from, to)
	case Queen:
		return (df == 0 || dr == 0 || abs(df) == abs(dr)) && b.pathClear(from, to)
	case King:
		if abs(df) <= 1 && abs(dr) <= 1 {
			return true
		}
		if dr == 0 && abs(df) == 2 {
			return b.canCastle(f, df > 0)
		}
		return false
	}
	return false
}

// attacks reports whether f threatens `to`. It differs from IsLegalMove for
// pawns (diagonals only, regardless of occupancy) and kings (no castling).
func (f *Figure) attacks(b *Board, to Square) bool {
	from := f.Square
	if !to.Valid() || from == to {
		return false
	}
	df, dr := to.File()-from.File(), to.Rank()-from.Rank()
	switch f.Kind {
	case Pawn:
		return abs(df) == 1 && dr == pawnDir(f.Color)
	case King:
		return abs(df) <= 1 && abs(dr) <= 1
	}
	return f.IsLegalMove(b, to)
}

// targets lists every square f could move to by geometry alone.
func (f *Figure) targets(b *Board) []Square {
	var out []Square
	add := func(sq Square) {
		if sq.Valid() && f.IsLegalMove(b, sq) {
			out = append(out, sq)
		}
	}
	from := f.Square
	switch f.Kind {
	case Pawn:
		dir := pawnDir(f.Color)
		add(from.Offset(0, dir))
		add(from.Offset(0, 2*dir))
		add(from.Offset(-1, dir))
		add(from.Offset(1, dir))
	case Knight:
		for _, j := range knightJumps {
			add(from.Offset(j[0], j[1]))
		}
	case King:
		for _, s := range kingSteps {
			add(from.Offset(s[0], s[1]))
		}
		add(from.Offset(2, 0))
		add(from.Offset(-2, 0))
	default:
		for _, s := range kingSteps {
			if f.Kind == Bishop && (s[0] == 0 || s[1] == 0) {
				continue
			}
			if f.Kind == Rook && s[0] != 0 && s[1] != 0 {
				continue
			}
			for sq := from.Offset(s[0], s[1]); sq.Valid(); sq = sq.Offset(s[0], s[1]) {
				out = append(out, sq)
				if b.At(sq) != nil {
					break
				}
			}
		}
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
