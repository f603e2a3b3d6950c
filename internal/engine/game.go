package engine

// Move is a pseudo move between two squares.
type Move struct {
	From Square
	To   Square
}

func (m Move) String() string { return FormatMove(m.From, m.To) }

// Game applies moves to a board under chess rules. Turn order is owned by
// the caller; Game only needs the mover's color.
type Game struct {
	board *Board
	moves []string
}

// NewGame wraps a board. A nil board means the standard initial position.
func NewGame(b *Board) *Game {
	if b == nil {
		b = NewBoard()
	}
	return &Game{board: b}
}

// Replay rebuilds a game from a placement ("" for the standard position)
// and moves in play order, white first. A terminal outcome on the final
// move is returned together with the game.
func Replay(placement string, moves []string) (*Game, error) {
	b := NewBoard()
	if placement != "" {
		var err error
		if b, err = ParseBoard(placement); err != nil {
			return nil, err
		}
	}
	g := NewGame(b)
	color := White
	for i, mv := range moves {
		from, to, err := ParseMove(mv)
		if err != nil {
			return nil, err
		}
		if err := g.Move(from.String(), to.String(), color); err != nil {
			if _, ok := AsEndGame(err); ok && i == len(moves)-1 {
				return g, err
			}
			return nil, err
		}
		color = color.Opponent()
	}
	return g, nil
}

func (g *Game) Board() *Board { return g.board }

// Moves returns the applied moves in play order.
func (g *Game) Moves() []string { return append([]string(nil), g.moves...) }

// Move validates and applies one move for color. It returns an
// *EndGameError when the move mates or stalemates the opponent.
func (g *Game) Move(from, to string, color Color) error {
	src, err := ParseSquare(from)
	if err != nil {
		return err
	}
	dst, err := ParseSquare(to)
	if err != nil {
		return err
	}
	fig := g.board.At(src)
	if fig == nil {
		return ErrNotFound
	}
	if fig.Color != color {
		return ErrWrongFigure
	}
	if err := g.validate(fig, dst); err != nil {
		return err
	}

	g.apply(fig, dst)
	notation := FormatMove(src, dst)
	g.moves = append(g.moves, notation)

	enemy := color.Opponent()
	if len(g.LegalMoves(enemy)) > 0 {
		return nil
	}
	if g.board.inCheck(enemy) {
		out := WhiteWon
		if color == Black {
			out = BlackWon
		}
		return &EndGameError{Outcome: out, Reason: ReasonCheckmate, Figure: fig, Move: notation}
	}
	return &EndGameError{Outcome: Draw, Reason: ReasonStalemate, Move: notation}
}

func (g *Game) validate(fig *Figure, dst Square) error {
	if !fig.IsLegalMove(g.board, dst) {
		return ErrWrongMove
	}
	if occ := g.board.At(dst); occ != nil && occ.Color == fig.Color {
		return ErrCellIsBusy
	}
	trial := g.board.clone()
	trialGame := &Game{board: trial}
	trialGame.apply(trial.At(fig.Square), dst)
	if trial.inCheck(fig.Color) {
		return ErrWrongMove
	}
	return nil
}

// apply performs an already validated move including castling, promotion
// and castling eligibility updates.
func (g *Game) apply(fig *Figure, dst Square) {
	b := g.board
	src := fig.Square
	castle := fig.Kind == King && abs(dst.File()-src.File()) == 2

	if victim := b.At(dst); victim != nil && victim.Kind == Rook {
		for _, kingside := range []bool{true, false} {
			if dst == rookCorner(victim.Color, kingside) {
				if k, err := b.GetFigure(victim.Color, King); err == nil {
					k.clearCastle(kingside)
				}
			}
		}
	}
	_, _ = b.ApplyMove(src, dst)

	if castle {
		kingside := dst.File() > src.File()
		corner := rookCorner(fig.Color, kingside)
		rookTo := src.Offset(1, 0)
		if !kingside {
			rookTo = src.Offset(-1, 0)
		}
		_, _ = b.ApplyMove(corner, rookTo)
	}

	switch fig.Kind {
	case King:
		fig.clearCastle(true)
		fig.clearCastle(false)
	case Rook:
		if k, err := b.GetFigure(fig.Color, King); err == nil {
			for _, kingside := range []bool{true, false} {
				if src == rookCorner(fig.Color, kingside) {
					k.clearCastle(kingside)
				}
			}
		}
	case Pawn:
		if dst.Rank() == lastRank(fig.Color) {
			fig.Kind = Queen
		}
	}
}

// LegalMoves lists every fully legal move of color.
func (g *Game) LegalMoves(color Color) []Move {
	var out []Move
	for _, f := range g.board.Figures(color) {
		for _, dst := range f.targets(g.board) {
			if g.validate(f, dst) == nil {
				out = append(out, Move{From: f.Square, To: dst})
			}
		}
	}
	return out
}

// InCheck reports whether color's king is attacked.
func (g *Game) InCheck(color Color) bool { return g.board.inCheck(color) }

// Castles is the castling eligibility of one side.
type Castles struct {
	Kingside  bool `json:"kingside"`
	Queenside bool `json:"queenside"`
}

// CheckCastles reads the eligibility flags kept on color's king. The flags
// are maintained by every applied move; reading them has no side effects.
func (g *Game) CheckCastles(color Color) Castles {
	k, err := g.board.GetFigure(color, King)
	if err != nil {
		return Castles{}
	}
	return Castles{Kingside: k.CanCastle(true), Queenside: k.CanCastle(false)}
}
