package engine

// Cell is one occupied square as seen by a player.
type Cell struct {
	Square string `json:"square"`
	Kind   Kind   `json:"kind"`
	Color  Color  `json:"color"`
}

// View is the part of the board one color may observe. Squares absent from
// Visible are unknown to that color.
type View struct {
	Color   Color    `json:"color,omitempty"`
	Cells   []Cell   `json:"cells"`
	Visible []string `json:"visible"`
	Cuts    []Cut    `json:"cuts"`
	LastCut *Cut     `json:"last_cut,omitempty"`
}

// IsVisible reports whether sq is observable in the view.
func (v View) IsVisible(sq string) bool {
	for _, s := range v.Visible {
		if s == sq {
			return true
		}
	}
	return false
}

// Project computes the fog-of-war view of b for color: every own figure, plus
// enemy figures standing on a square some own figure could move to or capture.
// The view is derived from the current board on each call.
func Project(b *Board, color Color) View {
	var seen [64]bool
	for _, f := range b.Figures(color) {
		seen[f.Square] = true
		for _, sq := range f.targets(b) {
			seen[sq] = true
		}
		if f.Kind == Pawn {
			// empty capture diagonals are threatened too
			for _, df := range []int{-1, 1} {
				if sq := f.Square.Offset(df, pawnDir(color)); sq.Valid() {
					seen[sq] = true
				}
			}
		}
	}
	v := View{Color: color, Cells: []Cell{}, Visible: []string{}, Cuts: b.Cuts(), LastCut: b.LastCut()}
	for i := range b.cells {
		if !seen[i] {
			continue
		}
		sq := Square(i)
		v.Visible = append(v.Visible, sq.String())
		if f := b.cells[i]; f != nil {
			v.Cells = append(v.Cells, Cell{Square: sq.String(), Kind: f.Kind, Color: f.Color})
		}
	}
	return v
}

// Reveal returns the whole board, used once a game is over.
func Reveal(b *Board) View {
	v := View{Cells: []Cell{}, Visible: make([]string, 0, 64), Cuts: b.Cuts(), LastCut: b.LastCut()}
	for i, f := range b.cells {
		sq := Square(i)
		v.Visible = append(v.Visible, sq.String())
		if f != nil {
			v.Cells = append(v.Cells, Cell{Square: sq.String(), Kind: f.Kind, Color: f.Color})
		}
	}
	return v
}
