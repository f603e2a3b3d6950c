package engine

import "strings"

// Color identifies a side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Valid() bool { return c == White || c == Black }

// ParseColor accepts "white"/"w" and "black"/"b".
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	}
	return "", false
}

// Square is a cell index 0..63, a1 = 0, h8 = 63.
type Square int8

// NoSquare marks an absent square.
const NoSquare Square = -1

func NewSquare(file, rank int) Square {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return NoSquare
	}
	return Square(rank*8 + file)
}

// ParseSquare reads algebraic notation such as "e4".
func ParseSquare(s string) (Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 {
		return NoSquare, ErrOutOfBoard
	}
	file := int(s[0]) - 'a'
	rank := int(s[1]) - '1'
	sq := NewSquare(file, rank)
	if sq == NoSquare {
		return NoSquare, ErrOutOfBoard
	}
	return sq, nil
}

func (s Square) File() int   { return int(s) % 8 }
func (s Square) Rank() int   { return int(s) / 8 }
func (s Square) Valid() bool { return s >= 0 && s < 64 }

// Offset returns the square shifted by df files and dr ranks, or NoSquare.
func (s Square) Offset(df, dr int) Square {
	if !s.Valid() {
		return NoSquare
	}
	return NewSquare(s.File()+df, s.Rank()+dr)
}

func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

// FormatMove renders a move in the stored "e2-e4" form.
func FormatMove(from, to Square) string { return from.String() + "-" + to.String() }

// ParseMove reads the stored "e2-e4" form.
func ParseMove(s string) (Square, Square, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return NoSquare, NoSquare, ErrWrongMove
	}
	f, err := ParseSquare(from)
	if err != nil {
		return NoSquare, NoSquare, err
	}
	t, err := ParseSquare(to)
	if err != nil {
		return NoSquare, NoSquare, err
	}
	return f, t, nil
}
