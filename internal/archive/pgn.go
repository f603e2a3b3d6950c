package archive

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/dark-chess/internal/engine"
)

func resultToPGN(o engine.Outcome) string {
	switch o {
	case engine.WhiteWon:
		return "1-0"
	case engine.BlackWon:
		return "0-1"
	case engine.Draw:
		return "1/2-1/2"
	}
	return "*"
}

// SAN converts coordinate moves ("e2-e4") into standard algebraic notation,
// starting from setup ("" for the initial position). Promotions are always
// to a queen.
func SAN(setup string, moves []string) ([]string, error) {
	var opts []func(*nchess.Game)
	if strings.TrimSpace(setup) != "" {
		b, err := engine.ParseBoard(setup)
		if err != nil {
			return nil, err
		}
		fen, err := nchess.FEN(b.FEN(engine.White))
		if err != nil {
			return nil, fmt.Errorf("setup fen: %w", err)
		}
		opts = append(opts, fen)
	}
	game := nchess.NewGame(opts...)
	san := make([]string, 0, len(moves))
	for i, mv := range moves {
		raw := strings.ReplaceAll(strings.TrimSpace(mv), "-", "")
		s, err := push(game, raw)
		if err != nil {
			if s, err = push(game, raw+"q"); err != nil {
				return nil, fmt.Errorf("move %d %q: %w", i+1, mv, err)
			}
		}
		san = append(san, s)
	}
	return san, nil
}

func push(game *nchess.Game, uci string) (string, error) {
	pos := game.Position()
	m, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return "", err
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, m)
	if err := game.Move(m, nil); err != nil {
		return "", err
	}
	return san, nil
}

// BuildPGN renders g as PGN text. Moves that cannot be converted to SAN are
// kept in coordinate form.
func BuildPGN(g *Game) string {
	if g == nil {
		return ""
	}
	result := resultToPGN(g.Outcome)
	moves, err := SAN(g.Setup, g.Moves)
	if err != nil {
		moves = g.Moves
	}

	var b strings.Builder
	date := g.EndedAt
	fmt.Fprintf(&b, "[Event \"Dark chess\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(g.WhiteName))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(g.BlackName))
	if strings.TrimSpace(g.Setup) != "" {
		if board, perr := engine.ParseBoard(g.Setup); perr == nil {
			fmt.Fprintf(&b, "[SetUp \"1\"]\n[FEN \"%s\"]\n", board.FEN(engine.White))
		}
	}
	if g.TimeControl != "" {
		fmt.Fprintf(&b, "[TimeControl \"%s\"]\n", sanitizePGN(g.TimeControl))
	}
	if g.Reason != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(string(g.Reason)))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", result)

	for i := 0; i < len(moves); i += 2 {
		fmt.Fprintf(&b, "%d. %s ", i/2+1, moves[i])
		if i+1 < len(moves) {
			b.WriteString(moves[i+1])
			b.WriteByte(' ')
		}
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
