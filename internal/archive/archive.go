// Package archive stores finished games for later review.
package archive

import (
	"context"
	"time"

	"github.com/park285/dark-chess/internal/engine"
)

// Game is the archived summary of one finished game.
type Game struct {
	ID          string
	WhiteToken  string
	WhiteName   string
	BlackToken  string
	BlackName   string
	Setup       string
	Moves       []string
	TimeControl string
	Outcome     engine.Outcome
	Reason      engine.Reason
	StartedAt   time.Time
	EndedAt     time.Time
}

type Repository interface {
	Save(ctx context.Context, g *Game) error
	Get(ctx context.Context, id string) (*Game, error)
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

const ErrNotFound = staticErr("archived game not found")
