package session

import (
	"time"

	"github.com/park285/dark-chess/internal/engine"
)

// DefaultName is shown for players who did not set a display name.
const DefaultName = "anonymous"

type TimeKind string

const (
	TimeNoLimit TimeKind = "nolimit"
	TimeLimit   TimeKind = "limit"
)

// TimeControl is a per-side countdown in seconds, or no limit at all.
type TimeControl struct {
	Kind    TimeKind `json:"kind"`
	Seconds int      `json:"seconds,omitempty"`
}

func ParseTimeControl(kind string, seconds int) (TimeControl, error) {
	switch TimeKind(kind) {
	case "", TimeNoLimit:
		return TimeControl{Kind: TimeNoLimit}, nil
	case TimeLimit:
		if seconds <= 0 {
			return TimeControl{}, ErrTimeControl
		}
		return TimeControl{Kind: TimeLimit, Seconds: seconds}, nil
	}
	return TimeControl{}, ErrTimeControl
}

// Record is the persisted state of one game. Moves is the single source of
// truth for the board; it is replayed on every load.
type Record struct {
	ID         string `json:"id"`
	WhiteToken string `json:"white_token"`
	BlackToken string `json:"black_token"`
	WhiteName  string `json:"white_name"`
	BlackName  string `json:"black_name"`

	Setup string   `json:"setup,omitempty"`
	Moves []string `json:"moves"`

	Time        TimeControl `json:"time"`
	WhiteLeftMs int64       `json:"white_left_ms,omitempty"`
	BlackLeftMs int64       `json:"black_left_ms,omitempty"`
	// TurnStartedAt is when the clock of the side to move started running.
	TurnStartedAt time.Time `json:"turn_started_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
	Outcome   engine.Outcome `json:"outcome,omitempty"`
	EndReason engine.Reason  `json:"end_reason,omitempty"`
	Winner    engine.Color   `json:"winner,omitempty"`

	// Rev counts committed updates.
	Rev int64 `json:"rev"`
}

func (r *Record) Ended() bool { return r.EndedAt != nil }

// NextTurn is the color to move; white moves on even counts.
func (r *Record) NextTurn() engine.Color {
	if len(r.Moves)%2 == 0 {
		return engine.White
	}
	return engine.Black
}

func (r *Record) ColorOf(token string) (engine.Color, bool) {
	switch token {
	case "":
		return "", false
	case r.WhiteToken:
		return engine.White, true
	case r.BlackToken:
		return engine.Black, true
	}
	return "", false
}

func (r *Record) TokenOf(c engine.Color) string {
	if c == engine.Black {
		return r.BlackToken
	}
	return r.WhiteToken
}

func (r *Record) NameOf(c engine.Color) string {
	name := r.WhiteName
	if c == engine.Black {
		name = r.BlackName
	}
	if name == "" {
		return DefaultName
	}
	return name
}

// TimeLeft reports the remaining clock of c at now. The second result is
// false for games without a time limit.
func (r *Record) TimeLeft(c engine.Color, now time.Time) (time.Duration, bool) {
	if r.Time.Kind != TimeLimit {
		return 0, false
	}
	left := time.Duration(r.WhiteLeftMs) * time.Millisecond
	if c == engine.Black {
		left = time.Duration(r.BlackLeftMs) * time.Millisecond
	}
	if !r.Ended() && c == r.NextTurn() {
		left -= now.Sub(r.TurnStartedAt)
	}
	if left < 0 {
		left = 0
	}
	return left, true
}

// flagFallen reports the color whose clock ran out. Only the side to move
// has a running clock.
func (r *Record) flagFallen(now time.Time) (engine.Color, bool) {
	if r.Ended() {
		return "", false
	}
	c := r.NextTurn()
	if left, limited := r.TimeLeft(c, now); limited && left <= 0 {
		return c, true
	}
	return "", false
}

// chargeClock charges the mover for the time spent and starts the clock of
// the other side.
func (r *Record) chargeClock(mover engine.Color, now time.Time) {
	if r.Time.Kind == TimeLimit {
		spent := now.Sub(r.TurnStartedAt).Milliseconds()
		if mover == engine.White {
			r.WhiteLeftMs = max(r.WhiteLeftMs-spent, 0)
		} else {
			r.BlackLeftMs = max(r.BlackLeftMs-spent, 0)
		}
	}
	r.TurnStartedAt = now
}

func (r *Record) finish(end *engine.EndGameError, now time.Time) {
	t := now
	r.EndedAt = &t
	r.Outcome = end.Outcome
	r.EndReason = end.Reason
	r.Winner = end.Winner()
	r.UpdatedAt = now
}

// EndError rebuilds the terminal outcome of an ended record.
func (r *Record) EndError() *engine.EndGameError {
	if !r.Ended() {
		return nil
	}
	return &engine.EndGameError{Outcome: r.Outcome, Reason: r.EndReason}
}

// Replay rebuilds the live rules engine from the recorded moves.
func (r *Record) Replay() (*engine.Game, error) {
	g, err := engine.Replay(r.Setup, r.Moves)
	if _, ok := engine.AsEndGame(err); ok {
		return g, nil
	}
	return g, err
}
