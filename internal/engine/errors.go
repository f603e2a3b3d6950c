package engine

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBoard  = errf("coordinates are out of board")
	ErrWrongMove   = errf("wrong move")
	ErrWrongFigure = errf("you can move only your figures")
	ErrNotFound    = errf("figure not found")
	ErrBadSetup    = errf("invalid placement notation")

	// ErrCellIsBusy is reported when the destination holds a friendly figure.
	// It also matches ErrWrongMove.
	ErrCellIsBusy error = cellBusyErr{}

	ErrEndGame  = errf("game is over")
	ErrWhiteWon = errf("white player won")
	ErrBlackWon = errf("black player won")
	ErrDraw     = errf("draw")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

type cellBusyErr struct{}

func (cellBusyErr) Error() string        { return "you cannot cut your figure" }
func (cellBusyErr) Is(target error) bool { return target == ErrWrongMove }

// Outcome is the result of a finished game.
type Outcome string

const (
	WhiteWon Outcome = "white_won"
	BlackWon Outcome = "black_won"
	Draw     Outcome = "draw"
)

// Reason explains why a game ended.
type Reason string

const (
	ReasonUnknown   Reason = "unknown"
	ReasonCheckmate Reason = "checkmate"
	ReasonStalemate Reason = "stalemate"
	ReasonDraw      Reason = "draw"
	ReasonResign    Reason = "resign"
	ReasonTimeout   Reason = "timeout"
)

// EndGameError signals a terminal outcome. It is returned both when the
// outcome has just happened and on any later mutation of a finished game.
type EndGameError struct {
	Outcome Outcome
	Reason  Reason
	// Figure is the figure that delivered mate, nil for other reasons.
	Figure *Figure
	// Move is the move that ended the game in "e2-e4" form, if any.
	Move string
}

func (e *EndGameError) Error() string {
	var msg string
	switch e.Outcome {
	case WhiteWon:
		msg = ErrWhiteWon.Error()
	case BlackWon:
		msg = ErrBlackWon.Error()
	case Draw:
		msg = ErrDraw.Error()
	default:
		msg = ErrEndGame.Error()
	}
	if e.Reason != "" && e.Reason != ReasonUnknown {
		return fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	return msg
}

func (e *EndGameError) Is(target error) bool {
	switch target {
	case ErrEndGame:
		return true
	case ErrWhiteWon:
		return e.Outcome == WhiteWon
	case ErrBlackWon:
		return e.Outcome == BlackWon
	case ErrDraw:
		return e.Outcome == Draw
	}
	return false
}

// Winner returns the winning color, or "" for a draw.
func (e *EndGameError) Winner() Color {
	switch e.Outcome {
	case WhiteWon:
		return White
	case BlackWon:
		return Black
	}
	return ""
}

// NewEndGame builds the terminal error for a stored result.
func NewEndGame(winner Color, reason Reason) *EndGameError {
	out := Draw
	switch winner {
	case White:
		out = WhiteWon
	case Black:
		out = BlackWon
	}
	if reason == "" {
		reason = ReasonUnknown
	}
	return &EndGameError{Outcome: out, Reason: reason}
}

// AsEndGame unwraps err into an *EndGameError.
func AsEndGame(err error) (*EndGameError, bool) {
	var eg *EndGameError
	if errors.As(err, &eg) {
		return eg, true
	}
	return nil, false
}
