// Package darkdto holds the wire shapes exchanged with dark chess clients.
package darkdto

import (
	"errors"

	"github.com/park285/dark-chess/internal/engine"
	"github.com/park285/dark-chess/internal/session"
)

const (
	CodeOutOfBoard   = "out_of_board"
	CodeCellIsBusy   = "cell_is_busy"
	CodeWrongMove    = "wrong_move"
	CodeWrongFigure  = "wrong_figure"
	CodeWrongTurn    = "wrong_turn"
	CodeNotFound     = "not_found"
	CodeGameNotFound = "game_not_found"
	CodeEndGame      = "end_game"
	CodeForeignColor = "foreign_color"
	CodePlaying      = "already_playing"
	CodeBadRequest   = "bad_request"
	CodeConflict     = "conflict"
	CodeInternal     = "internal"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`

	// Outcome and Reason are set for end_game.
	Outcome string `json:"outcome,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "dark chess service error"
}

var codes = []struct {
	err  error
	code string
}{
	// cell_is_busy also matches wrong_move and must come first.
	{engine.ErrCellIsBusy, CodeCellIsBusy},
	{engine.ErrOutOfBoard, CodeOutOfBoard},
	{engine.ErrWrongMove, CodeWrongMove},
	{engine.ErrWrongFigure, CodeWrongFigure},
	{engine.ErrNotFound, CodeNotFound},
	{engine.ErrBadSetup, CodeBadRequest},
	{session.ErrWrongTurn, CodeWrongTurn},
	{session.ErrGameNotFound, CodeGameNotFound},
	{session.ErrForeignColor, CodeForeignColor},
	{session.ErrColorRequired, CodeBadRequest},
	{session.ErrInvalidPlayers, CodeBadRequest},
	{session.ErrAlreadyPlaying, CodePlaying},
	{session.ErrTimeControl, CodeBadRequest},
}

// FromError maps err onto a stable client code. Unknown errors become
// internal without leaking their text.
func FromError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var de DomainError
	if errors.As(err, &de) {
		return &de
	}
	if eg, ok := engine.AsEndGame(err); ok {
		return &DomainError{Code: CodeEndGame, Message: eg.Error(), Outcome: string(eg.Outcome), Reason: string(eg.Reason)}
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return &DomainError{Code: c.code, Message: err.Error()}
		}
	}
	switch {
	case errors.Is(err, session.ErrConflict):
		return &DomainError{Code: CodeConflict, Message: err.Error(), Retryable: true}
	case errors.Is(err, session.ErrInternal):
		return &DomainError{Code: CodeInternal, Message: err.Error(), Retryable: true}
	}
	return &DomainError{Code: CodeInternal, Message: session.ErrInternal.Error(), Retryable: true}
}
