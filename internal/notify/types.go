// Package notify delivers per-player game notifications.
package notify

import (
	"context"
	"encoding/json"
	"errors"
)

// Signal is the kind of event a player is told about.
type Signal string

const (
	SignalStart       Signal = "start"
	SignalMove        Signal = "move"
	SignalDrawRequest Signal = "draw_request"
	SignalDraw        Signal = "draw"
	SignalWin         Signal = "win"
	SignalLose        Signal = "lose"
	SignalTimeoutWin  Signal = "timeout_win"
	SignalTimeoutLose Signal = "timeout_lose"
)

// Message is one notification addressed to a single player token.
type Message struct {
	Signal  Signal `json:"signal"`
	GameID  string `json:"game_id"`
	Text    string `json:"text,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Notifier sends a message to the player identified by token.
type Notifier interface {
	Send(ctx context.Context, token string, msg Message) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, token string, msg Message) error

func (f Func) Send(ctx context.Context, token string, msg Message) error { return f(ctx, token, msg) }

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Send(ctx context.Context, token string, msg Message) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, token, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Frame is the envelope of every WebSocket message in both directions.
type Frame struct {
	T  string          `json:"t"`
	ID string          `json:"id,omitempty"`
	M  json.RawMessage `json:"m,omitempty"`
}

// NewFrame marshals v into the frame payload.
func NewFrame(t, id string, v any) (Frame, error) {
	f := Frame{T: t, ID: id}
	if v == nil {
		return f, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Frame{}, err
	}
	f.M = raw
	return f, nil
}

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

var (
	ErrSlowConsumer = errf("subscriber send buffer full")
	ErrNoToken      = errf("missing player token")
)
