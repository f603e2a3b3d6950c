package main

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/dark-chess/internal/engine"
	"github.com/park285/dark-chess/internal/notify"
	"github.com/park285/dark-chess/internal/obslog"
	"github.com/park285/dark-chess/internal/session"
	"github.com/park285/dark-chess/pkg/darkdto"
)

// commands turns player command frames into session calls. Every frame is
// answered with a frame of the same type, or "error".
type commands struct {
	mgr         *session.Manager
	defaultTime session.TimeControl
}

type moveReply struct {
	*session.MoveResult
	End *darkdto.DomainError `json:"end,omitempty"`
}

func (c *commands) Dispatch(ctx context.Context, token string, in notify.Frame) (notify.Frame, bool) {
	out, err := c.handle(ctx, token, in)
	if err != nil {
		if de := darkdto.FromError(err); de.Code == darkdto.CodeInternal {
			obslog.L().Warn("darkchess_command_error", zap.String("t", in.T), zap.Error(err))
		}
		return errorFrame(in.ID, err), true
	}
	f, err := notify.NewFrame(in.T, in.ID, out)
	if err != nil {
		return errorFrame(in.ID, err), true
	}
	return f, true
}

func errorFrame(id string, err error) notify.Frame {
	f, _ := notify.NewFrame(darkdto.TypeError, id, darkdto.FromError(err))
	return f
}

func (c *commands) handle(ctx context.Context, token string, in notify.Frame) (any, error) {
	if in.T == darkdto.TypeNewGame {
		var req darkdto.NewGameRequest
		if err := decode(in.M, &req); err != nil {
			return nil, err
		}
		return c.newGame(ctx, token, req)
	}

	s, err := c.mgr.LoadGame(ctx, token)
	if err != nil {
		return nil, err
	}
	switch in.T {
	case darkdto.TypeMove:
		var req darkdto.MoveRequest
		if err := decode(in.M, &req); err != nil {
			return nil, err
		}
		color, err := parseColor(req.Color)
		if err != nil {
			return nil, err
		}
		res, err := s.Move(ctx, req.From, req.To, color)
		if err != nil {
			return nil, err
		}
		reply := moveReply{MoveResult: res}
		if res.End != nil {
			reply.End = darkdto.FromError(res.End)
		}
		return reply, nil
	case darkdto.TypeDrawAccept, darkdto.TypeDrawRefuse, darkdto.TypeResign, darkdto.TypeTimeLeft:
		var req darkdto.ColorRequest
		if err := decode(in.M, &req); err != nil {
			return nil, err
		}
		color, err := parseColor(req.Color)
		if err != nil {
			return nil, err
		}
		return c.colored(ctx, s, in.T, color)
	case darkdto.TypeCheckDraw:
		ended, err := s.CheckDraw(ctx)
		return darkdto.DrawResponse{Ended: ended}, err
	case darkdto.TypeMoves:
		moves, err := s.Moves(ctx)
		return darkdto.MovesResponse{Moves: moves}, err
	case darkdto.TypeGetBoard:
		return s.GetBoard(ctx)
	case darkdto.TypeGetInfo:
		return s.GetInfo(ctx)
	case darkdto.TypeCheckCastles:
		return s.CheckCastles(ctx)
	case darkdto.TypeBoardImage:
		png, err := s.BoardImage(ctx)
		return darkdto.BoardImageResponse{PNG: png}, err
	}
	return nil, darkdto.DomainError{Code: darkdto.CodeBadRequest, Message: "unknown command " + in.T}
}

func (c *commands) colored(ctx context.Context, s *session.Session, t string, color engine.Color) (any, error) {
	switch t {
	case darkdto.TypeDrawAccept:
		ended, err := s.DrawAccept(ctx, color)
		return darkdto.DrawResponse{Ended: ended}, err
	case darkdto.TypeDrawRefuse:
		return struct{}{}, s.DrawRefuse(ctx, color)
	case darkdto.TypeResign:
		return struct{}{}, s.Resign(ctx, color)
	}
	left, limited, err := s.TimeLeft(ctx, color)
	if color == "" {
		color = s.Color()
	}
	return darkdto.TimeLeftResponse{Color: string(color), Limited: limited, Ms: left.Milliseconds()}, err
}

func (c *commands) newGame(ctx context.Context, token string, req darkdto.NewGameRequest) (any, error) {
	own, err := parseColor(req.Color)
	if err != nil {
		return nil, err
	}
	p := session.NewGameParams{
		WhiteToken: token, BlackToken: req.Opponent,
		WhiteName: req.Name, BlackName: req.OpponentName,
		Time:  c.defaultTime,
		Setup: req.Setup,
	}
	if own == engine.Black {
		p.WhiteToken, p.BlackToken = req.Opponent, token
		p.WhiteName, p.BlackName = req.OpponentName, req.Name
	}
	if strings.TrimSpace(req.TimeControl) != "" {
		tc, err := session.ParseTimeControl(strings.ToLower(strings.TrimSpace(req.TimeControl)), req.Seconds)
		if err != nil {
			return nil, err
		}
		p.Time = tc
	}
	if _, err := c.mgr.NewGame(ctx, p); err != nil {
		return nil, err
	}
	s, err := c.mgr.LoadGame(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.GetInfo(ctx)
}

func parseColor(s string) (engine.Color, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	c, ok := engine.ParseColor(s)
	if !ok {
		return "", session.ErrColorRequired
	}
	return c, nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return darkdto.DomainError{Code: darkdto.CodeBadRequest, Message: "malformed payload"}
	}
	return nil
}
