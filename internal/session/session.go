package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/dark-chess/internal/engine"
	"github.com/park285/dark-chess/internal/notify"
	"github.com/park285/dark-chess/internal/obslog"
	"github.com/park285/dark-chess/internal/respcache"
)

// Session is one player's handle on a game. It holds no game state; every
// call reads the current record.
type Session struct {
	m     *Manager
	id    string
	color engine.Color
	token string
}

func (s *Session) ID() string          { return s.id }
func (s *Session) Color() engine.Color { return s.color }
func (s *Session) Token() string       { return s.token }

// actor resolves an optional color argument. Players may only act for
// their own color. Naming the opponent's color is refused with
// ErrForeignColor before any rules run; the older game service treated the
// color as a hint and failed later with a figure error instead.
func (s *Session) actor(c engine.Color) (engine.Color, error) {
	if c == "" {
		return s.color, nil
	}
	if !c.Valid() {
		return "", ErrColorRequired
	}
	if c != s.color {
		return "", ErrForeignColor
	}
	return c, nil
}

// MoveResult describes an applied move as seen by the mover. Check
// reports whether the opponent's king is now attacked.
type MoveResult struct {
	Number int                  `json:"number"`
	Move   string               `json:"move"`
	Cut    *engine.Cut          `json:"cut,omitempty"`
	Check  bool                 `json:"check"`
	End    *engine.EndGameError `json:"-"`
	View   engine.View          `json:"board"`
}

// Move plays from-to for color ("" for the session's own color). Rules
// errors are returned unchanged. A move that mates or stalemates succeeds
// and reports the outcome in MoveResult.End. If the mover's clock has run
// out the game is settled as a timeout and the timeout outcome is returned
// as the error.
func (s *Session) Move(ctx context.Context, from, to string, color engine.Color) (*MoveResult, error) {
	color, err := s.actor(color)
	if err != nil {
		return nil, err
	}
	m := s.m
	now := m.now()

	var (
		res       MoveResult
		end       *engine.EndGameError
		timedOut  bool
		domainErr error
	)
	rec, err := m.store.Update(ctx, s.id, func(cur *Record) error {
		res, end, timedOut, domainErr = MoveResult{}, nil, false, nil
		if cur.Ended() {
			domainErr = cur.EndError()
			return domainErr
		}
		if loser, fallen := cur.flagFallen(now); fallen {
			end = timeoutEnd(cur, loser, now)
			timedOut = true
			return nil
		}
		if color != cur.NextTurn() {
			domainErr = ErrWrongTurn
			return domainErr
		}
		g, err := cur.Replay()
		if err != nil {
			return fmt.Errorf("replay game %s: %w", cur.ID, err)
		}
		cutsBefore := len(g.Board().Cuts())
		if err := g.Move(from, to, color); err != nil {
			eg, ok := engine.AsEndGame(err)
			if !ok {
				domainErr = err
				return err
			}
			end = eg
		}
		moves := g.Moves()
		res.Move = moves[len(moves)-1]
		cur.Moves = append(cur.Moves, res.Move)
		cur.chargeClock(color, now)
		cur.UpdatedAt = now
		res.Number = len(cur.Moves)
		if cuts := g.Board().Cuts(); len(cuts) > cutsBefore {
			c := cuts[len(cuts)-1]
			res.Cut = &c
		}
		res.Check = g.InCheck(color.Opponent())
		if end != nil {
			cur.finish(end, now)
			res.View = engine.Reveal(g.Board())
		} else {
			res.View = engine.Project(g.Board(), color)
		}
		return nil
	})
	if err != nil {
		if domainErr != nil && err == domainErr {
			return nil, err
		}
		if errors.Is(err, ErrGameNotFound) || errors.Is(err, ErrConflict) {
			return nil, err
		}
		obslog.L().Error("darkchess_move_persist_error",
			zap.String("game_id", s.id),
			zap.String("color", string(color)),
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err),
		)
		return nil, ErrInternal
	}

	if timedOut {
		m.concluded(ctx, rec, end)
		return nil, end
	}

	obslog.L().Info("darkchess_move",
		zap.String("game_id", s.id),
		zap.String("color", string(color)),
		zap.String("move", res.Move),
		zap.Int("number", res.Number),
		zap.Bool("cut", res.Cut != nil),
	)
	if end != nil {
		res.End = end
		m.concluded(ctx, rec, end)
		return &res, nil
	}
	m.invalidate(ctx, rec)
	m.send(ctx, rec, color.Opponent(), notify.SignalMove, res.Move)
	return &res, nil
}

// DrawAccept records the draw offer of color ("" for the session's own
// color). When the other side already offered, the game ends in a draw and
// true is returned; otherwise the opponent is asked. The offer is written
// inside the game transaction, so a concurrent refusal or end of game
// forces a retry against the new state.
func (s *Session) DrawAccept(ctx context.Context, color engine.Color) (bool, error) {
	color, err := s.actor(color)
	if err != nil {
		return false, err
	}
	m := s.m
	now := m.now()
	end := engine.NewEndGame("", engine.ReasonDraw)
	var (
		done      bool
		domainErr error
	)
	rec, err := m.store.Update(ctx, s.id, func(cur *Record) error {
		done, domainErr = false, nil
		if cur.Ended() {
			domainErr = cur.EndError()
			return domainErr
		}
		if err := m.draws.Offer(ctx, s.id, color, m.drawTTL); err != nil {
			return err
		}
		both, err := m.bothOffered(ctx, s.id)
		if err != nil {
			return err
		}
		if both {
			cur.finish(end, now)
			done = true
			return nil
		}
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		if domainErr != nil && err == domainErr {
			// An offer from an aborted attempt must not outlive the game.
			if cerr := m.draws.Clear(ctx, s.id); cerr != nil {
				obslog.L().Warn("darkchess_draw_clear_error", zap.String("game_id", s.id), zap.Error(cerr))
			}
		}
		return false, txError("darkchess_draw_offer_error", s.id, err, domainErr)
	}
	if done {
		m.concluded(ctx, rec, end)
		return true, nil
	}
	obslog.L().Info("darkchess_draw_offer", zap.String("game_id", s.id), zap.String("color", string(color)))
	m.send(ctx, rec, color.Opponent(), notify.SignalDrawRequest, "")
	return false, nil
}

// DrawRefuse withdraws every pending draw offer of the game.
func (s *Session) DrawRefuse(ctx context.Context, color engine.Color) error {
	color, err := s.actor(color)
	if err != nil {
		return err
	}
	m := s.m
	now := m.now()
	var domainErr error
	_, err = m.store.Update(ctx, s.id, func(cur *Record) error {
		domainErr = nil
		if cur.Ended() {
			domainErr = cur.EndError()
			return domainErr
		}
		if err := m.draws.Clear(ctx, s.id); err != nil {
			return err
		}
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return txError("darkchess_draw_clear_error", s.id, err, domainErr)
	}
	obslog.L().Info("darkchess_draw_refuse", zap.String("game_id", s.id), zap.String("color", string(color)))
	return nil
}

var errNoDraw = errf("no mutual draw offer")

// CheckDraw ends the game in a draw when both colors have a live offer.
// It reports false, without error, for ended games.
func (s *Session) CheckDraw(ctx context.Context) (bool, error) {
	m := s.m
	now := m.now()
	end := engine.NewEndGame("", engine.ReasonDraw)
	rec, err := m.store.Update(ctx, s.id, func(cur *Record) error {
		if cur.Ended() {
			return errSettled
		}
		both, err := m.bothOffered(ctx, s.id)
		if err != nil {
			return err
		}
		if !both {
			return errNoDraw
		}
		cur.finish(end, now)
		return nil
	})
	if errors.Is(err, errSettled) || errors.Is(err, errNoDraw) {
		return false, nil
	}
	if err != nil {
		return false, txError("darkchess_draw_persist_error", s.id, err, nil)
	}
	m.concluded(ctx, rec, end)
	return true, nil
}

func (m *Manager) bothOffered(ctx context.Context, id string) (bool, error) {
	for _, c := range []engine.Color{engine.White, engine.Black} {
		set, err := m.draws.IsSet(ctx, id, c)
		if err != nil || !set {
			return false, err
		}
	}
	return true, nil
}

// Resign ends the game in favour of the opponent of color.
func (s *Session) Resign(ctx context.Context, color engine.Color) error {
	color, err := s.actor(color)
	if err != nil {
		return err
	}
	m := s.m
	now := m.now()
	var (
		end       *engine.EndGameError
		domainErr error
	)
	rec, err := m.store.Update(ctx, s.id, func(cur *Record) error {
		end, domainErr = nil, nil
		if cur.Ended() {
			domainErr = cur.EndError()
			return domainErr
		}
		end = engine.NewEndGame(color.Opponent(), engine.ReasonResign)
		cur.finish(end, now)
		return nil
	})
	if err != nil {
		return txError("darkchess_resign_persist_error", s.id, err, domainErr)
	}
	m.concluded(ctx, rec, end)
	return nil
}

// CheckCastles reports the castling eligibility of the session's color.
func (s *Session) CheckCastles(ctx context.Context) (engine.Castles, error) {
	_, g, err := s.load(ctx)
	if err != nil {
		return engine.Castles{}, err
	}
	return g.CheckCastles(s.color), nil
}

// Moves lists the visible move history: the player's own moves while the
// game runs, every move once it has ended.
func (s *Session) Moves(ctx context.Context) ([]string, error) {
	key := respcache.Key(respcache.HandlerGameMoves, s.token)
	return respcache.Remember(ctx, s.m.cache, key, func() ([]string, error) {
		rec, err := s.m.store.Get(ctx, s.id)
		if err != nil {
			return nil, err
		}
		return visibleMoves(rec, s.color), nil
	})
}

func visibleMoves(rec *Record, c engine.Color) []string {
	if rec.Ended() {
		return append([]string{}, rec.Moves...)
	}
	first := 0
	if c == engine.Black {
		first = 1
	}
	out := []string{}
	for i := first; i < len(rec.Moves); i += 2 {
		out = append(out, rec.Moves[i])
	}
	return out
}

// GetBoard returns the fog-of-war view of the session's color, or the
// whole board once the game has ended.
func (s *Session) GetBoard(ctx context.Context) (engine.View, error) {
	rec, g, err := s.load(ctx)
	if err != nil {
		return engine.View{}, err
	}
	return boardFor(rec, g, s.color), nil
}

func boardFor(rec *Record, g *engine.Game, c engine.Color) engine.View {
	if rec.Ended() {
		v := engine.Reveal(g.Board())
		v.Color = c
		return v
	}
	return engine.Project(g.Board(), c)
}

// Info is the summary of a game for one player.
type Info struct {
	Board    engine.View  `json:"board"`
	Color    engine.Color `json:"color"`
	Opponent string       `json:"opponent"`
	Number   int          `json:"number"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	NextTurn        engine.Color `json:"next_turn,omitempty"`
	Check           bool         `json:"check,omitempty"`
	TimeLeftMs      *int64       `json:"time_left,omitempty"`
	EnemyTimeLeftMs *int64       `json:"enemy_time_left,omitempty"`

	Winner    engine.Color  `json:"winner,omitempty"`
	EndReason engine.Reason `json:"end_reason,omitempty"`
}

// GetInfo returns the player's summary of the game.
func (s *Session) GetInfo(ctx context.Context) (*Info, error) {
	key := respcache.Key(respcache.HandlerGameInfo, s.token)
	return respcache.Remember(ctx, s.m.cache, key, func() (*Info, error) {
		rec, err := s.m.store.Get(ctx, s.id)
		if err != nil {
			return nil, err
		}
		return buildInfo(rec, s.color, s.m.now())
	})
}

func buildInfo(rec *Record, c engine.Color, now time.Time) (*Info, error) {
	g, err := rec.Replay()
	if err != nil {
		return nil, err
	}
	info := &Info{
		Board:     boardFor(rec, g, c),
		Color:     c,
		Opponent:  rec.NameOf(c.Opponent()),
		Number:    len(rec.Moves),
		StartedAt: rec.CreatedAt,
	}
	if rec.Ended() {
		t := *rec.EndedAt
		info.EndedAt = &t
		info.Winner = rec.Winner
		info.EndReason = rec.EndReason
		return info, nil
	}
	info.NextTurn = rec.NextTurn()
	info.Check = g.InCheck(c)
	if left, ok := rec.TimeLeft(c, now); ok {
		ms := left.Milliseconds()
		info.TimeLeftMs = &ms
	}
	if left, ok := rec.TimeLeft(c.Opponent(), now); ok {
		ms := left.Milliseconds()
		info.EnemyTimeLeftMs = &ms
	}
	return info, nil
}

// TimeLeft reports the remaining clock of color ("" for the session's own
// color). The second result is false for games without a time limit.
func (s *Session) TimeLeft(ctx context.Context, color engine.Color) (time.Duration, bool, error) {
	if color == "" {
		color = s.color
	}
	if !color.Valid() {
		return 0, false, ErrColorRequired
	}
	rec, err := s.m.store.Get(ctx, s.id)
	if err != nil {
		return 0, false, err
	}
	left, limited := rec.TimeLeft(color, s.m.now())
	return left, limited, nil
}

// BoardImage renders the player's current view as PNG.
func (s *Session) BoardImage(ctx context.Context) ([]byte, error) {
	v, err := s.GetBoard(ctx)
	if err != nil {
		return nil, err
	}
	return s.m.renderer.RenderPNG(ctx, v, s.color)
}

func (s *Session) load(ctx context.Context) (*Record, *engine.Game, error) {
	rec, err := s.m.store.Get(ctx, s.id)
	if err != nil {
		return nil, nil, err
	}
	g, err := rec.Replay()
	if err != nil {
		return nil, nil, err
	}
	return rec, g, nil
}
