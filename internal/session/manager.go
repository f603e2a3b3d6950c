// Package session runs dark chess games between two player tokens on top of
// the rules engine: turn order, clocks, draw offers, resignation, cached
// per-player views and notifications.
package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/dark-chess/internal/archive"
	"github.com/park285/dark-chess/internal/engine"
	"github.com/park285/dark-chess/internal/notify"
	"github.com/park285/dark-chess/internal/obslog"
	"github.com/park285/dark-chess/internal/render"
	"github.com/park285/dark-chess/internal/respcache"
)

// Texts renders player-facing notification texts by key.
type Texts interface {
	Render(key string, data any) (string, error)
}

// BoardRenderer draws a board view as PNG.
type BoardRenderer interface {
	RenderPNG(ctx context.Context, v engine.View, orientation engine.Color) ([]byte, error)
}

type Manager struct {
	store    RecordStore
	draws    DrawFlags
	cache    respcache.Cache
	notifier notify.Notifier
	texts    Texts
	archive  archive.Repository
	renderer BoardRenderer

	drawTTL time.Duration
	now     func() time.Time
	newID   func() string
}

type Option func(*Manager)

func WithCache(c respcache.Cache) Option       { return func(m *Manager) { m.cache = c } }
func WithNotifier(n notify.Notifier) Option    { return func(m *Manager) { m.notifier = n } }
func WithTexts(t Texts) Option                 { return func(m *Manager) { m.texts = t } }
func WithArchive(r archive.Repository) Option  { return func(m *Manager) { m.archive = r } }
func WithRenderer(r BoardRenderer) Option      { return func(m *Manager) { m.renderer = r } }
func WithDrawTTL(d time.Duration) Option       { return func(m *Manager) { m.drawTTL = d } }
func WithClock(now func() time.Time) Option    { return func(m *Manager) { m.now = now } }
func WithIDGenerator(gen func() string) Option { return func(m *Manager) { m.newID = gen } }

func NewManager(store RecordStore, draws DrawFlags, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		draws:    draws,
		cache:    respcache.Nop{},
		renderer: render.New(),
		drawTTL:  120 * time.Second,
		now:      time.Now,
		newID:    func() string { return "dc-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type NewGameParams struct {
	WhiteToken string
	BlackToken string
	WhiteName  string
	BlackName  string
	Time       TimeControl
	// Setup is an optional placement; empty means the standard position.
	Setup string
}

// NewGame creates a game, points both tokens at it and notifies both
// players. The returned session acts for white. A token still bound to a
// running game fails with ErrAlreadyPlaying.
func (m *Manager) NewGame(ctx context.Context, p NewGameParams) (*Session, error) {
	white, black := strings.TrimSpace(p.WhiteToken), strings.TrimSpace(p.BlackToken)
	if white == "" || black == "" || white == black {
		return nil, ErrInvalidPlayers
	}
	tc, err := ParseTimeControl(string(p.Time.Kind), p.Time.Seconds)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Setup) != "" {
		if _, err := engine.ParseBoard(p.Setup); err != nil {
			return nil, err
		}
	}

	now := m.now()
	rec := &Record{
		ID:            m.newID(),
		WhiteToken:    white,
		BlackToken:    black,
		WhiteName:     strings.TrimSpace(p.WhiteName),
		BlackName:     strings.TrimSpace(p.BlackName),
		Setup:         strings.TrimSpace(p.Setup),
		Moves:         []string{},
		Time:          tc,
		TurnStartedAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if tc.Kind == TimeLimit {
		rec.WhiteLeftMs = int64(tc.Seconds) * 1000
		rec.BlackLeftMs = int64(tc.Seconds) * 1000
	}
	if err := m.store.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrAlreadyPlaying) || errors.Is(err, ErrConflict) {
			return nil, err
		}
		obslog.L().Error("darkchess_game_create_error", zap.String("game_id", rec.ID), zap.Error(err))
		return nil, ErrInternal
	}
	m.invalidate(ctx, rec)

	obslog.L().Info("darkchess_game_create",
		zap.String("game_id", rec.ID),
		zap.String("time_control", string(tc.Kind)),
		zap.Int("seconds", tc.Seconds),
		zap.Bool("setup", rec.Setup != ""),
	)
	m.notifyBoth(ctx, rec, notify.SignalStart, notify.SignalStart, "")
	return &Session{m: m, id: rec.ID, color: engine.White, token: white}, nil
}

// LoadGame resolves the game of token. A clock that ran out since the last
// action is settled as a timeout before the session is returned.
func (m *Manager) LoadGame(ctx context.Context, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	id, err := m.store.GameIDByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	color, ok := rec.ColorOf(token)
	if !ok {
		return nil, ErrGameNotFound
	}
	if _, fallen := rec.flagFallen(m.now()); fallen {
		if _, err := m.settleTimeout(ctx, id); err != nil {
			return nil, err
		}
	}
	return &Session{m: m, id: id, color: color, token: token}, nil
}

var errSettled = errf("game already settled")

// settleTimeout ends the game if the clock of the side to move is out. It
// returns nil when another caller got there first.
func (m *Manager) settleTimeout(ctx context.Context, id string) (*engine.EndGameError, error) {
	now := m.now()
	var end *engine.EndGameError
	rec, err := m.store.Update(ctx, id, func(cur *Record) error {
		end = nil
		loser, fallen := cur.flagFallen(now)
		if !fallen {
			return errSettled
		}
		end = timeoutEnd(cur, loser, now)
		return nil
	})
	if errors.Is(err, errSettled) {
		return nil, nil
	}
	if err != nil {
		return nil, txError("darkchess_timeout_persist_error", id, err, nil)
	}
	m.concluded(ctx, rec, end)
	return end, nil
}

// txError maps a failed Update for callers. Domain and lookup errors and
// ErrConflict pass through; anything else is logged and hidden.
func txError(event, id string, err, domainErr error) error {
	if (domainErr != nil && err == domainErr) || errors.Is(err, ErrGameNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	obslog.L().Error(event, zap.String("game_id", id), zap.Error(err))
	return ErrInternal
}

func timeoutEnd(cur *Record, loser engine.Color, now time.Time) *engine.EndGameError {
	if loser == engine.White {
		cur.WhiteLeftMs = 0
	} else {
		cur.BlackLeftMs = 0
	}
	end := engine.NewEndGame(loser.Opponent(), engine.ReasonTimeout)
	cur.finish(end, now)
	return end
}

// concluded runs the side effects of a committed end of game.
func (m *Manager) concluded(ctx context.Context, rec *Record, end *engine.EndGameError) {
	if err := m.draws.Clear(ctx, rec.ID); err != nil {
		obslog.L().Warn("darkchess_draw_clear_error", zap.String("game_id", rec.ID), zap.Error(err))
	}
	m.invalidate(ctx, rec)

	winner := end.Winner()
	switch {
	case end.Reason == engine.ReasonTimeout:
		obslog.L().Info("darkchess_timeout", zap.String("game_id", rec.ID), zap.String("winner", string(winner)))
		m.notifyBoth(ctx, rec, signalFor(engine.White, winner, notify.SignalTimeoutWin, notify.SignalTimeoutLose),
			signalFor(engine.Black, winner, notify.SignalTimeoutWin, notify.SignalTimeoutLose), "")
	case end.Reason == engine.ReasonResign:
		obslog.L().Info("darkchess_resign", zap.String("game_id", rec.ID), zap.String("winner", string(winner)))
		m.send(ctx, rec, winner, notify.SignalWin, "")
	case winner == "":
		obslog.L().Info("darkchess_draw", zap.String("game_id", rec.ID), zap.String("reason", string(end.Reason)))
		m.notifyBoth(ctx, rec, notify.SignalDraw, notify.SignalDraw, "")
	default:
		obslog.L().Info("darkchess_game_end", zap.String("game_id", rec.ID),
			zap.String("winner", string(winner)), zap.String("reason", string(end.Reason)))
		m.send(ctx, rec, winner.Opponent(), notify.SignalLose, end.Move)
		m.send(ctx, rec, winner, notify.SignalWin, end.Move)
	}
	m.archiveGame(ctx, rec)
}

func signalFor(c, winner engine.Color, win, lose notify.Signal) notify.Signal {
	if c == winner {
		return win
	}
	return lose
}

func (m *Manager) archiveGame(ctx context.Context, rec *Record) {
	if m.archive == nil || !rec.Ended() {
		return
	}
	tc := string(rec.Time.Kind)
	if rec.Time.Kind == TimeLimit {
		tc = strconv.Itoa(rec.Time.Seconds)
	}
	g := &archive.Game{
		ID:          rec.ID,
		WhiteToken:  rec.WhiteToken,
		WhiteName:   rec.NameOf(engine.White),
		BlackToken:  rec.BlackToken,
		BlackName:   rec.NameOf(engine.Black),
		Setup:       rec.Setup,
		Moves:       append([]string(nil), rec.Moves...),
		TimeControl: tc,
		Outcome:     rec.Outcome,
		Reason:      rec.EndReason,
		StartedAt:   rec.CreatedAt,
		EndedAt:     *rec.EndedAt,
	}
	if err := m.archive.Save(ctx, g); err != nil {
		obslog.L().Error("darkchess_archive_error", zap.String("game_id", rec.ID), zap.Error(err))
	}
}

// invalidate drops the cached views of both players.
func (m *Manager) invalidate(ctx context.Context, rec *Record) {
	keys := make([]string, 0, 4)
	for _, tok := range []string{rec.WhiteToken, rec.BlackToken} {
		keys = append(keys, respcache.Key(respcache.HandlerGameInfo, tok), respcache.Key(respcache.HandlerGameMoves, tok))
	}
	if err := m.cache.Invalidate(ctx, keys...); err != nil {
		obslog.L().Warn("darkchess_cache_invalidate_error", zap.String("game_id", rec.ID), zap.Error(err))
	}
}

type textData struct {
	Color    string
	Opponent string
	Reason   string
	Move     string
	Number   int
}

func (m *Manager) notifyBoth(ctx context.Context, rec *Record, white, black notify.Signal, move string) {
	m.send(ctx, rec, engine.White, white, move)
	m.send(ctx, rec, engine.Black, black, move)
}

// send notifies the player of color c. Delivery is best effort; failures
// are only logged.
func (m *Manager) send(ctx context.Context, rec *Record, c engine.Color, sig notify.Signal, move string) {
	if m.notifier == nil {
		return
	}
	msg := notify.Message{Signal: sig, GameID: rec.ID}
	if m.texts != nil {
		data := textData{
			Color:    string(c),
			Opponent: rec.NameOf(c.Opponent()),
			Reason:   string(rec.EndReason),
			Move:     move,
			Number:   len(rec.Moves),
		}
		text, err := m.texts.Render("notify."+string(sig), data)
		if err != nil {
			obslog.L().Warn("darkchess_notify_text_error", zap.String("signal", string(sig)), zap.Error(err))
		}
		msg.Text = text
	}
	if info, err := buildInfo(rec, c, m.now()); err == nil {
		msg.Payload = info
	}
	if err := m.notifier.Send(ctx, rec.TokenOf(c), msg); err != nil {
		obslog.L().Warn("darkchess_notify_error",
			zap.String("game_id", rec.ID),
			zap.String("signal", string(sig)),
			zap.String("color", string(c)),
			zap.Error(err),
		)
	}
}
