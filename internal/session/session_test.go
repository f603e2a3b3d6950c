package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/park285/dark-chess/internal/archive"
	"github.com/park285/dark-chess/internal/engine"
	"github.com/park285/dark-chess/internal/msgcat"
	"github.com/park285/dark-chess/internal/notify"
	"github.com/park285/dark-chess/internal/obslog"
	"github.com/park285/dark-chess/internal/respcache"
)

type sent struct {
	token string
	msg   notify.Message
}

type sink struct {
	mu   sync.Mutex
	msgs []sent
}

func (s *sink) Send(_ context.Context, token string, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, sent{token: token, msg: msg})
	return nil
}

// take returns and forgets everything sent so far.
func (s *sink) take() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.msgs
	s.msgs = nil
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	m     *Manager
	mr    *miniredis.Miniredis
	store *RedisStore
	sink  *sink
	clock *clock
	repo  *archive.MemoryRepository
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	rdb, mr := newTestRedis(t)
	texts, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	f := &fixture{
		mr:    mr,
		store: NewRedisStore(rdb, time.Hour),
		sink:  &sink{},
		clock: &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		repo:  archive.NewMemoryRepository(),
	}
	n := 0
	base := []Option{
		WithCache(respcache.NewRedis(rdb, time.Minute)),
		WithNotifier(f.sink),
		WithTexts(texts),
		WithArchive(f.repo),
		WithDrawTTL(10 * time.Second),
		WithClock(f.clock.now),
		WithIDGenerator(func() string { n++; return "game-" + string(rune('0'+n)) }),
	}
	f.m = NewManager(f.store, NewRedisDrawFlags(rdb), append(base, opts...)...)
	return f
}

// start creates a game between tok-w (alice) and tok-b (bob) and returns
// both sessions with the start notifications drained.
func (f *fixture) start(t *testing.T, tc TimeControl) (*Session, *Session) {
	t.Helper()
	ctx := context.Background()
	w, err := f.m.NewGame(ctx, NewGameParams{
		WhiteToken: "tok-w", BlackToken: "tok-b",
		WhiteName: "alice", BlackName: "bob",
		Time: tc,
	})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	b, err := f.m.LoadGame(ctx, "tok-b")
	if err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	f.sink.take()
	return w, b
}

func mustMove(t *testing.T, s *Session, from, to string) *MoveResult {
	t.Helper()
	res, err := s.Move(context.Background(), from, to, "")
	if err != nil {
		t.Fatalf("%s %s-%s: %v", s.Color(), from, to, err)
	}
	return res
}

func TestNewGame_NotifiesBothPlayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w, err := f.m.NewGame(ctx, NewGameParams{WhiteToken: "tok-w", BlackToken: "tok-b", WhiteName: "alice"})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if w.ID() != "game-1" || w.Color() != engine.White {
		t.Fatalf("unexpected session %s/%s", w.ID(), w.Color())
	}
	msgs := f.sink.take()
	if len(msgs) != 2 {
		t.Fatalf("want 2 start messages, got %d", len(msgs))
	}
	if msgs[0].token != "tok-w" || msgs[0].msg.Signal != notify.SignalStart ||
		msgs[0].msg.Text != "game started, you play white against anonymous" {
		t.Fatalf("white start = %+v", msgs[0])
	}
	if msgs[1].token != "tok-b" || msgs[1].msg.Text != "game started, you play black against alice" {
		t.Fatalf("black start = %+v", msgs[1])
	}
	info, ok := msgs[1].msg.Payload.(*Info)
	if !ok || info.Color != engine.Black || info.NextTurn != engine.White {
		t.Fatalf("start payload = %#v", msgs[1].msg.Payload)
	}
}

func TestNewGame_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, p := range []NewGameParams{
		{WhiteToken: "", BlackToken: "tok-b"},
		{WhiteToken: "same", BlackToken: " same "},
	} {
		if _, err := f.m.NewGame(ctx, p); !errors.Is(err, ErrInvalidPlayers) {
			t.Fatalf("NewGame(%+v) err = %v", p, err)
		}
	}
	if _, err := f.m.NewGame(ctx, NewGameParams{WhiteToken: "a", BlackToken: "b", Time: TimeControl{Kind: TimeLimit}}); !errors.Is(err, ErrTimeControl) {
		t.Fatalf("limit without seconds: %v", err)
	}
	if _, err := f.m.NewGame(ctx, NewGameParams{WhiteToken: "a", BlackToken: "b", Setup: "Kz9"}); err == nil {
		t.Fatalf("bad setup must fail")
	}
}

func TestNewGame_TokenInRunningGame(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{})
	ctx := context.Background()
	mustMove(t, w, "e2", "e4")
	f.sink.take()

	_, err := f.m.NewGame(ctx, NewGameParams{WhiteToken: "tok-x", BlackToken: "tok-b"})
	if !errors.Is(err, ErrAlreadyPlaying) {
		t.Fatalf("NewGame over running game: %v", err)
	}
	if msgs := f.sink.take(); len(msgs) != 0 {
		t.Fatalf("refused game must not notify: %+v", msgs)
	}
	again, err := f.m.LoadGame(ctx, "tok-b")
	if err != nil || again.ID() != w.ID() {
		t.Fatalf("LoadGame(tok-b) = %v, %v", again, err)
	}
	mustMove(t, b, "e7", "e5")

	if err := b.Resign(ctx, ""); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	next, err := f.m.NewGame(ctx, NewGameParams{WhiteToken: "tok-x", BlackToken: "tok-b"})
	if err != nil || next.ID() == w.ID() {
		t.Fatalf("NewGame after end = %v, %v", next, err)
	}
	if s, err := f.m.LoadGame(ctx, "tok-b"); err != nil || s.ID() != next.ID() {
		t.Fatalf("tok-b should follow the new game: %v, %v", s, err)
	}
}

func TestLoadGame_UnknownToken(t *testing.T) {
	f := newFixture(t)
	if _, err := f.m.LoadGame(context.Background(), "nobody"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestMove_TurnsAndRuleErrors(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{})
	ctx := context.Background()

	res := mustMove(t, w, "e2", "e4")
	if res.Number != 1 || res.Move != "e2-e4" || res.Cut != nil {
		t.Fatalf("first move = %+v", res)
	}
	msgs := f.sink.take()
	if len(msgs) != 1 || msgs[0].token != "tok-b" || msgs[0].msg.Signal != notify.SignalMove ||
		msgs[0].msg.Text != "alice made move 1" {
		t.Fatalf("move notification = %+v", msgs)
	}

	if _, err := w.Move(ctx, "d2", "d4", ""); !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("second white move: %v", err)
	}
	mustMove(t, b, "e7", "e5")

	cases := []struct {
		from, to string
		want     error
	}{
		{"e4", "e5", engine.ErrWrongMove},
		{"e4", "d5", engine.ErrWrongMove},
		{"a1", "a2", engine.ErrCellIsBusy},
		{"e3", "e4", engine.ErrNotFound},
		{"d7", "d6", engine.ErrWrongFigure},
		{"z9", "a1", engine.ErrOutOfBoard},
	}
	for _, c := range cases {
		if _, err := w.Move(ctx, c.from, c.to, ""); !errors.Is(err, c.want) {
			t.Fatalf("%s-%s: want %v, got %v", c.from, c.to, c.want, err)
		}
	}
	if _, err := w.Move(ctx, "a1", "a2", ""); !errors.Is(err, engine.ErrWrongMove) {
		t.Fatalf("cell busy must also be a wrong move")
	}
	if len(f.sink.take()) != 1 {
		t.Fatalf("rejected moves must not notify")
	}

	mustMove(t, w, "d2", "d4")
	res = mustMove(t, b, "e5", "d4")
	if res.Cut == nil || res.Cut.Kind != engine.Pawn || res.Cut.Color != engine.White || res.Number != 4 {
		t.Fatalf("capture = %+v", res)
	}
	v, err := b.GetBoard(ctx)
	if err != nil || v.LastCut == nil || len(v.Cuts) != 1 {
		t.Fatalf("board after capture = %+v, %v", v, err)
	}
}

func TestMove_ForeignColor(t *testing.T) {
	f := newFixture(t)
	w, _ := f.start(t, TimeControl{})
	if _, err := w.Move(context.Background(), "e7", "e5", engine.Black); !errors.Is(err, ErrForeignColor) {
		t.Fatalf("err = %v", err)
	}
	if _, err := w.Move(context.Background(), "e2", "e4", engine.White); err != nil {
		t.Fatalf("explicit own color: %v", err)
	}
}

func TestMove_CheckmateEndsGame(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{})
	ctx := context.Background()

	mustMove(t, w, "f2", "f3")
	mustMove(t, b, "e7", "e5")
	mustMove(t, w, "g2", "g4")
	f.sink.take()
	res := mustMove(t, b, "d8", "h4")
	if res.End == nil || res.End.Outcome != engine.BlackWon || res.End.Reason != engine.ReasonCheckmate || !res.Check {
		t.Fatalf("mate result = %+v", res)
	}
	if len(res.View.Cells) != 32 {
		t.Fatalf("finished game should reveal the board, got %d cells", len(res.View.Cells))
	}

	msgs := f.sink.take()
	if len(msgs) != 2 {
		t.Fatalf("want lose+win, got %+v", msgs)
	}
	if msgs[0].token != "tok-w" || msgs[0].msg.Signal != notify.SignalLose || msgs[0].msg.Text != "bob won (checkmate)" {
		t.Fatalf("loser message = %+v", msgs[0])
	}
	if msgs[1].token != "tok-b" || msgs[1].msg.Signal != notify.SignalWin || msgs[1].msg.Text != "black player won (checkmate)" {
		t.Fatalf("winner message = %+v", msgs[1])
	}

	for _, s := range []*Session{w, b} {
		_, err := s.Move(ctx, "a2", "a3", "")
		if !errors.Is(err, engine.ErrBlackWon) || !errors.Is(err, engine.ErrEndGame) {
			t.Fatalf("move after mate: %v", err)
		}
	}
	if eg, ok := engine.AsEndGame(func() error { _, err := w.Move(ctx, "a2", "a3", ""); return err }()); !ok || eg.Reason != engine.ReasonCheckmate {
		t.Fatalf("stored reason lost: %+v", eg)
	}

	g, err := f.repo.Get(ctx, w.ID())
	if err != nil || g.Outcome != engine.BlackWon || len(g.Moves) != 4 || g.BlackName != "bob" {
		t.Fatalf("archive = %+v, %v", g, err)
	}
}

func TestMove_StalemateIsDraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w, err := f.m.NewGame(ctx, NewGameParams{WhiteToken: "tok-w", BlackToken: "tok-b", Setup: "Kb6,Qc5,ka8"})
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	f.sink.take()
	res := mustMove(t, w, "c5", "c7")
	if res.End == nil || res.End.Outcome != engine.Draw || res.End.Reason != engine.ReasonStalemate {
		t.Fatalf("stalemate = %+v", res.End)
	}
	msgs := f.sink.take()
	if len(msgs) != 2 || msgs[0].msg.Signal != notify.SignalDraw || msgs[1].msg.Signal != notify.SignalDraw {
		t.Fatalf("draw notifications = %+v", msgs)
	}
}

func TestDraw_BothColorsAccept(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{})
	ctx := context.Background()

	done, err := w.DrawAccept(ctx, "")
	if err != nil || done {
		t.Fatalf("offer = %v, %v", done, err)
	}
	msgs := f.sink.take()
	if len(msgs) != 1 || msgs[0].token != "tok-b" || msgs[0].msg.Signal != notify.SignalDrawRequest ||
		msgs[0].msg.Text != "opponent offered draw" {
		t.Fatalf("draw request = %+v", msgs)
	}
	if done, _ := b.CheckDraw(ctx); done {
		t.Fatalf("one offer must not end the game")
	}

	done, err = b.DrawAccept(ctx, engine.Black)
	if err != nil || !done {
		t.Fatalf("accept = %v, %v", done, err)
	}
	msgs = f.sink.take()
	if len(msgs) != 2 || msgs[0].msg.Signal != notify.SignalDraw || msgs[1].msg.Signal != notify.SignalDraw {
		t.Fatalf("draw messages = %+v", msgs)
	}
	if done, err := w.CheckDraw(ctx); done || err != nil {
		t.Fatalf("CheckDraw on ended game = %v, %v", done, err)
	}
	if _, err := w.DrawAccept(ctx, ""); !errors.Is(err, engine.ErrDraw) {
		t.Fatalf("accept after draw: %v", err)
	}
	if err := b.DrawRefuse(ctx, ""); !errors.Is(err, engine.ErrEndGame) {
		t.Fatalf("refuse after draw: %v", err)
	}
	info, err := w.GetInfo(ctx)
	if err != nil || info.EndReason != engine.ReasonDraw || info.Winner != "" || info.EndedAt == nil {
		t.Fatalf("info = %+v, %v", info, err)
	}
}

func TestDraw_RefuseAndExpiry(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{})
	ctx := context.Background()

	if _, err := w.DrawAccept(ctx, ""); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if err := b.DrawRefuse(ctx, ""); err != nil {
		t.Fatalf("refuse: %v", err)
	}
	if done, _ := b.DrawAccept(ctx, ""); done {
		t.Fatalf("refused offer must not count")
	}

	f.mr.FastForward(11 * time.Second)
	if done, _ := w.DrawAccept(ctx, ""); done {
		t.Fatalf("expired offer must not count")
	}
	done, err := b.DrawAccept(ctx, "")
	if err != nil || !done {
		t.Fatalf("accept within window = %v, %v", done, err)
	}
}

// raceFlags injects one concurrent action into a draw transaction:
// beforeOffer runs ahead of the first Offer, afterBlack right after the
// first read of the black flag.
type raceFlags struct {
	DrawFlags
	beforeOffer, afterBlack func()
	offerOnce, readOnce     sync.Once
}

func (r *raceFlags) Offer(ctx context.Context, gameID string, c engine.Color, ttl time.Duration) error {
	if r.beforeOffer != nil {
		r.offerOnce.Do(r.beforeOffer)
	}
	return r.DrawFlags.Offer(ctx, gameID, c, ttl)
}

func (r *raceFlags) IsSet(ctx context.Context, gameID string, c engine.Color) (bool, error) {
	set, err := r.DrawFlags.IsSet(ctx, gameID, c)
	if c == engine.Black && r.afterBlack != nil {
		r.readOnce.Do(r.afterBlack)
	}
	return set, err
}

func TestDraw_RefuseRacingCheckWins(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{})
	ctx := context.Background()
	flags := &raceFlags{DrawFlags: f.m.draws}
	f.m.draws = flags

	for _, c := range []engine.Color{engine.White, engine.Black} {
		if err := flags.Offer(ctx, w.ID(), c, time.Minute); err != nil {
			t.Fatalf("Offer: %v", err)
		}
	}
	flags.afterBlack = func() {
		if err := w.DrawRefuse(ctx, ""); err != nil {
			t.Errorf("DrawRefuse: %v", err)
		}
	}

	done, err := b.CheckDraw(ctx)
	if err != nil || done {
		t.Fatalf("withdrawn offer ended the game: %v, %v", done, err)
	}
	rec, _ := f.store.Get(ctx, w.ID())
	if rec.Ended() {
		t.Fatalf("record ended as %s", rec.EndReason)
	}
	if msgs := f.sink.take(); len(msgs) != 0 {
		t.Fatalf("no draw may be announced: %+v", msgs)
	}
}

func TestDraw_RefuseRacingAcceptWins(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{})
	ctx := context.Background()
	flags := &raceFlags{DrawFlags: f.m.draws}
	f.m.draws = flags

	if done, err := w.DrawAccept(ctx, ""); err != nil || done {
		t.Fatalf("offer = %v, %v", done, err)
	}
	f.sink.take()
	flags.afterBlack = func() {
		if err := w.DrawRefuse(ctx, ""); err != nil {
			t.Errorf("DrawRefuse: %v", err)
		}
	}

	done, err := b.DrawAccept(ctx, "")
	if err != nil || done {
		t.Fatalf("accept after refusal = %v, %v", done, err)
	}
	if rec, _ := f.store.Get(ctx, w.ID()); rec.Ended() {
		t.Fatalf("record ended as %s", rec.EndReason)
	}
	if set, _ := flags.IsSet(ctx, w.ID(), engine.White); set {
		t.Fatalf("refused white offer survived")
	}
	if set, _ := flags.IsSet(ctx, w.ID(), engine.Black); !set {
		t.Fatalf("black offer should stay pending")
	}
	msgs := f.sink.take()
	if len(msgs) != 1 || msgs[0].token != "tok-w" || msgs[0].msg.Signal != notify.SignalDrawRequest {
		t.Fatalf("want a fresh draw request to white, got %+v", msgs)
	}
}

func TestDraw_OfferRacingEndLeavesNoFlag(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{})
	ctx := context.Background()
	flags := &raceFlags{DrawFlags: f.m.draws}
	f.m.draws = flags
	flags.beforeOffer = func() {
		if err := w.Resign(ctx, ""); err != nil {
			t.Errorf("Resign: %v", err)
		}
	}

	if _, err := b.DrawAccept(ctx, ""); !errors.Is(err, engine.ErrBlackWon) {
		t.Fatalf("offer racing resign: %v", err)
	}
	if set, _ := flags.IsSet(ctx, w.ID(), engine.Black); set {
		t.Fatalf("offer outlived the game")
	}
	if _, err := b.DrawAccept(ctx, ""); !errors.Is(err, engine.ErrEndGame) {
		t.Fatalf("offer after resign: %v", err)
	}
}

func TestResign(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{})
	ctx := context.Background()
	mustMove(t, w, "e2", "e4")
	f.sink.take()

	if err := b.Resign(ctx, ""); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	msgs := f.sink.take()
	if len(msgs) != 1 || msgs[0].token != "tok-w" || msgs[0].msg.Signal != notify.SignalWin ||
		msgs[0].msg.Text != "white player won (resign)" {
		t.Fatalf("resign notifications = %+v", msgs)
	}
	if err := w.Resign(ctx, ""); !errors.Is(err, engine.ErrWhiteWon) {
		t.Fatalf("second resign: %v", err)
	}
	if _, err := b.Move(ctx, "e7", "e5", ""); !errors.Is(err, engine.ErrWhiteWon) {
		t.Fatalf("move after resign: %v", err)
	}
	if g, err := f.repo.Get(ctx, w.ID()); err != nil || g.Reason != engine.ReasonResign {
		t.Fatalf("archive = %+v, %v", g, err)
	}
}

func TestMoves_HiddenUntilEnd(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{})
	ctx := context.Background()
	mustMove(t, w, "e2", "e4")
	mustMove(t, b, "e7", "e5")
	mustMove(t, w, "g1", "f3")

	wm, err := w.Moves(ctx)
	if err != nil || len(wm) != 2 || wm[0] != "e2-e4" || wm[1] != "g1-f3" {
		t.Fatalf("white moves = %v, %v", wm, err)
	}
	bm, _ := b.Moves(ctx)
	if len(bm) != 1 || bm[0] != "e7-e5" {
		t.Fatalf("black moves = %v", bm)
	}

	if err := w.Resign(ctx, ""); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	for _, s := range []*Session{w, b} {
		all, _ := s.Moves(ctx)
		if len(all) != 3 || all[1] != "e7-e5" {
			t.Fatalf("%s moves after end = %v", s.Color(), all)
		}
	}
}

func TestCache_InvalidatedForBothPlayers(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{})
	ctx := context.Background()

	if _, err := w.Moves(ctx); err != nil {
		t.Fatalf("Moves: %v", err)
	}
	if _, err := b.GetInfo(ctx); err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	wKey := respcache.Key(respcache.HandlerGameMoves, "tok-w")
	bKey := respcache.Key(respcache.HandlerGameInfo, "tok-b")
	if !f.mr.Exists(wKey) || !f.mr.Exists(bKey) {
		t.Fatalf("views should be cached")
	}

	mustMove(t, w, "e2", "e4")
	if f.mr.Exists(wKey) || f.mr.Exists(bKey) {
		t.Fatalf("move must invalidate cached views of both players")
	}
	wm, _ := w.Moves(ctx)
	if len(wm) != 1 {
		t.Fatalf("moves after invalidation = %v", wm)
	}
	info, _ := b.GetInfo(ctx)
	if info.Number != 1 || info.NextTurn != engine.Black {
		t.Fatalf("info after invalidation = %+v", info)
	}
}

func TestMove_ConcurrentSubmissions(t *testing.T) {
	f := newFixture(t)
	w, _ := f.start(t, TimeControl{})
	ctx := context.Background()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.Move(ctx, "e2", "e4", ""); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("exactly one submission may win, got %d", ok)
	}
	rec, err := f.store.Get(ctx, w.ID())
	if err != nil || len(rec.Moves) != 1 {
		t.Fatalf("record = %+v, %v", rec, err)
	}
}

// brokenStore reads normally but never manages to write.
type brokenStore struct{ RecordStore }

func (s brokenStore) Update(ctx context.Context, id string, fn func(*Record) error) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	return nil, errors.New("connection reset")
}

func TestMove_PersistFailureHasNoEffects(t *testing.T) {
	f := newFixture(t)
	w, _ := f.start(t, TimeControl{})
	ctx := context.Background()

	core, logs := observer.New(zapcore.InfoLevel)
	defer obslog.Set(zap.New(core))()

	broken := *f.m
	broken.store = brokenStore{f.store}
	s := &Session{m: &broken, id: w.ID(), color: engine.White, token: "tok-w"}

	if _, err := s.Move(ctx, "e2", "e4", ""); !errors.Is(err, ErrInternal) {
		t.Fatalf("err = %v", err)
	}
	if msgs := f.sink.take(); len(msgs) != 0 {
		t.Fatalf("failed move must not notify: %+v", msgs)
	}
	rec, _ := f.store.Get(ctx, w.ID())
	if len(rec.Moves) != 0 {
		t.Fatalf("failed move was recorded: %v", rec.Moves)
	}
	entries := logs.FilterMessage("darkchess_move_persist_error").All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("persist error log = %+v", entries)
	}

	if _, err := s.Move(ctx, "e2", "e5", ""); !errors.Is(err, engine.ErrWrongMove) {
		t.Fatalf("rule errors still pass through: %v", err)
	}
}

// busyStore never gets a transaction through.
type busyStore struct{ RecordStore }

func (busyStore) Update(context.Context, string, func(*Record) error) (*Record, error) {
	return nil, ErrConflict
}

func TestConflictStaysRetryable(t *testing.T) {
	f := newFixture(t)
	w, _ := f.start(t, TimeControl{})
	ctx := context.Background()

	core, logs := observer.New(zapcore.InfoLevel)
	defer obslog.Set(zap.New(core))()

	busy := *f.m
	busy.store = busyStore{f.store}
	s := &Session{m: &busy, id: w.ID(), color: engine.White, token: "tok-w"}

	if _, err := s.Move(ctx, "e2", "e4", ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("Move: %v", err)
	}
	if err := s.Resign(ctx, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("Resign: %v", err)
	}
	if _, err := s.DrawAccept(ctx, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("DrawAccept: %v", err)
	}
	if err := s.DrawRefuse(ctx, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("DrawRefuse: %v", err)
	}
	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 0 {
		t.Fatalf("conflicts must not be logged as errors, got %d", n)
	}
}

func TestLoadGame_SettlesTimeout(t *testing.T) {
	f := newFixture(t)
	w, _ := f.start(t, TimeControl{Kind: TimeLimit, Seconds: 60})
	ctx := context.Background()

	f.clock.advance(61 * time.Second)
	if _, err := f.m.LoadGame(ctx, "tok-b"); err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	msgs := f.sink.take()
	if len(msgs) != 2 {
		t.Fatalf("want timeout notifications for both, got %+v", msgs)
	}
	if msgs[0].token != "tok-w" || msgs[0].msg.Signal != notify.SignalTimeoutLose || msgs[0].msg.Text != "your time is over, bob won" {
		t.Fatalf("loser = %+v", msgs[0])
	}
	if msgs[1].token != "tok-b" || msgs[1].msg.Signal != notify.SignalTimeoutWin || msgs[1].msg.Text != "alice ran out of time, you won" {
		t.Fatalf("winner = %+v", msgs[1])
	}
	_, err := w.Move(ctx, "e2", "e4", "")
	if eg, ok := engine.AsEndGame(err); !ok || eg.Outcome != engine.BlackWon || eg.Reason != engine.ReasonTimeout {
		t.Fatalf("move after timeout: %v", err)
	}
	if _, err := f.m.LoadGame(ctx, "tok-w"); err != nil || len(f.sink.take()) != 0 {
		t.Fatalf("timeout must be settled once: %v", err)
	}
}

func TestMove_SettlesTimeoutOfMover(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{Kind: TimeLimit, Seconds: 60})
	ctx := context.Background()

	f.clock.advance(10 * time.Second)
	mustMove(t, w, "e2", "e4")
	f.clock.advance(61 * time.Second)
	_, err := b.Move(ctx, "e7", "e5", "")
	if !errors.Is(err, engine.ErrWhiteWon) {
		t.Fatalf("late move: %v", err)
	}
	left, limited, err := w.TimeLeft(ctx, "")
	if err != nil || !limited || left != 50*time.Second {
		t.Fatalf("white clock = %v, %v, %v", left, limited, err)
	}
	if left, _, _ := w.TimeLeft(ctx, engine.Black); left != 0 {
		t.Fatalf("black clock = %v", left)
	}
}

func TestTimeLeft(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{Kind: TimeLimit, Seconds: 300})
	ctx := context.Background()

	f.clock.advance(20 * time.Second)
	if left, ok, _ := b.TimeLeft(ctx, engine.White); !ok || left != 280*time.Second {
		t.Fatalf("running clock = %v, %v", left, ok)
	}
	if left, _, _ := b.TimeLeft(ctx, ""); left != 300*time.Second {
		t.Fatalf("idle clock = %v", left)
	}
	if _, _, err := w.TimeLeft(ctx, engine.Color("red")); !errors.Is(err, ErrColorRequired) {
		t.Fatalf("bad color: %v", err)
	}
	info, err := w.GetInfo(ctx)
	if err != nil || info.TimeLeftMs == nil || *info.TimeLeftMs != 280000 || *info.EnemyTimeLeftMs != 300000 {
		t.Fatalf("info clocks = %+v, %v", info, err)
	}

	g := newFixture(t)
	nw, _ := g.start(t, TimeControl{})
	if _, ok, _ := nw.TimeLeft(ctx, ""); ok {
		t.Fatalf("nolimit game has no clock")
	}
}

func TestGetInfo_InProgress(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{})
	ctx := context.Background()
	mustMove(t, w, "e2", "e4")

	info, err := b.GetInfo(ctx)
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.Color != engine.Black || info.Opponent != "alice" || info.NextTurn != engine.Black || info.Number != 1 {
		t.Fatalf("info = %+v", info)
	}
	if info.EndedAt != nil || info.TimeLeftMs != nil || info.Check {
		t.Fatalf("info = %+v", info)
	}
	for _, c := range info.Board.Cells {
		if c.Color == engine.White {
			t.Fatalf("black should see no white figure yet, saw %+v", c)
		}
	}
}

func TestCheckCastles(t *testing.T) {
	f := newFixture(t)
	w, b := f.start(t, TimeControl{})
	ctx := context.Background()

	c, err := w.CheckCastles(ctx)
	if err != nil || !c.Kingside || !c.Queenside {
		t.Fatalf("initial castles = %+v, %v", c, err)
	}
	mustMove(t, w, "e2", "e4")
	mustMove(t, b, "e7", "e5")
	mustMove(t, w, "e1", "e2")
	if c, _ := w.CheckCastles(ctx); c.Kingside || c.Queenside {
		t.Fatalf("king moved, castles = %+v", c)
	}
	if c, _ := b.CheckCastles(ctx); !c.Kingside || !c.Queenside {
		t.Fatalf("black castles = %+v", c)
	}
}

func TestBoardImage(t *testing.T) {
	f := newFixture(t)
	w, _ := f.start(t, TimeControl{})
	img, err := w.BoardImage(context.Background())
	if err != nil {
		t.Fatalf("BoardImage: %v", err)
	}
	if !bytes.HasPrefix(img, []byte("\x89PNG")) {
		t.Fatalf("not a png")
	}
}
