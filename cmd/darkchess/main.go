package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/dark-chess/internal/archive"
	"github.com/park285/dark-chess/internal/config"
	"github.com/park285/dark-chess/internal/msgcat"
	"github.com/park285/dark-chess/internal/notify"
	"github.com/park285/dark-chess/internal/obslog"
	"github.com/park285/dark-chess/internal/redisx"
	"github.com/park285/dark-chess/internal/render"
	"github.com/park285/dark-chess/internal/respcache"
	"github.com/park285/dark-chess/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	rdb, err := redisx.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis init error: %v", err)
	}
	defer func() { _ = rdb.Close() }()

	var repo archive.Repository = archive.NewMemoryRepository()
	if cfg.DatabaseURL != "" {
		pg, err := archive.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		defer func() { _ = pg.Close() }()
		repo = pg
	}

	texts, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		log.Fatalf("messages init error: %v", err)
	}

	hub := notify.NewHub(cfg.AllowedOrigins)
	var notifier notify.Notifier = hub
	if cfg.PushBaseURL != "" {
		notifier = notify.Fanout{hub, notify.NewHTTPPusher(cfg.PushBaseURL)}
	}

	mgr := session.NewManager(
		session.NewRedisStore(rdb, cfg.GameTTL),
		session.NewRedisDrawFlags(rdb),
		session.WithCache(respcache.NewRedis(rdb, cfg.CacheTTL)),
		session.WithNotifier(notifier),
		session.WithTexts(texts),
		session.WithArchive(repo),
		session.WithRenderer(render.New()),
		session.WithDrawTTL(cfg.DrawOfferTTL),
	)
	tc, err := session.ParseTimeControl(cfg.DefaultTimeControl, cfg.DefaultTimeSeconds)
	if err != nil {
		log.Fatalf("time control error: %v", err)
	}
	hub.SetDispatcher(&commands{mgr: mgr, defaultTime: tc})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("darkchess_listen", zap.String("addr", cfg.ListenAddr), zap.Bool("postgres", cfg.DatabaseURL != ""))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("darkchess_listen_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("darkchess_shutdown_error", zap.Error(err))
	}
}
