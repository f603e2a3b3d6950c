package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	PushBaseURL    string
	AllowedOrigins []string

	DrawOfferTTL time.Duration
	CacheTTL     time.Duration
	GameTTL      time.Duration

	DefaultTimeControl string
	DefaultTimeSeconds int

	MsgOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		DrawOfferTTL:       120 * time.Second,
		CacheTTL:           30 * time.Second,
		GameTTL:            168 * time.Hour,
		DefaultTimeControl: "nolimit",
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.PushBaseURL = strings.TrimSpace(os.Getenv("PUSH_BASE_URL"))
	cfg.MsgOverrideDir = strings.TrimSpace(os.Getenv("MSG_OVERRIDE_DIR"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	if n, ok := positiveInt("DRAW_OFFER_TTL_SEC"); ok {
		cfg.DrawOfferTTL = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt("CACHE_TTL_SEC"); ok {
		cfg.CacheTTL = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt("GAME_TTL_HOURS"); ok {
		cfg.GameTTL = time.Duration(n) * time.Hour
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("DEFAULT_TIME_CONTROL"))); v != "" {
		cfg.DefaultTimeControl = v
	}
	if n, ok := positiveInt("DEFAULT_TIME_SECONDS"); ok {
		cfg.DefaultTimeSeconds = n
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.DefaultTimeControl {
	case "nolimit":
	case "limit":
		if cfg.DefaultTimeSeconds <= 0 {
			return nil, errors.New("DEFAULT_TIME_SECONDS is required for limit time control")
		}
	default:
		return nil, errors.New("DEFAULT_TIME_CONTROL must be nolimit or limit")
	}

	return cfg, nil
}

func positiveInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
