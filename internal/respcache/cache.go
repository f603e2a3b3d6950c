// Package respcache caches rendered per-player responses in Redis.
package respcache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/dark-chess/internal/obslog"
)

const (
	HandlerGameInfo  = "game_info"
	HandlerGameMoves = "game_moves"
)

// Cache stores opaque response bodies by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte) error
	Invalidate(ctx context.Context, keys ...string) error
}

// Key derives the cache key of a handler response for one player token.
func Key(handler, token string) string {
	return "darkchess:cache:" + strings.TrimSpace(handler) + ":" + strings.TrimSpace(token)
}

type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, body []byte) error {
	return c.rdb.Set(ctx, key, body, c.ttl).Err()
}

func (c *Redis) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error         { return nil }
func (Nop) Invalidate(context.Context, ...string) error       { return nil }

// Remember returns the cached value under key or computes it with load and
// stores the JSON encoding. Cache failures degrade to calling load.
func Remember[T any](ctx context.Context, c Cache, key string, load func() (T, error)) (T, error) {
	if raw, ok, err := c.Get(ctx, key); err != nil {
		obslog.L().Warn("darkchess_cache_get_error", zap.String("key", key), zap.Error(err))
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.Set(ctx, key, raw); err != nil {
		obslog.L().Warn("darkchess_cache_set_error", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}
