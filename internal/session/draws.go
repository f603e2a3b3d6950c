package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/dark-chess/internal/engine"
)

// DrawFlags keeps the pending draw offer of each color outside the game
// record. Flags expire on their own.
type DrawFlags interface {
	Offer(ctx context.Context, gameID string, c engine.Color, ttl time.Duration) error
	IsSet(ctx context.Context, gameID string, c engine.Color) (bool, error)
	Clear(ctx context.Context, gameID string) error
}

type RedisDrawFlags struct{ rdb *redis.Client }

func NewRedisDrawFlags(rdb *redis.Client) *RedisDrawFlags { return &RedisDrawFlags{rdb: rdb} }

func drawKey(gameID string, c engine.Color) string {
	return "darkchess:draw:" + gameID + ":" + string(c)
}

func (d *RedisDrawFlags) Offer(ctx context.Context, gameID string, c engine.Color, ttl time.Duration) error {
	if err := d.rdb.Set(ctx, drawKey(gameID, c), "1", ttl).Err(); err != nil {
		return fmt.Errorf("offer draw: %w", err)
	}
	return nil
}

func (d *RedisDrawFlags) IsSet(ctx context.Context, gameID string, c engine.Color) (bool, error) {
	n, err := d.rdb.Exists(ctx, drawKey(gameID, c)).Result()
	if err != nil {
		return false, fmt.Errorf("read draw flag: %w", err)
	}
	return n == 1, nil
}

func (d *RedisDrawFlags) Clear(ctx context.Context, gameID string) error {
	if err := d.rdb.Del(ctx, drawKey(gameID, engine.White), drawKey(gameID, engine.Black)).Err(); err != nil {
		return fmt.Errorf("clear draw flags: %w", err)
	}
	return nil
}
