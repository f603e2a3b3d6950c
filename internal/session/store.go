package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RecordStore persists game records. Update runs fn against the latest
// record under optimistic concurrency and writes the result atomically; an
// error from fn aborts the write and is returned unchanged. Every committed
// Update changes the record, so it conflicts with any Update that read the
// previous version.
type RecordStore interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	GameIDByToken(ctx context.Context, token string) (string, error)
	Update(ctx context.Context, id string, fn func(*Record) error) (*Record, error)
}

const maxTxRetries = 16

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 168 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func gameKey(id string) string     { return "darkchess:game:" + strings.TrimSpace(id) }
func tokenKey(token string) string { return "darkchess:token:" + strings.TrimSpace(token) }

// Create stores a new record and points both player tokens at it. A token
// that still resolves to a running game is refused with ErrAlreadyPlaying;
// once that game has ended the token moves on to the new one.
func (s *RedisStore) Create(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	tokens := []string{tokenKey(rec.WhiteToken), tokenKey(rec.BlackToken)}
	txf := func(tx *redis.Tx) error {
		for _, key := range tokens {
			if err := s.ensureFree(ctx, tx, key); err != nil {
				return err
			}
		}
		cmds, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetNX(ctx, gameKey(rec.ID), raw, s.ttl)
			pipe.Set(ctx, tokens[0], rec.ID, s.ttl)
			pipe.Set(ctx, tokens[1], rec.ID, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		if ok, _ := cmds[0].(*redis.BoolCmd).Result(); !ok {
			return fmt.Errorf("create game: id %s already exists", rec.ID)
		}
		return nil
	}
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, tokens...)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			if errors.Is(err, ErrAlreadyPlaying) {
				return err
			}
			return fmt.Errorf("create game: %w", err)
		}
	}
	return ErrConflict
}

// ensureFree fails when the token behind key still plays a running game.
// A token whose record has expired is free.
func (s *RedisStore) ensureFree(ctx context.Context, tx *redis.Tx, key string) error {
	id, err := tx.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	cur, err := s.read(ctx, tx, id)
	if errors.Is(err, ErrGameNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !cur.Ended() {
		return ErrAlreadyPlaying
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	return s.read(ctx, s.rdb, id)
}

func (s *RedisStore) GameIDByToken(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrGameNotFound
	}
	id, err := s.rdb.Get(ctx, tokenKey(token)).Result()
	if err == redis.Nil {
		return "", ErrGameNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve token: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Record) error) (*Record, error) {
	key := gameKey(id)
	var out *Record
	txf := func(tx *redis.Tx) error {
		cur, err := s.read(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(cur); err != nil {
			return err
		}
		cur.Rev++
		raw, err := json.Marshal(cur)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, redis.KeepTTL)
			return nil
		})
		if err == nil {
			out = cur
		}
		return err
	}
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
	}
	return nil, ErrConflict
}

func (s *RedisStore) read(ctx context.Context, c getter, id string) (*Record, error) {
	raw, err := c.Get(ctx, gameKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	return &rec, nil
}
