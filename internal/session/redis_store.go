package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	appredis "github.com/Proton-105/himera-shop/pkg/redis"
)

// KV is the subset of the Redis client used by sessions and locks.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	CompareAndDelete(ctx context.Context, key, token string) (bool, error)
	CompareAndExpire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
}

// RedisStore persists session records in Redis.
type RedisStore struct {
	client KV
	ttl    time.Duration
	log    *slog.Logger
}

var _ AtomicStore = (*RedisStore)(nil)

// NewRedisStore initializes a Redis-backed store. A zero ttl keeps records forever.
func NewRedisStore(client KV, ttl time.Duration, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// Get returns the stored value, or ok=false when the key is absent.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, appredis.ErrNil) {
			return "", false, nil
		}

		s.log.Error("failed to read session key", slog.String("key", key), slog.Any("error", err))
		return "", false, err
	}

	return value, true, nil
}

// Set overwrites the value under key.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, s.ttl); err != nil {
		s.log.Error("failed to write session key", slog.String("key", key), slog.Any("error", err))
		return err
	}

	return nil
}

// SetIfAbsent writes value only when key does not exist yet.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	written, err := s.client.SetNX(ctx, key, value, s.ttl)
	if err != nil {
		s.log.Error("failed to claim session key", slog.String("key", key), slog.Any("error", err))
		return false, err
	}

	return written, nil
}
