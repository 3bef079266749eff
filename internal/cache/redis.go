package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultOpTimeout bounds each Redis round trip so a slow or unreachable
// cache never stalls query execution.
const DefaultOpTimeout = 5 * time.Second

type RedisStore struct {
	client    *redis.Client
	opTimeout time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedis returns a Store backed by Redis. The caller owns the client
// lifecycle.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, opTimeout: DefaultOpTimeout}
}

func (s *RedisStore) opCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.opTimeout)
}

func (s *RedisStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	value, err := s.client.Get(octx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read %q: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStore) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache write %q: ttl must be positive", key)
	}
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.client.Set(octx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache write %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.client.Del(octx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}
