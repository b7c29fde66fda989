package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgredis "github.com/curiomarket/storefront/pkg/redis"
)

type redisCommands interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisStore keeps the cart payload under a single namespaced key, so any
// process pointed at the same instance sees the same cart.
type RedisStore struct {
	client redisCommands
	key    string
}

// NewRedisStore wraps an established connection. The key should come from the
// client's CartKey builder.
func NewRedisStore(client redisCommands, key string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if key == "" {
		return nil, fmt.Errorf("redis cart key required")
	}
	return &RedisStore{client: client, key: key}, nil
}

func (s *RedisStore) Read(ctx context.Context) ([]byte, error) {
	value, err := s.client.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, pkgredis.Nil) {
			return nil, ErrNotPersisted
		}
		return nil, fmt.Errorf("reading cart key: %w", err)
	}
	return []byte(value), nil
}

func (s *RedisStore) Write(ctx context.Context, payload []byte) error {
	if err := s.client.Set(ctx, s.key, payload, 0); err != nil {
		return fmt.Errorf("writing cart key: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key); err != nil {
		return fmt.Errorf("clearing cart key: %w", err)
	}
	return nil
}
