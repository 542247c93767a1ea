package navigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each client's selections in one Redis hash.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store whose hashes expire ttl after the last write. A zero
// ttl keeps them forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "rpay:selection", ttl: ttl}
}

func (s *RedisStore) hashKey(client string) string {
	return fmt.Sprintf("%s:%s", s.prefix, client)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, client, key string) (string, error) {
	value, err := s.client.HGet(ctx, s.hashKey(client), key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("navigation: redis get %s: %w", key, err)
	}
	return value, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, client, key, value string) error {
	hash := s.hashKey(client)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, hash, key, value)
	if s.ttl > 0 {
		pipe.Expire(ctx, hash, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("navigation: redis set %s: %w", key, err)
	}
	return nil
}
