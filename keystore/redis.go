package keystore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis, so several client processes can
// share one identity.
type RedisStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisStore creates a new Redis-based store. A ttl <= 0 keeps keys
// without expiry.
func NewRedisStore(client *redis.Client, namespace string, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
	}
}

// Get implements Store.
// Refreshes TTL on every read.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	k := s.key(key)
	val, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if s.ttl > 0 {
		_ = s.client.Expire(ctx, k, s.ttl).Err()
	}

	return val, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.key(key), value, s.ttl).Err()
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// key constructs the Redis key for a state key.
func (s *RedisStore) key(key string) string {
	return s.namespace + ":" + key
}

var _ Store = (*RedisStore)(nil)
