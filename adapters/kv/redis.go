package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/portalis-labs/keygate/ports"
	"github.com/redis/go-redis/v9"
)

// RedisKV is the production KV adapter.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV wraps an existing Redis client. The prefix namespaces keys so
// one instance can back both the challenge store and the session cache.
func NewRedisKV(client *redis.Client, prefix string) *RedisKV {
	return &RedisKV{client: client, prefix: prefix}
}

func (s *RedisKV) key(k string) string {
	return s.prefix + k
}

// Set stores a value with an expiry.
func (s *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get retrieves a value by key.
func (s *RedisKV) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ports.ErrKeyNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

// GetDel retrieves and removes a value in one round trip.
func (s *RedisKV) GetDel(ctx context.Context, key string) (string, error) {
	value, err := s.client.GetDel(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ports.ErrKeyNotFound
		}
		return "", fmt.Errorf("redis getdel: %w", err)
	}
	return value, nil
}

// Delete removes a key.
func (s *RedisKV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
