package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// attemptScript prunes, counts and conditionally records an attempt in one
// atomic step. KEYS[1] is a sorted set scored by unix milliseconds.
// ARGV: cutoff, now, max, member, ttl in milliseconds.
var attemptScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return 1
end
return 0
`)

// RedisStore keeps rate-limit windows in Redis so processes on several hosts
// share the same limits.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Attempt implements Store.
func (s *RedisStore) Attempt(ctx context.Context, key string, now time.Time, window time.Duration, max int) (bool, error) {
	cutoff := now.Add(-window).UnixMilli()
	ttl := window.Milliseconds() + 1000

	res, err := attemptScript.Run(ctx, s.client, []string{key},
		cutoff, now.UnixMilli(), max, uuid.NewString(), ttl).Int()
	if err != nil {
		return false, fmt.Errorf("redis rate limit script failed: %w", err)
	}

	return res == 1, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
