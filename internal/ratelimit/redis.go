package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shortener/internal/models"
)

//go:embed moving_window.lua
var movingWindowLua string

var movingWindowScript = redis.NewScript(movingWindowLua)

// RedisStore is a CounterStore shared by every process connected to the same
// Redis. Each evaluation runs as one Lua script, so pruning, summing and
// recording are atomic, and the window is measured with the Redis server
// clock rather than the caller's.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. Keys are namespaced with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// NewRedisStoreFromConfig dials Redis using cfg and verifies the connection.
func NewRedisStoreFromConfig(ctx context.Context, cfg models.RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStore(client, cfg.KeyPrefix), nil
}

// keys returns the record and sequence keys for key. The hash tag keeps both
// in the same cluster slot.
func (s *RedisStore) keys(key string) []string {
	base := s.prefix + "{" + key + "}"
	return []string{base, base + ":seq"}
}

// RecordAndEvaluate implements CounterStore.
func (s *RedisStore) RecordAndEvaluate(ctx context.Context, key string, window time.Duration, limit, cost int) (Evaluation, error) {
	res, err := movingWindowScript.Run(ctx, s.client, s.keys(key),
		window.Microseconds(),
		limit,
		cost,
	).Int64Slice()
	if err != nil {
		return Evaluation{}, fmt.Errorf("moving window script for key %s: %w", key, err)
	}
	if len(res) != 4 {
		return Evaluation{}, fmt.Errorf("moving window script for key %s: unexpected reply length %d", key, len(res))
	}

	ev := Evaluation{
		Allowed: res[0] == 1,
		Used:    int(res[1]),
		Now:     time.UnixMicro(res[2]),
	}
	if res[3] >= 0 {
		ev.Oldest = time.UnixMicro(res[3])
	}
	return ev, nil
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
