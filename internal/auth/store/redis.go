package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/notefetch/internal/core/domain"
)

// RedisConfig holds Redis connection configuration for the token backend.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Key      string `yaml:"key"`
}

// RedisStore persists the token set in Redis under a single key.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore connects to Redis and returns a token store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = "notefetch:token_set"
	}
	return &RedisStore{rdb: rdb, key: key}, nil
}

// Load retrieves the persisted token set.
func (s *RedisStore) Load(ctx context.Context) (*domain.TokenSet, error) {
	val, err := s.rdb.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}

	var ts domain.TokenSet
	if err := json.Unmarshal([]byte(val), &ts); err != nil {
		return nil, fmt.Errorf("failed to parse token set: %w", err)
	}
	return &ts, nil
}

// Save replaces the persisted token set. No TTL: the refresh token outlives
// the access token and its revocation is detected at refresh time.
func (s *RedisStore) Save(ctx context.Context, ts *domain.TokenSet) error {
	data, err := json.Marshal(ts)
	if err != nil {
		return fmt.Errorf("failed to encode token set: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Clear removes the persisted token set.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
