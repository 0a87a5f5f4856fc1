package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"leadscore-backtest/logger"
)

// ErrNotInitialized is returned by a RedisClient that failed to connect.
var ErrNotInitialized = errors.New("redis client not initialized")

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

// RedisClient wraps redis.Client. A nil *RedisClient is valid and behaves
// as an always-empty cache.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to Redis and returns nil when the server cannot be
// reached, so callers degrade to running without a cache.
func NewRedisClient(host, port, password string, log *zap.Logger) *RedisClient {
	log = logger.OrNop(log).Named("cache")
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, website cache disabled", zap.String("addr", addr), zap.Error(err))
		client.Close()
		return nil
	}

	log.Info("connected to redis", zap.String("addr", addr))
	return &RedisClient{client: client}
}

// Set stores a JSON-encoded value with expiration.
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}

	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, key, jsonBytes, expiration).Err()
}

// Get decodes the value at key into dest. A missing key returns ErrMiss.
func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}

	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(val), dest)
}

// Delete removes a key.
func (r *RedisClient) Delete(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}
	return r.client.Del(ctx, key).Err()
}

// Ping checks the connection.
func (r *RedisClient) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	if r != nil && r.client != nil {
		return r.client.Close()
	}
	return nil
}
