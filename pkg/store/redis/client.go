package redis

import (
	"context"
	"fmt"
	"time"

	"devtel/pkg/config"

	"github.com/go-redis/redis/v8"
)

const connectTimeout = 5 * time.Second

// RedisClient wraps the shared broker connection. One pool serves the
// stream reads, acks and the metrics aggregates, so it is sized for the
// configured worker count plus the fast-path consumer.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to the broker and verifies the connection
// before any consumer starts.
func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.SlowPath.MetricsWorkers*2 + 8,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	return &RedisClient{client: client}, nil
}

// GetClient retrieves the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}
