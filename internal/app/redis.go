package app

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"stockledger/internal/config"
)

// RedisEnabled reports whether a Redis queue is configured.
func RedisEnabled(cfg *config.Config) bool {
	return cfg.RedisAddr != ""
}

// AsynqRedis returns the asynq connection options for cfg.
func AsynqRedis(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
}

// NewRedisClient opens a go-redis client for health checks.
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
}

// RedisCheck pings client.
func RedisCheck(client *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
