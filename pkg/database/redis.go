package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/datapilot-ai/datapilot-engine/pkg/config"
)

// NewRedisClient creates the schema hot-cache client. Returns nil when Redis
// is not configured; callers treat a nil client as cache-off.
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
