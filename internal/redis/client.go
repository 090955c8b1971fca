// Package redis provides the Redis connection and the distributed lock used
// to serialise webhook reconciliation per order.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings.
type Config struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	MaxRetries  int
}

// Connect creates a client and verifies it with PING, retrying with
// exponential backoff.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		err := client.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			logger.Info("redis connected", "addr", cfg.Addr, "db", cfg.DB)
			return client, nil
		}

		lastErr = err
		if attempt < cfg.MaxRetries {
			backoff := 200 * time.Millisecond * time.Duration(1<<attempt)
			logger.Warn("redis connection failed, retrying",
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err,
			)
			time.Sleep(backoff)
		}
	}

	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}
