// Package redis connects the ephemeral rule stores (rolling counters and
// suppression entries) to Redis when they are shared between replicas.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"notifyd/internal/platform/config"
)

const defaultTimeout = 5 * time.Second

// NewUniversalClient returns a client for a single node, Sentinel (master
// name set) or Cluster (several addresses) deployment, and pings it.
func NewUniversalClient(ctx context.Context, cfg config.RedisConfig) (goredis.UniversalClient, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("at least one redis address is required")
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   cfg.MasterName,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  defaultTimeout,
		ReadTimeout:  defaultTimeout,
		WriteTimeout: defaultTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
