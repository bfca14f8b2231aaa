package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/relief-ledger-api/pkg/config"
)

// NewRedis returns a Redis client after confirming the server answers PING.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// HealthCheck adapts a Redis client to readiness probes.
type HealthCheck struct {
	client redis.Cmdable
}

// NewHealthCheck wraps client.
func NewHealthCheck(client redis.Cmdable) HealthCheck {
	return HealthCheck{client: client}
}

// PingContext sends PING.
func (h HealthCheck) PingContext(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}
