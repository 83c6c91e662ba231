package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/osnovci/internal/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps the shared Redis connection used for lockout counters and the
// token revocation list
type Client struct {
	Redis     *redis.Client
	KeyPrefix string
	logger    *slog.Logger
}

// NewClient parses the configured URL, connects and pings Redis
func NewClient(cfg *config.RedisConfig, logger *slog.Logger) (*Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse REDIS_URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}

	logger.Info("redis connection established", slog.String("addr", opt.Addr), slog.Int("db", opt.DB))

	return &Client{Redis: rdb, KeyPrefix: cfg.KeyPrefix, logger: logger}, nil
}

func (c *Client) Close() {
	c.logger.Info("closing redis connection")
	_ = c.Redis.Close()
}

func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
