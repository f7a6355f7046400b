package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/reviewfunnel/pkg/config"
	"github.com/zatekoja/reviewfunnel/pkg/retry"
)

// Client owns the go-redis connection pool shared by the cache adapter, the
// event bus and readiness checks.
type Client struct {
	rdb  *redis.Client
	addr string
}

// NewClient connects to Redis. The funnel runs without Redis, so the
// connection is given up on quickly and the caller falls back to in-process
// stores.
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	addr := cfg.RedisAddr()
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	if err := retry.Connect(context.Background(), retry.OptionalStore(), "redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis unavailable at %s: %w", addr, err)
	}

	log.Info().Str("addr", addr).Int("db", cfg.DB).Msg("connected to redis")
	return &Client{rdb: rdb, addr: addr}, nil
}

// NewFromRedis wraps an existing go-redis client.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, addr: rdb.Options().Addr}
}

func (c *Client) Client() *redis.Client {
	return c.rdb
}

func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping backs the redis readiness check.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
