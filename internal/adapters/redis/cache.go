package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	goredis "github.com/redis/go-redis/v9"
)

// Config holds connection settings for the shared read cache
type Config struct {
	Addr      string
	Password  string
	KeyPrefix string
	DB        int
	PoolSize  int
}

// Cache implements ports.Cache on Redis. Values are opaque bytes; TTLs are
// enforced server-side.
type Cache struct {
	client *goredis.Client
	prefix string
}

var _ ports.Cache = (*Cache)(nil)

// NewCache connects to Redis and verifies the connection with PING
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	return NewCacheFromClient(client, cfg.KeyPrefix), nil
}

// NewCacheFromClient wraps an existing client
func NewCacheFromClient(client *goredis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	if err := c.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks connectivity for health reporting
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool
func (c *Cache) Close() error {
	return c.client.Close()
}
