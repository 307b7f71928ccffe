// Package redis implements the shared cache on Redis so budget counters and
// query cooldowns are visible to every worker process.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
)

// Config controls the Redis connection.
type Config struct {
	URL       string
	KeyPrefix string
}

// Cache wraps a go-redis client.
type Cache struct {
	client goredis.UniversalClient
	prefix string
}

// New parses the URL, connects and pings Redis.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("cache.redis_url is required")
	}
	opt, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", errors.Join(discovery.ErrCacheUnavailable, err))
	}
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(client goredis.UniversalClient, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// Incr adds delta and applies the TTL in one MULTI/EXEC. EXPIRE NX only
// touches keys without an expiry, so a running window keeps its deadline.
func (c *Cache) Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	k := c.key(key)
	var incr *goredis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, k, delta)
		if ttl > 0 {
			pipe.ExpireNX(ctx, k, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, errors.Join(discovery.ErrCacheUnavailable, err))
	}
	return incr.Val(), nil
}

// Get returns the counter at key, or zero when absent.
func (c *Cache) Get(ctx context.Context, key string) (int64, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, errors.Join(discovery.ErrCacheUnavailable, err))
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse counter %s: %w", key, err)
	}
	return n, nil
}

// SetMarker stores a marker with the given expiry.
func (c *Cache) SetMarker(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), "1", ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, errors.Join(discovery.ErrCacheUnavailable, err))
	}
	return nil
}

// Exists reports whether key is present.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, errors.Join(discovery.ErrCacheUnavailable, err))
	}
	return n > 0, nil
}

// Ping checks connectivity for readiness probes.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
