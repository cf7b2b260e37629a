// Package redis wraps go-redis/v9 for the autosearch cache. Every key is
// stored under the configured namespace so several deployments can share a
// server and a flush only touches this service's keys.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rdsm-lab/disease-mapper/pkg/config"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

type Client struct {
	rdb *redis.Client
	ns  string
}

// NewClient connects and pings. The ping is bounded by five seconds even
// when ctx has no deadline.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis at %s: %w", cfg.Addr, err)
	}
	return Wrap(rdb, cfg.Namespace), nil
}

// Wrap adopts an existing go-redis client, e.g. one pointed at miniredis.
func Wrap(rdb *redis.Client, namespace string) *Client {
	return &Client{rdb: rdb, ns: namespace}
}

func (c *Client) key(k string) string {
	return c.ns + k
}

// Get returns the value of key. A missing key is reported by an error for
// which IsNilError is true.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, c.key(key)).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key(key), value, ttl).Err()
}

// CountByPattern counts the keys under the namespace matching the glob.
func (c *Client) CountByPattern(ctx context.Context, pattern string) (int64, error) {
	var n int64
	err := c.scan(ctx, pattern, func(keys []string) error {
		n += int64(len(keys))
		return nil
	})
	return n, err
}

// FlushByPattern unlinks the keys under the namespace matching the glob,
// a scan page at a time, and returns how many were removed.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var removed int64
	err := c.scan(ctx, pattern, func(keys []string) error {
		n, err := c.rdb.Unlink(ctx, keys...).Result()
		removed += n
		return err
	})
	return removed, err
}

func (c *Client) scan(ctx context.Context, pattern string, page func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.key(pattern), scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scanning %s: %w", c.key(pattern), err)
		}
		if len(keys) > 0 {
			if err := page(keys); err != nil {
				return fmt.Errorf("scanning %s: %w", c.key(pattern), err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// IsNilError reports whether err means the key does not exist.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
