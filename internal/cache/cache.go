// Package cache keeps autosearch answers in Redis so repeated queries skip
// the resolver. Redis failures never fail a query: the cache degrades to a
// pass-through and a circuit breaker stops hammering an unavailable server.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rdsm-lab/disease-mapper/pkg/metrics"
	pkgredis "github.com/rdsm-lab/disease-mapper/pkg/redis"
	"github.com/rdsm-lab/disease-mapper/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "autosearch:"

// DefaultTTL applies when the configured TTL is not positive.
const DefaultTTL = 10 * time.Minute

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
	CountByPattern(ctx context.Context, pattern string) (int64, error)
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Keys    int64  `json:"keys"`
	Breaker string `json:"breaker"`
}

// AutosearchCache caches term lists keyed by the case-folded query. A nil
// store turns every lookup into a miss.
type AutosearchCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// Option customises an AutosearchCache.
type Option func(*AutosearchCache)

// WithMetrics counts hits and misses in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *AutosearchCache) { c.metrics = m }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *AutosearchCache) { c.breaker = cb }
}

func New(store Store, ttl time.Duration, opts ...Option) *AutosearchCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &AutosearchCache{
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "autosearch-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			Ignore:           pkgredis.IsNilError,
			OnStateChange:    c.reportBreaker,
		})
	}
	return c
}

// NewRedis builds a cache over a pkg/redis client. A nil client yields a
// disabled cache.
func NewRedis(client *pkgredis.Client, ttl time.Duration, opts ...Option) *AutosearchCache {
	if client == nil {
		return New(nil, ttl, opts...)
	}
	return New(client, ttl, opts...)
}

// Enabled reports whether a backing store is configured.
func (c *AutosearchCache) Enabled() bool {
	return c.store != nil
}

func (c *AutosearchCache) Get(ctx context.Context, query string) ([]string, bool) {
	if c.store == nil {
		c.miss()
		return nil, false
	}
	key := c.buildKey(query)
	var data string
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		v, err := c.store.Get(ctx, key)
		data = v
		return err
	})
	if pkgredis.IsNilError(err) {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if data == "" {
		c.miss()
		return nil, false
	}
	var terms []string
	if err := json.Unmarshal([]byte(data), &terms); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "term", query, "key", key)
	return terms, true
}

func (c *AutosearchCache) Set(ctx context.Context, query string, terms []string) {
	if c.store == nil {
		return
	}
	key := c.buildKey(query)
	data, err := json.Marshal(terms)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.store.Set(ctx, key, data, c.ttl)
	}); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached terms for query or computes, stores and
// returns them. Concurrent misses for the same query share one computation.
// Errors from computeFn are returned and never cached, and neither are
// answers computeFn marks as not worth storing.
func (c *AutosearchCache) GetOrCompute(
	ctx context.Context,
	query string,
	computeFn func() (terms []string, store bool, err error),
) ([]string, bool, error) {
	if terms, ok := c.Get(ctx, query); ok {
		return terms, true, nil
	}
	key := c.buildKey(query)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		terms, store, err := computeFn()
		if err != nil {
			return nil, err
		}
		if store {
			c.Set(ctx, query, terms)
		}
		return terms, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]string), false, nil
}

// Invalidate drops every cached answer. Call it after the lexicon or the
// blacklist changes.
func (c *AutosearchCache) Invalidate(ctx context.Context) (int64, error) {
	if c.store == nil {
		return 0, nil
	}
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating autosearch cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

func (c *AutosearchCache) Stats(ctx context.Context) Stats {
	s := Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Breaker: c.breaker.State().String(),
	}
	if c.store != nil && c.breaker.Allow() {
		n, err := c.store.CountByPattern(ctx, keyPrefix+"*")
		if err != nil {
			c.logger.Warn("counting cache keys failed", "error", err)
		}
		s.Keys = n
	}
	return s
}

func (c *AutosearchCache) reportBreaker(name string, to resilience.State) {
	if c.metrics != nil {
		c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
}

func (c *AutosearchCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *AutosearchCache) buildKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
