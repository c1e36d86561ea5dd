package rediscache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/asakaida/epiguard/pkg/cache"
)

// Cache implements cache.Cache on top of redis.
// Values must be []byte or string; Get always returns []byte.
type Cache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration

	hits    atomic.Uint64
	misses  atomic.Uint64
	added   atomic.Uint64
	metrics bool
}

// Config holds configuration for the redis cache.
type Config struct {
	// KeyPrefix namespaces every key written by this cache.
	KeyPrefix string

	// DefaultTTL is used when Set is called with a non-positive TTL.
	DefaultTTL time.Duration

	// EnableMetrics enables collection of hit/miss counters.
	EnableMetrics bool
}

// Connect creates a redis client and verifies it with PING
func Connect(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// New creates a redis-backed cache using an existing client.
func New(client *redis.Client, config *Config) *Cache {
	return &Cache{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.DefaultTTL,
		metrics:   config.EnableMetrics,
	}
}

func (c *Cache) key(key string) string {
	return c.keyPrefix + key
}

// Get retrieves a value from cache. Connection errors are reported as misses.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	payload, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		c.count(&c.misses)
		return nil, false
	}

	c.count(&c.hits)
	return payload, true
}

// Set stores a value in cache with the specified TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	var payload []byte
	switch v := value.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		return fmt.Errorf("redis cache accepts []byte or string values, got %T", value)
	}

	if ttl <= 0 {
		ttl = c.ttl
	}

	if err := c.client.Set(ctx, c.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key: %w", err)
	}

	c.count(&c.added)
	return nil
}

// Delete removes a value from cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}
	return nil
}

// Clear removes every key under the cache's prefix.
func (c *Cache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 100).Iterator()

	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}

	return nil
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Metrics returns cache statistics. Evictions are not observable from the client.
func (c *Cache) Metrics() *cache.Metrics {
	if !c.metrics {
		return &cache.Metrics{}
	}
	return &cache.Metrics{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		KeysAdded: c.added.Load(),
	}
}

func (c *Cache) count(counter *atomic.Uint64) {
	if c.metrics {
		counter.Add(1)
	}
}
