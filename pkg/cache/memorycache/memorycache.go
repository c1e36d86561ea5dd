package memorycache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asakaida/epiguard/pkg/cache"
)

// entryOverhead approximates the bookkeeping cost of one entry in bytes.
const entryOverhead = 100

// ErrEntryTooLarge is returned by Set when a single entry exceeds the size limit.
var ErrEntryTooLarge = errors.New("entry exceeds cache size limit")

type item struct {
	key       string
	value     interface{}
	expiresAt time.Time
	size      int64
}

func (it *item) expired(now time.Time) bool {
	return !now.Before(it.expiresAt)
}

// Cache is a size-bounded LRU cache with per-entry expiry. Reads refresh
// recency, so the entry evicted first is the one touched longest ago.
type Cache struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	recency *list.List // front is most recently used
	used    int64

	limit int64 // bytes; zero or less disables the bound
	ttl   time.Duration
	now   func() time.Time

	stats *counters // nil when metrics are disabled
}

type counters struct {
	hits, misses         atomic.Uint64
	added, evicted       atomic.Uint64
	costAdded, costEvict atomic.Uint64
}

// Config holds configuration for the memory cache.
type Config struct {
	// MaxSizeBytes bounds the approximate total size of cached entries.
	// Least recently used entries are evicted past it. Zero means unbounded.
	MaxSizeBytes int64

	// DefaultTTL applies when Set is called with a non-positive ttl.
	DefaultTTL time.Duration

	// EnableMetrics enables collection of cache metrics.
	EnableMetrics bool
}

// New creates a new memory cache with the given configuration.
func New(config *Config) (*Cache, error) {
	if config == nil {
		return nil, fmt.Errorf("memory cache config is required")
	}
	if config.DefaultTTL < 0 {
		return nil, fmt.Errorf("default TTL must not be negative: %s", config.DefaultTTL)
	}

	c := &Cache{
		index:   make(map[string]*list.Element),
		recency: list.New(),
		limit:   config.MaxSizeBytes,
		ttl:     config.DefaultTTL,
		now:     time.Now,
	}
	if config.EnableMetrics {
		c.stats = &counters{}
	}
	return c, nil
}

// Get returns the live value stored under key.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	it := c.lookup(key)
	c.mu.Unlock()

	if it == nil {
		c.count(func(s *counters) { s.misses.Add(1) })
		return nil, false
	}
	c.count(func(s *counters) { s.hits.Add(1) })
	return it.value, true
}

// Set stores value under key. A non-positive ttl uses the configured default.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	size := sizeOf(key, value)
	if c.limit > 0 && size > c.limit {
		return fmt.Errorf("failed to cache %s (%d bytes): %w", key, size, ErrEntryTooLarge)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if elem, ok := c.index[key]; ok {
		it := elem.Value.(*item)
		c.used += size - it.size
		it.value, it.size, it.expiresAt = value, size, expiresAt
		c.recency.MoveToFront(elem)
	} else {
		c.index[key] = c.recency.PushFront(&item{key: key, value: value, expiresAt: expiresAt, size: size})
		c.used += size
		c.count(func(s *counters) {
			s.added.Add(1)
			s.costAdded.Add(uint64(size))
		})
	}

	c.evictOverflow()
	return nil
}

// Delete removes key if present.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key]; ok {
		c.unlink(elem)
	}
	return nil
}

// Clear drops every entry. Counters are left alone.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index = make(map[string]*list.Element)
	c.recency.Init()
	c.used = 0
	return nil
}

// Close is a no-op; the cache holds no external resources.
func (c *Cache) Close() error {
	return nil
}

// Metrics returns a snapshot of the counters. It is all zeros when metrics are disabled.
func (c *Cache) Metrics() *cache.Metrics {
	if c.stats == nil {
		return &cache.Metrics{}
	}
	return &cache.Metrics{
		Hits:        c.stats.hits.Load(),
		Misses:      c.stats.misses.Load(),
		KeysAdded:   c.stats.added.Load(),
		KeysEvicted: c.stats.evicted.Load(),
		CostAdded:   c.stats.costAdded.Load(),
		CostEvicted: c.stats.costEvict.Load(),
	}
}

// ResetMetrics zeroes the counters.
func (c *Cache) ResetMetrics() {
	c.count(func(s *counters) {
		s.hits.Store(0)
		s.misses.Store(0)
		s.added.Store(0)
		s.evicted.Store(0)
		s.costAdded.Store(0)
		s.costEvict.Store(0)
	})
}

// Len returns the number of stored entries, expired ones included until they are touched.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// Size returns the approximate number of bytes held.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// lookup returns the live entry for key and marks it most recently used.
// Expired entries are dropped. Caller holds mu.
func (c *Cache) lookup(key string) *item {
	elem, ok := c.index[key]
	if !ok {
		return nil
	}
	it := elem.Value.(*item)
	if it.expired(c.now()) {
		c.unlink(elem)
		return nil
	}
	c.recency.MoveToFront(elem)
	return it
}

// evictOverflow drops least recently used entries until the bound holds. Caller holds mu.
func (c *Cache) evictOverflow() {
	if c.limit <= 0 {
		return
	}
	for c.used > c.limit {
		oldest := c.recency.Back()
		if oldest == nil {
			return
		}
		size := c.unlink(oldest)
		c.count(func(s *counters) {
			s.evicted.Add(1)
			s.costEvict.Add(uint64(size))
		})
	}
}

// unlink removes elem and returns the size it released. Caller holds mu.
func (c *Cache) unlink(elem *list.Element) int64 {
	it := c.recency.Remove(elem).(*item)
	delete(c.index, it.key)
	c.used -= it.size
	return it.size
}

func (c *Cache) count(fn func(*counters)) {
	if c.stats != nil {
		fn(c.stats)
	}
}

// sizeOf estimates the footprint of an entry. Only byte and string payloads
// are measured; other values count as overhead plus key.
func sizeOf(key string, value interface{}) int64 {
	size := int64(entryOverhead + len(key))
	switch v := value.(type) {
	case []byte:
		size += int64(len(v))
	case string:
		size += int64(len(v))
	}
	return size
}
