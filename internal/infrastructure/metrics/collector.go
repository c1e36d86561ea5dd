package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/asakaida/epiguard/pkg/cache"
	"github.com/asakaida/epiguard/pkg/cache/memorycache"
)

// Collector collects and aggregates metrics for the application.
type Collector struct {
	// API metrics
	apiRequests sync.Map // map[string]*uint64 - method -> count
	apiErrors   sync.Map // map[string]*uint64 - method -> error count
	apiCodes    sync.Map // map[string]*uint64 - status code -> error count
	apiDuration sync.Map // map[string]*durationValue - method -> total duration in seconds

	// Decision counters
	allowed uint64
	denied  uint64

	// Cache reference (optional, for querying cache-specific metrics)
	cache cache.Cache
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds cache performance metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	MemoryBytes int64
	Evictions   uint64
}

// DecisionMetrics holds permission decision counts.
type DecisionMetrics struct {
	Allowed uint64
	Denied  uint64
}

// APIMetrics holds API request metrics.
type APIMetrics struct {
	RequestCounts        map[string]uint64
	ErrorCounts          map[string]uint64
	ErrorCodes           map[string]uint64
	TotalDurationSeconds map[string]float64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache instance for collecting cache metrics.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// RecordRequest records an API request.
func (c *Collector) RecordRequest(method string) {
	counter := c.getOrCreateCounter(&c.apiRequests, method)
	atomic.AddUint64(counter, 1)
}

// RecordError records an API error and the status code it carried.
func (c *Collector) RecordError(method, code string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.apiErrors, method), 1)
	atomic.AddUint64(c.getOrCreateCounter(&c.apiCodes, code), 1)
}

// RecordDuration records the duration of an API call in seconds.
func (c *Collector) RecordDuration(method string, durationSeconds float64) {
	val, _ := c.apiDuration.LoadOrStore(method, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// RecordDecision records the outcome of one permission check. The exporter
// reads these counters at scrape time.
func (c *Collector) RecordDecision(allowed bool) {
	if allowed {
		atomic.AddUint64(&c.allowed, 1)
		return
	}
	atomic.AddUint64(&c.denied, 1)
}

// GetDecisionMetrics returns current decision counts.
func (c *Collector) GetDecisionMetrics() *DecisionMetrics {
	return &DecisionMetrics{
		Allowed: atomic.LoadUint64(&c.allowed),
		Denied:  atomic.LoadUint64(&c.denied),
	}
}

// GetCacheMetrics returns current cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	metrics := c.cache.Metrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	result := &CacheMetrics{
		Hits:      metrics.Hits,
		Misses:    metrics.Misses,
		HitRate:   metrics.HitRate(),
		Evictions: metrics.KeysEvicted,
	}

	// Key count and memory are only known for the in-process cache
	if memCache, ok := c.cache.(*memorycache.Cache); ok {
		result.KeysCurrent = int64(memCache.Len())
		result.MemoryBytes = memCache.Size()
	}

	return result
}

// GetAPIMetrics returns current API metrics.
func (c *Collector) GetAPIMetrics() *APIMetrics {
	result := &APIMetrics{
		RequestCounts:        make(map[string]uint64),
		ErrorCounts:          make(map[string]uint64),
		ErrorCodes:           make(map[string]uint64),
		TotalDurationSeconds: make(map[string]float64),
	}

	// Collect request counts
	c.apiRequests.Range(func(key, value interface{}) bool {
		method := key.(string)
		count := atomic.LoadUint64(value.(*uint64))
		result.RequestCounts[method] = count
		return true
	})

	// Collect error counts
	c.apiErrors.Range(func(key, value interface{}) bool {
		method := key.(string)
		count := atomic.LoadUint64(value.(*uint64))
		result.ErrorCounts[method] = count
		return true
	})

	c.apiCodes.Range(func(key, value interface{}) bool {
		result.ErrorCodes[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})

	// Collect duration totals
	c.apiDuration.Range(func(key, value interface{}) bool {
		method := key.(string)
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[method] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}
