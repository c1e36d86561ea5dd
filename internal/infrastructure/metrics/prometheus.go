package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector
	registry  *prometheus.Registry
	handler   http.Handler

	// Prometheus metrics
	cacheHitRate     prometheus.Gauge
	cacheKeys        prometheus.Gauge
	cacheMemoryBytes prometheus.Gauge
	cacheHits        prometheus.CounterFunc
	cacheMisses      prometheus.CounterFunc
	cacheEvictions   prometheus.CounterFunc
	allowed          prometheus.CounterFunc
	denied           prometheus.CounterFunc
	grpcRequests     *prometheus.CounterVec
	grpcDuration     *prometheus.HistogramVec
	grpcErrors       *prometheus.CounterVec
}

// NewPrometheusExporter creates a new Prometheus exporter with its own registry.
// Each exporter can be created independently, so tests do not collide on registration.
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	e := &PrometheusExporter{
		collector: collector,
		registry:  prometheus.NewRegistry(),
		cacheHitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "epiguard_user_cache_hit_rate",
			Help: "Current user cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "epiguard_user_cache_keys_current",
			Help: "Current number of keys in the in-process user cache",
		}),
		cacheMemoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "epiguard_user_cache_memory_bytes",
			Help: "Current memory usage of the in-process user cache in bytes",
		}),
		cacheHits: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "epiguard_user_cache_hits_total",
			Help: "Total number of user cache hits",
		}, func() float64 { return float64(collector.GetCacheMetrics().Hits) }),
		cacheMisses: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "epiguard_user_cache_misses_total",
			Help: "Total number of user cache misses",
		}, func() float64 { return float64(collector.GetCacheMetrics().Misses) }),
		cacheEvictions: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "epiguard_user_cache_evictions_total",
			Help: "Total number of user cache evictions due to memory limits",
		}, func() float64 { return float64(collector.GetCacheMetrics().Evictions) }),
		allowed: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "epiguard_decisions_total",
			Help:        "Total number of permission decisions by outcome",
			ConstLabels: prometheus.Labels{"outcome": "allowed"},
		}, func() float64 { return float64(collector.GetDecisionMetrics().Allowed) }),
		denied: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "epiguard_decisions_total",
			Help:        "Total number of permission decisions by outcome",
			ConstLabels: prometheus.Labels{"outcome": "denied"},
		}, func() float64 { return float64(collector.GetDecisionMetrics().Denied) }),
		grpcRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epiguard_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method"},
		),
		grpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "epiguard_grpc_request_duration_seconds",
				Help:    "Duration of gRPC requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"method"},
		),
		grpcErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epiguard_grpc_errors_total",
				Help: "Total number of gRPC errors by status code",
			},
			[]string{"method", "code"},
		),
	}

	e.registry.MustRegister(
		e.cacheHitRate,
		e.cacheKeys,
		e.cacheMemoryBytes,
		e.cacheHits,
		e.cacheMisses,
		e.cacheEvictions,
		e.allowed,
		e.denied,
		e.grpcRequests,
		e.grpcDuration,
		e.grpcErrors,
	)
	e.handler = promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})

	return e
}

// Handler returns the http.Handler for the /metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return e.handler
}

// Registry exposes the registry for additional collectors.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}

// Update updates Gauge metrics from the collector.
// Counters are updated by the interceptor or read at scrape time, so only gauges are set here.
// This should be called periodically (e.g., every 10 seconds).
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cacheMetrics.HitRate)
	e.cacheKeys.Set(float64(cacheMetrics.KeysCurrent))
	e.cacheMemoryBytes.Set(float64(cacheMetrics.MemoryBytes))
}

// RecordRequest records a request in Prometheus.
func (e *PrometheusExporter) RecordRequest(method string) {
	e.grpcRequests.WithLabelValues(method).Inc()
}

// RecordDuration records a duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(method string, durationSeconds float64) {
	e.grpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordError records an error in Prometheus.
func (e *PrometheusExporter) RecordError(method, code string) {
	e.grpcErrors.WithLabelValues(method, code).Inc()
}
