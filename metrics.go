package apiclient

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exposes Prometheus metrics for the request coordination
// lifecycle. It is safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   prometheus.Gauge

	dedupHits *prometheus.CounterVec

	throttledTotal *prometheus.CounterVec

	tokenFetches *prometheus.CounterVec

	authDenied *prometheus.CounterVec

	batchFlushSize *prometheus.HistogramVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer; tests pass a private registry to avoid cross-test collisions.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_requests_total",
				Help: "Total number of coordinated HTTP requests",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apiclient_request_duration_seconds",
				Help:    "Duration of coordinated HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "apiclient_requests_in_flight",
				Help: "Number of requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"endpoint"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"endpoint"},
		),
		cacheSize: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "apiclient_cache_size",
				Help: "Current number of entries in the response cache",
			},
		),
		dedupHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_deduplication_hits_total",
				Help: "Total number of requests that joined an in-flight call",
			},
			[]string{"endpoint"},
		),
		throttledTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_throttled_total",
				Help: "Total number of requests slowed by the rate limiter",
			},
			[]string{"endpoint"},
		),
		tokenFetches: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_token_fetches_total",
				Help: "Total number of security token fetch attempts by outcome",
			},
			[]string{"outcome"},
		),
		authDenied: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_auth_denied_total",
				Help: "Total number of requests short-circuited by the session gate",
			},
			[]string{"endpoint"},
		),
		batchFlushSize: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apiclient_batch_flush_size",
				Help:    "Number of requests dispatched per batch flush",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"class"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type", "method", "endpoint"},
		),
	}
}

// RecordRequestStart marks a request entering the coordination pipeline.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd marks a request leaving the pipeline.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRequest records a completed request with its final status.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	mc.requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode), endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordCacheHit records a response served from cache.
func (mc *MetricsCollector) RecordCacheHit(endpoint string) {
	mc.cacheHits.WithLabelValues(endpoint).Inc()
}

// RecordCacheMiss records a cache lookup that fell through to the network.
func (mc *MetricsCollector) RecordCacheMiss(endpoint string) {
	mc.cacheMisses.WithLabelValues(endpoint).Inc()
}

// RecordCacheSize records the current cache entry count.
func (mc *MetricsCollector) RecordCacheSize(size int) {
	mc.cacheSize.Set(float64(size))
}

// RecordDeduplicationHit records a request that joined an in-flight call.
func (mc *MetricsCollector) RecordDeduplicationHit(endpoint string) {
	mc.dedupHits.WithLabelValues(endpoint).Inc()
}

// RecordThrottle records a request slowed by the rate limiter.
func (mc *MetricsCollector) RecordThrottle(endpoint string) {
	mc.throttledTotal.WithLabelValues(endpoint).Inc()
}

// RecordTokenFetch records a token fetch attempt outcome ("ok", "invalid",
// "unauthenticated", "error" or "throttled").
func (mc *MetricsCollector) RecordTokenFetch(outcome string) {
	mc.tokenFetches.WithLabelValues(outcome).Inc()
}

// RecordAuthDenied records a locally synthesized unauthorized result.
func (mc *MetricsCollector) RecordAuthDenied(endpoint string) {
	mc.authDenied.WithLabelValues(endpoint).Inc()
}

// RecordBatchFlush records how many requests a flush dispatched per class
// ("batchable" or "individual").
func (mc *MetricsCollector) RecordBatchFlush(class string, size int) {
	if size > 0 {
		mc.batchFlushSize.WithLabelValues(class).Observe(float64(size))
	}
}

// RecordError records an error by taxonomy type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}
