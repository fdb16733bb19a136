package apiclient

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func TestMetricsCollectorCounters(t *testing.T) {
	registry := newTestRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequest("GET", "/transactions", 200, 120*time.Millisecond)
	mc.RecordRequest("GET", "/transactions", 200, 80*time.Millisecond)
	mc.RecordCacheHit("/transactions")
	mc.RecordCacheMiss("/transactions")
	mc.RecordDeduplicationHit("/transactions")
	mc.RecordThrottle("/transactions")
	mc.RecordTokenFetch("ok")
	mc.RecordAuthDenied("/transactions")
	mc.RecordError(ErrorTypeNetwork, "GET", "/transactions")

	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", "/transactions")); got != 2 {
		t.Errorf("requests_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("/transactions")); got != 1 {
		t.Errorf("cache_hits_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.dedupHits.WithLabelValues("/transactions")); got != 1 {
		t.Errorf("deduplication_hits_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.tokenFetches.WithLabelValues("ok")); got != 1 {
		t.Errorf("token_fetches_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues(ErrorTypeNetwork, "GET", "/transactions")); got != 1 {
		t.Errorf("errors_total = %v, want 1", got)
	}
}

func TestMetricsCollectorInFlightGauge(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(newTestRegistry())

	mc.RecordRequestStart("GET", "/x")
	mc.RecordRequestStart("GET", "/x")
	mc.RecordRequestEnd("GET", "/x")

	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "/x")); got != 1 {
		t.Errorf("requests_in_flight = %v, want 1", got)
	}
}

func TestMetricsCollectorCacheSize(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(newTestRegistry())

	mc.RecordCacheSize(42)
	if got := testutil.ToFloat64(mc.cacheSize); got != 42 {
		t.Errorf("cache_size = %v, want 42", got)
	}
}
