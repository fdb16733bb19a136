package apiclient

import (
	"time"
)

// Params holds query parameters for a GET request. Values are rendered with
// fmt.Sprint; nil values are omitted so that cache and de-duplication keys
// stay stable regardless of how callers build the map.
type Params map[string]any

// CacheCondition decides whether a request's result may be cached.
type CacheCondition func(method, url string) bool

// DefaultCacheCondition caches successful GET results only.
func DefaultCacheCondition(method, url string) bool {
	return method == "GET"
}

// DeduplicationCondition decides whether a request is eligible for in-flight
// de-duplication.
type DeduplicationCondition func(method string) bool

// DefaultDeduplicationCondition de-duplicates safe idempotent methods. Two
// overlapping POSTs with identical payloads are deliberately treated as
// independent calls.
func DefaultDeduplicationCondition(method string) bool {
	return method == "GET" || method == "HEAD" || method == "OPTIONS"
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// DebugConfig controls per-concern debug logging.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogCache     bool
	LogRateLimit bool
	LogBatch     bool
	LogToken     bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a DebugConfig with all request-path logging
// enabled and UUID request IDs.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogCache:     true,
		LogRateLimit: true,
		LogBatch:     true,
		LogToken:     true,
		RequestIDGen: defaultRequestID,
	}
}

// Defaults for the coordination layer. Each can be overridden with the
// corresponding option.
const (
	DefaultCacheTTL             = 30 * time.Second
	DefaultCacheCapacity        = 100
	DefaultMaxRequestsPerSecond = 10
	DefaultRateWindow           = time.Second
	DefaultThrottleDelay        = 100 * time.Millisecond
	DefaultBatchWindow          = 50 * time.Millisecond
	DefaultTokenFetchInterval   = 2 * time.Second
	DefaultTokenMinLength       = 16
)

// Endpoint paths within the auth namespace. Requests under authNamespace
// bypass the session gate; everything else is treated as protected.
const (
	authNamespace    = "/auth/"
	sessionCheckPath = "/auth/check"
	csrfTokenPath    = "/auth/csrf-token"
)

// Headers attached by the executor.
const (
	headerCSRFToken     = "X-CSRFToken"
	headerRequestedWith = "X-Requested-With"
	requestedWithValue  = "XMLHttpRequest"
)
