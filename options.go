package apiclient

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/benbjohnson/clock"
)

// Option configures a Client at construction.
type Option func(*Client)

// WithBaseURL sets the backend base path every relative request path is
// resolved against, e.g. "https://ops.example.com/api/v1".
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client. The client should carry a cookie
// jar so session credentials accompany every call.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets a transport-level timeout. The coordination layer itself
// enforces none: a hung call blocks only its own signature's waiters.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithCache sets the response cache TTL and capacity.
func WithCache(ttl time.Duration, capacity int) Option {
	return func(c *Client) {
		c.cacheEnabled = true
		c.cacheTTL = ttl
		c.cacheCapacity = capacity
	}
}

// WithCustomCache sets a custom cache implementation.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheEnabled = true
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithoutCache disables response caching entirely.
func WithoutCache() Option {
	return func(c *Client) {
		c.cacheEnabled = false
		c.cache = nil
	}
}

// WithCacheCondition sets a custom cache eligibility predicate.
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithCacheKeyFunc sets a custom cache key function.
func WithCacheKeyFunc(fn func(method, url string) string) Option {
	return func(c *Client) {
		c.cacheKeyFunc = fn
	}
}

// WithRateLimit sets the per-endpoint ceiling and its sliding window.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(c *Client) {
		c.rateLimit = limit
		c.rateWindow = window
	}
}

// WithThrottleDelay sets how long a throttled request without a cached
// fallback waits before proceeding.
func WithThrottleDelay(d time.Duration) Option {
	return func(c *Client) {
		c.throttleDelay = d
	}
}

// WithDeduplication enables in-flight de-duplication (the default).
func WithDeduplication() Option {
	return func(c *Client) {
		c.dedupEnabled = true
	}
}

// WithoutDeduplication disables in-flight de-duplication.
func WithoutDeduplication() Option {
	return func(c *Client) {
		c.dedupEnabled = false
	}
}

// WithDeduplicationCondition sets which methods are de-duplicated. Enabling
// it for mutating verbs collapses overlapping identical POSTs into one server
// call; only do this when the backend treats them as idempotent.
func WithDeduplicationCondition(fn DeduplicationCondition) Option {
	return func(c *Client) {
		c.dedupCondition = fn
	}
}

// WithBatchWindow sets the delay during which enqueued requests accumulate
// before a flush.
func WithBatchWindow(d time.Duration) Option {
	return func(c *Client) {
		c.batchWindow = d
	}
}

// WithBatchCategories sets the bulk-friendly id categories dispatched
// concurrently on flush.
func WithBatchCategories(categories ...string) Option {
	return func(c *Client) {
		c.batchCategories = categories
	}
}

// WithTokenFetchInterval sets the minimum spacing between security token
// fetch attempts.
func WithTokenFetchInterval(d time.Duration) Option {
	return func(c *Client) {
		c.tokenInterval = d
	}
}

// WithTokenMinLength sets the superficial validity check applied to fetched
// tokens.
func WithTokenMinLength(n int) Option {
	return func(c *Client) {
		c.tokenMinLength = n
	}
}

// WithCircuitBreaker enables backend protection with the given thresholds.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithMaxRetries sets the maximum retry attempts for transient GET failures.
// The default of zero preserves "one dispatch runs to completion or failure".
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithInitialBackoff sets the initial retry backoff duration.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = d
	}
}

// WithMaxBackoff sets the maximum retry backoff duration.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithBackoffMultiplier sets the backoff multiplier.
func WithBackoffMultiplier(f float64) Option {
	return func(c *Client) {
		c.backoffMultiplier = f
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.jitter = f
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		if c.logger == nil {
			c.logger = NewSimpleLogger()
		}
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator sets a custom request-ID generator for debug traces.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithClock injects the clock used for TTLs, rate windows, batch flushes and
// throttle backoff. Tests pass a mock for deterministic time.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.clock = clk
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error when it is unusable.
func (c *Client) ValidateConfiguration() error {
	var errs []string

	errs = append(errs, c.validateURLConfig()...)
	errs = append(errs, c.validateCacheConfig()...)
	errs = append(errs, c.validateRateLimitConfig()...)
	errs = append(errs, c.validateBatchConfig()...)
	errs = append(errs, c.validateTokenConfig()...)
	errs = append(errs, c.validateRetryConfig()...)
	errs = append(errs, c.validateHTTPClientConfig()...)

	if len(errs) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errs),
		}
	}
	return nil
}

func (c *Client) validateURLConfig() []string {
	var errs []string
	if c.baseURL != "" {
		if _, err := url.Parse(c.baseURL); err != nil {
			errs = append(errs, fmt.Sprintf("baseURL is not a valid URL: %v", err))
		}
	}
	return errs
}

func (c *Client) validateCacheConfig() []string {
	var errs []string
	if c.cacheEnabled {
		if c.cacheTTL <= 0 {
			errs = append(errs, "cacheTTL must be positive when caching is enabled")
		}
		if c.cache == nil && c.cacheCapacity <= 0 {
			errs = append(errs, "cacheCapacity must be positive when caching is enabled")
		}
	}
	return errs
}

func (c *Client) validateRateLimitConfig() []string {
	var errs []string
	if c.rateLimit <= 0 {
		errs = append(errs, "rate limit ceiling must be positive")
	}
	if c.rateWindow <= 0 {
		errs = append(errs, "rate limit window must be positive")
	}
	if c.throttleDelay < 0 {
		errs = append(errs, "throttle delay must be non-negative")
	}
	return errs
}

func (c *Client) validateBatchConfig() []string {
	var errs []string
	if c.batchWindow <= 0 {
		errs = append(errs, "batch window must be positive")
	}
	return errs
}

func (c *Client) validateTokenConfig() []string {
	var errs []string
	if c.tokenInterval <= 0 {
		errs = append(errs, "token fetch interval must be positive")
	}
	if c.tokenMinLength <= 0 {
		errs = append(errs, "token minimum length must be positive")
	}
	return errs
}

func (c *Client) validateRetryConfig() []string {
	var errs []string
	if c.maxRetries < 0 {
		errs = append(errs, "maxRetries must be non-negative")
	}
	if c.maxRetries > 0 {
		if c.initialBackoff <= 0 {
			errs = append(errs, "initialBackoff must be positive when retries are enabled")
		}
		if c.maxBackoff < c.initialBackoff {
			errs = append(errs, "maxBackoff must be greater than or equal to initialBackoff")
		}
		if c.backoffMultiplier <= 0 {
			errs = append(errs, "backoffMultiplier must be positive")
		}
	}
	return errs
}

func (c *Client) validateHTTPClientConfig() []string {
	var errs []string
	if c.httpClient == nil {
		errs = append(errs, "HTTP client cannot be nil")
	}
	return errs
}
