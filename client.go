package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

// Client coordinates dashboard requests against the backend API. It layers a
// security-token lifecycle, a session pre-flight gate, bounded response
// caching, per-endpoint rate limiting, in-flight de-duplication and
// opportunistic batching around the standard net/http client. A single
// instance owned by the application's composition root is safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string

	cache          Cache
	cacheEnabled   bool
	cacheTTL       time.Duration
	cacheCapacity  int
	cacheCondition CacheCondition
	cacheKeyFunc   func(method, url string) string

	limiter       *endpointLimiter
	rateLimit     int
	rateWindow    time.Duration
	throttleDelay time.Duration

	inflight       *inflightTracker
	dedupEnabled   bool
	dedupCondition DeduplicationCondition

	batch           *batchCoordinator
	batchWindow     time.Duration
	batchCategories []string

	tokens         *tokenManager
	tokenInterval  time.Duration
	tokenMinLength int

	gate *authGate

	circuitBreaker *CircuitBreaker

	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger
	clock   clock.Clock

	validationError error
}

// New constructs a Client from functional options. A best effort validation
// is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		httpClient:        &http.Client{Jar: jar},
		cacheEnabled:      true,
		cacheTTL:          DefaultCacheTTL,
		cacheCapacity:     DefaultCacheCapacity,
		cacheCondition:    DefaultCacheCondition,
		cacheKeyFunc:      DefaultCacheKeyFunc,
		rateLimit:         DefaultMaxRequestsPerSecond,
		rateWindow:        DefaultRateWindow,
		throttleDelay:     DefaultThrottleDelay,
		dedupEnabled:      true,
		dedupCondition:    DefaultDeduplicationCondition,
		batchWindow:       DefaultBatchWindow,
		batchCategories:   []string{"analytics", "dashboard"},
		tokenInterval:     DefaultTokenFetchInterval,
		tokenMinLength:    DefaultTokenMinLength,
		maxRetries:        0,
		initialBackoff:    100 * time.Millisecond,
		maxBackoff:        10 * time.Second,
		backoffMultiplier: 2.0,
		jitter:            0.1,
		debug:             DefaultDebugConfig(),
	}

	for _, option := range options {
		option(c)
	}

	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.cacheEnabled && c.cache == nil {
		c.cache = newBoundedCache(c.cacheCapacity, c.clock)
	}
	c.limiter = newEndpointLimiter(c.rateLimit, c.rateWindow, c.clock)
	c.inflight = newInflightTracker()
	c.batch = newBatchCoordinator(c.batchWindow, c.batchCategories, c.clock)
	if c.metrics != nil {
		c.batch.onFlush = c.metrics.RecordBatchFlush
	}
	c.tokens = newTokenManager(c.tokenInterval, c.tokenMinLength, c.clock)
	c.tokens.fetch = c.fetchToken
	c.gate = newAuthGate(c.httpClient, c.baseURL+sessionCheckPath)

	if err := c.ValidateConfiguration(); err != nil {
		c.validationError = err
	}

	return c
}

// Get performs a coordinated GET. Query parameters are encoded
// deterministically (sorted keys, nil values omitted) so cache and
// de-duplication keys are stable. useCache controls whether a fresh cached
// result may be returned without a network call.
func (c *Client) Get(ctx context.Context, path string, params Params, useCache bool) (*Response, error) {
	fullURL, err := c.buildURL(path, params)
	if err != nil {
		return nil, err
	}
	return c.coordinate(ctx, http.MethodGet, fullURL, nil, useCache)
}

// Post performs a coordinated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, data any) (*Response, error) {
	return c.mutate(ctx, http.MethodPost, path, data)
}

// Put performs a coordinated PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, data any) (*Response, error) {
	return c.mutate(ctx, http.MethodPut, path, data)
}

// Delete performs a coordinated DELETE.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.mutate(ctx, http.MethodDelete, path, nil)
}

// Enqueue defers the request until the current batch window flushes.
// Requests whose id matches a bulk-friendly category are dispatched
// concurrently with their batch-mates; the rest run one at a time in enqueue
// order. Each caller is resolved independently.
func (c *Client) Enqueue(ctx context.Context, id string, fn BatchFunc) (*Response, error) {
	return c.batch.enqueue(ctx, id, fn)
}

// ClearToken discards the held security token; the next mutating request
// fetches a fresh one without throttling.
func (c *Client) ClearToken() {
	c.tokens.Invalidate()
}

// ClearCache empties the response cache.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
		if c.metrics != nil {
			c.metrics.RecordCacheSize(0)
		}
	}
}

// ClearCacheForURL removes every cached entry whose key contains pattern,
// returning how many were removed. Call after mutating a resource family
// outside this client.
func (c *Client) ClearCacheForURL(pattern string) int {
	if c.cache == nil {
		return 0
	}
	removed := c.cache.Invalidate(pattern)
	if c.metrics != nil {
		c.metrics.RecordCacheSize(c.cache.Len())
	}
	return removed
}

// RefreshSession discards the held token and re-probes the session-check
// endpoint, reporting whether the session is still valid.
func (c *Client) RefreshSession(ctx context.Context) bool {
	c.tokens.Invalidate()
	return c.gate.IsSessionValid(ctx)
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

func (c *Client) mutate(ctx context.Context, method, path string, data any) (*Response, error) {
	body, err := jsonBody(data)
	if err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeValidation,
			Message: "failed to encode request body",
			Cause:   err,
			Method:  method,
		}
	}
	fullURL, err := c.buildURL(path, nil)
	if err != nil {
		return nil, err
	}
	return c.coordinate(ctx, method, fullURL, body, false)
}

// coordinate is the entry into the pipeline: de-duplication first, then the
// cache / rate-limit / gate / token / transport stages in dispatch.
func (c *Client) coordinate(ctx context.Context, method, fullURL string, body []byte, useCache bool) (*Response, error) {
	start := c.clock.Now()
	endpoint := endpointPath(fullURL)

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "method", method, "url", fullURL)
	}

	if c.metrics != nil {
		c.metrics.RecordRequestStart(method, endpoint)
		defer c.metrics.RecordRequestEnd(method, endpoint)
	}

	var resp *Response
	var err error

	if c.dedupEnabled && c.dedupCondition(method) {
		sig := requestSignature(method, fullURL, body)
		entry, owner := c.inflight.getOrCreate(sig)
		if !owner {
			if c.metrics != nil {
				c.metrics.RecordDeduplicationHit(endpoint)
			}
			if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
				c.logger.Debug("Joined in-flight request", "requestID", requestID, "signature", sig)
			}
			resp, err = entry.wait(ctx)
		} else {
			// The shared call is detached from this caller's cancellation:
			// once dispatched it runs to completion so other waiters always
			// observe an outcome.
			resp, err = c.dispatch(context.WithoutCancel(ctx), method, fullURL, body, useCache, requestID, endpoint)
			c.inflight.complete(sig, resp, err)
		}
	} else {
		resp, err = c.dispatch(ctx, method, fullURL, body, useCache, requestID, endpoint)
	}

	if c.metrics != nil {
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		c.metrics.RecordRequest(method, endpoint, statusCode, c.clock.Now().Sub(start))
	}

	return resp, err
}

// dispatch serves from cache when allowed, applies the rate limiter, then
// executes and stores the result.
func (c *Client) dispatch(ctx context.Context, method, fullURL string, body []byte, useCache bool, requestID, endpoint string) (*Response, error) {
	isGet := method == http.MethodGet
	cacheable := isGet && c.cache != nil && c.cacheCondition(method, fullURL)
	cacheKey := c.cacheKeyFunc(method, fullURL)

	if cacheable && useCache {
		if cached, ok := c.cache.Get(cacheKey); ok {
			if c.metrics != nil {
				c.metrics.RecordCacheHit(endpoint)
			}
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("Cache hit", "requestID", requestID, "cacheKey", cacheKey)
			}
			return cached, nil
		}
		if c.metrics != nil {
			c.metrics.RecordCacheMiss(endpoint)
		}
	}

	if isGet && c.limiter.ShouldThrottle(endpoint) {
		if c.metrics != nil {
			c.metrics.RecordThrottle(endpoint)
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
			c.logger.Warn("Rate limit reached", "requestID", requestID, "endpoint", endpoint)
		}
		// Throttling degrades latency, never drops: serve any cached value,
		// even when the caller opted out of the cache, else back off briefly
		// and proceed.
		if c.cache != nil {
			if cached, ok := c.cache.Get(cacheKey); ok {
				if c.metrics != nil {
					c.metrics.RecordCacheHit(endpoint)
				}
				return cached, nil
			}
		}
		if err := c.sleep(ctx, c.throttleDelay); err != nil {
			return nil, err
		}
	}

	resp, err := c.execute(ctx, method, fullURL, body, requestID, endpoint)
	if err != nil {
		return nil, err
	}

	if cacheable && useCache && resp.StatusCode < 400 {
		c.cache.Set(cacheKey, resp, c.cacheTTLForContext(ctx))
		if c.metrics != nil {
			c.metrics.RecordCacheSize(c.cache.Len())
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Response cached", "requestID", requestID, "cacheKey", cacheKey)
		}
	}

	if !isGet && resp.StatusCode < 400 && c.cache != nil {
		// A successful mutation makes cached reads for this resource family
		// stale.
		c.cache.Invalidate(endpoint)
		if c.metrics != nil {
			c.metrics.RecordCacheSize(c.cache.Len())
		}
	}

	return resp, nil
}

// execute is the request executor: session gate, circuit breaker, token
// attach, transport, retries. Transport errors never reach the caller raw.
func (c *Client) execute(ctx context.Context, method, fullURL string, body []byte, requestID, endpoint string) (*Response, error) {
	if c.requiresAuth(fullURL) && !c.gate.IsSessionValid(ctx) {
		if c.metrics != nil {
			c.metrics.RecordAuthDenied(endpoint)
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
			c.logger.Warn("Session invalid, synthesizing unauthorized result", "requestID", requestID, "endpoint", endpoint)
		}
		return unauthorizedResponse(), nil
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		if c.metrics != nil {
			c.metrics.RecordError(ErrorTypeCircuitOpen, method, endpoint)
		}
		return nil, &ClientError{
			Type:      ErrorTypeCircuitOpen,
			Message:   "circuit breaker is open",
			Cause:     ErrCircuitOpen,
			RequestID: requestID,
			Method:    method,
			URL:       fullURL,
			Endpoint:  endpoint,
			Timestamp: c.clock.Now(),
		}
	}

	var token string
	if isMutating(method) {
		// Token absence is tolerated; the server is the final authority.
		token, _ = c.tokens.Acquire(ctx)
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.transport(ctx, method, fullURL, body, token)

		if c.circuitBreaker != nil {
			if err != nil || resp.StatusCode >= 500 {
				c.circuitBreaker.RecordFailure()
			} else {
				c.circuitBreaker.RecordSuccess()
			}
		}

		transient := err != nil || (resp != nil && resp.StatusCode >= 500)
		if transient && method == http.MethodGet && attempt < c.maxRetries {
			if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
				c.logger.Info("Retrying request", "requestID", requestID, "attempt", attempt+1, "maxRetries", c.maxRetries)
			}
			if serr := c.sleep(ctx, c.calculateBackoff(attempt)); serr != nil {
				return nil, serr
			}
			continue
		}

		if err != nil {
			if c.metrics != nil {
				c.metrics.RecordError(ErrorTypeNetwork, method, endpoint)
			}
			return nil, &ClientError{
				Type:      ErrorTypeNetwork,
				Message:   "network request failed",
				Cause:     err,
				RequestID: requestID,
				Method:    method,
				URL:       fullURL,
				Endpoint:  endpoint,
				Timestamp: c.clock.Now(),
			}
		}
		return resp, nil
	}
}

// transport performs one network round trip and materializes the body into
// an immutable Response.
func (c *Client) transport(ctx context.Context, method, fullURL string, body []byte, token string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set(headerRequestedWith, requestedWithValue)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(headerCSRFToken, token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	const maxBodySize = 10 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header.Clone(),
		Body:       respBody,
	}, nil
}

// fetchToken verifies the session and requests a fresh security token.
// Wired into the token manager at construction.
func (c *Client) fetchToken(ctx context.Context) (string, error) {
	if !c.gate.IsSessionValid(ctx) {
		if c.metrics != nil {
			c.metrics.RecordTokenFetch("unauthenticated")
		}
		return "", ErrTokenUnavailable
	}

	resp, err := c.transport(ctx, http.MethodGet, c.baseURL+csrfTokenPath, nil, "")
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordTokenFetch("error")
		}
		return "", err
	}
	if !resp.IsSuccess() {
		if c.metrics != nil {
			c.metrics.RecordTokenFetch("error")
		}
		return "", ErrTokenUnavailable
	}

	var payload struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		if c.metrics != nil {
			c.metrics.RecordTokenFetch("invalid")
		}
		return "", err
	}

	token := strings.TrimSpace(payload.CSRFToken)
	if len(token) < c.tokenMinLength {
		if c.metrics != nil {
			c.metrics.RecordTokenFetch("invalid")
		}
		return "", ErrTokenUnavailable
	}

	if c.metrics != nil {
		c.metrics.RecordTokenFetch("ok")
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogToken && c.logger != nil {
		c.logger.Debug("Security token refreshed")
	}
	return token, nil
}

// buildURL joins the base URL with path and appends deterministically encoded
// query parameters. Parameters with nil values are omitted.
func (c *Client) buildURL(path string, params Params) (string, error) {
	full := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		full = c.baseURL + path
	}

	if len(params) == 0 {
		return full, nil
	}

	u, err := url.Parse(full)
	if err != nil {
		return "", &ClientError{
			Type:    ErrorTypeValidation,
			Message: fmt.Sprintf("invalid request URL %q", full),
			Cause:   err,
		}
	}

	query := u.Query()
	for key, value := range params {
		if value == nil {
			continue
		}
		query.Set(key, fmt.Sprint(value))
	}
	u.RawQuery = query.Encode() // Encode sorts keys
	return u.String(), nil
}

// requiresAuth reports whether the target endpoint sits outside the auth
// namespace and therefore needs a valid session.
func (c *Client) requiresAuth(fullURL string) bool {
	return !strings.Contains(endpointPath(fullURL), authNamespace)
}

// sleep waits for d on the injected clock, returning early on cancellation.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := c.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := time.Duration(float64(c.initialBackoff) * pow(c.backoffMultiplier, attempt))
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	if c.jitter > 0 {
		backoff += time.Duration(float64(backoff) * c.jitter * rand.Float64())
	}
	return backoff
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// endpointPath extracts the URL path without query string, used for rate
// limiting windows and metrics labels.
func endpointPath(fullURL string) string {
	u, err := url.Parse(fullURL)
	if err != nil || u.Path == "" {
		return fullURL
	}
	return u.Path
}
