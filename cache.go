package apiclient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ivala2081/pipeline-apiclient/internal/ordcache"
)

// Cache stores completed GET results keyed by method + full URL. Entries
// expire after a TTL and the store is bounded; inserting past the bound
// evicts the oldest entry by insertion order. Implementations must be safe
// for concurrent use and must hand out independent copies on Get.
type Cache interface {
	Get(key string) (*Response, bool)
	Set(key string, resp *Response, ttl time.Duration)
	Delete(key string)
	// Invalidate removes every entry whose key contains the substring,
	// returning how many were removed. Used to stop reads from returning
	// stale data for a resource family after a mutation.
	Invalidate(substr string) int
	Clear()
	Len() int
}

type boundedEntry struct {
	resp      *Response
	expiresAt time.Time
}

// BoundedCache is the default Cache: a fixed-capacity insertion-order map
// with lazy TTL expiry on lookup.
type BoundedCache struct {
	mu    sync.Mutex
	store *ordcache.Map
	clock clock.Clock
}

// NewBoundedCache creates a cache holding at most capacity entries.
func NewBoundedCache(capacity int) *BoundedCache {
	return newBoundedCache(capacity, clock.New())
}

func newBoundedCache(capacity int, clk clock.Clock) *BoundedCache {
	return &BoundedCache{
		store: ordcache.New(capacity),
		clock: clk,
	}
}

// Get returns a copy of the cached response, or absent when the entry is
// missing or older than its TTL. Expired entries are deleted as a side
// effect of the lookup.
func (c *BoundedCache) Get(key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}

	entry := v.(*boundedEntry)
	if c.clock.Now().After(entry.expiresAt) {
		c.store.Delete(key)
		return nil, false
	}

	return entry.resp.Clone(), true
}

// Set inserts or overwrites the entry under key, evicting the oldest entry
// first when the cache is full. The response is cloned on the way in so later
// caller mutations cannot corrupt the cache.
func (c *BoundedCache) Set(key string, resp *Response, ttl time.Duration) {
	if resp == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Put(key, &boundedEntry{
		resp:      resp.Clone(),
		expiresAt: c.clock.Now().Add(ttl),
	})
}

// Delete removes a single entry.
func (c *BoundedCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Delete(key)
}

// Invalidate removes every entry whose key contains substr.
func (c *BoundedCache) Invalidate(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.store.Keys() {
		if strings.Contains(key, substr) {
			c.store.Delete(key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (c *BoundedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Clear()
}

// Len returns the number of stored entries. Expired entries count until a
// lookup removes them.
func (c *BoundedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// DefaultCacheKeyFunc builds a cache key from method and the fully-encoded
// URL. Query parameters are already serialized deterministically by the
// executor, so identical logical requests always map to the same key.
func DefaultCacheKeyFunc(method, url string) string {
	return method + ":" + url
}

type contextKey string

const cacheControlKey contextKey = "apiclient_cache_control"

type cacheControl struct {
	ttl time.Duration
}

// WithContextCacheTTL overrides the cache TTL for requests issued with the
// returned context.
func WithContextCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, cacheControlKey, &cacheControl{ttl: ttl})
}

// cacheTTLForContext resolves the effective TTL for a request.
func (c *Client) cacheTTLForContext(ctx context.Context) time.Duration {
	if control, ok := ctx.Value(cacheControlKey).(*cacheControl); ok && control.ttl > 0 {
		return control.ttl
	}
	return c.cacheTTL
}
