package apiclient

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// endpointLimiter applies sliding-window rate limiting per endpoint path.
// Timestamps older than the window are pruned lazily on each check. The
// limiter never drops a request: on throttle the caller serves from cache or
// waits a short fixed delay and proceeds.
type endpointLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
	clock   clock.Clock
}

func newEndpointLimiter(limit int, window time.Duration, clk clock.Clock) *endpointLimiter {
	return &endpointLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		clock:   clk,
	}
}

// ShouldThrottle reports whether a dispatch to endpoint would exceed the
// per-window ceiling. Below the ceiling it records the dispatch and returns
// false; at or above it returns true without recording a new timestamp.
func (l *endpointLimiter) ShouldThrottle(endpoint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	recent := l.windows[endpoint][:0]
	for _, ts := range l.windows[endpoint] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.limit {
		l.windows[endpoint] = recent
		return true
	}

	l.windows[endpoint] = append(recent, now)
	return false
}
