package apiclient

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/ivala2081/pipeline-apiclient/internal/singleflight"
)

const tokenFlightKey = "csrf-token"

// tokenManager owns the security token used to authorize mutating requests.
// At most one fetch is in flight at any time; concurrent acquirers share the
// same fetch. Fetch attempts are additionally gated so a burst of mutations
// after a failed fetch cannot hammer the token endpoint.
type tokenManager struct {
	mu         sync.Mutex
	token      string
	generation uint64
	gate       *rate.Limiter
	interval   time.Duration
	minLength  int
	group      *singleflight.Group
	clock      clock.Clock

	// fetch performs the session check plus network fetch. Wired by the
	// client at construction.
	fetch func(ctx context.Context) (string, error)
}

func newTokenManager(interval time.Duration, minLength int, clk clock.Clock) *tokenManager {
	return &tokenManager{
		gate:      rate.NewLimiter(rate.Every(interval), 1),
		interval:  interval,
		minLength: minLength,
		group:     singleflight.New(),
		clock:     clk,
	}
}

// Acquire returns the held token, joins an in-flight fetch, or starts a new
// fetch when the gate allows one. Any failure yields an absent token, never
// an error: the request proceeds without a token and the server is the final
// authority.
func (tm *tokenManager) Acquire(ctx context.Context) (string, bool) {
	tm.mu.Lock()
	if tm.token != "" {
		token := tm.token
		tm.mu.Unlock()
		return token, true
	}
	gen := tm.generation
	tm.mu.Unlock()

	v, _, err := tm.group.Do(tokenFlightKey, func() (any, error) {
		// Only the prospective owner consumes a gate slot; waiters joining
		// an in-flight fetch are not throttled.
		tm.mu.Lock()
		gate := tm.gate
		tm.mu.Unlock()
		if !gate.AllowN(tm.clock.Now(), 1) {
			return "", ErrTokenFetchThrottled
		}

		token, err := tm.fetch(ctx)
		if err != nil {
			return "", err
		}
		if len(token) < tm.minLength {
			return "", ErrTokenUnavailable
		}

		tm.mu.Lock()
		// A concurrent Invalidate (logout) outranks this fetch.
		if tm.generation == gen {
			tm.token = token
		}
		tm.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", false
	}
	return v.(string), true
}

// Invalidate clears the held token and resets the fetch gate so the next
// Acquire is unthrottled.
func (tm *tokenManager) Invalidate() {
	tm.mu.Lock()
	tm.token = ""
	tm.generation++
	tm.gate = rate.NewLimiter(rate.Every(tm.interval), 1)
	tm.mu.Unlock()
}

// Token returns the currently held token without triggering a fetch.
func (tm *tokenManager) Token() (string, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.token, tm.token != ""
}
