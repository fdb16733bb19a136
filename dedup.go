package apiclient

import (
	"context"
	"crypto/sha256"
	"fmt"
	"hash/fnv"
	"sync"
)

// inflightEntry represents one outstanding network call shared between a
// single owner and any number of waiters.
type inflightEntry struct {
	mu   sync.Mutex
	resp *Response
	err  error
	done chan struct{}
}

// inflightTracker enforces the core invariant of the layer: at most one
// outstanding network call per unique (method, URL, body) triple at any
// instant. Entries are removed the moment the underlying call settles, so
// the very next identical request triggers a fresh call.
type inflightTracker struct {
	mu      sync.Mutex
	entries map[string]*inflightEntry
}

func newInflightTracker() *inflightTracker {
	return &inflightTracker{entries: make(map[string]*inflightEntry)}
}

// getOrCreate returns the in-flight entry for key. The second return value is
// true when the caller created the entry and therefore owns the network call.
// Check-then-insert happens under one lock so two callers cannot both become
// owners.
func (t *inflightTracker) getOrCreate(key string) (*inflightEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.entries[key]; exists {
		return entry, false
	}

	entry := &inflightEntry{done: make(chan struct{})}
	t.entries[key] = entry
	return entry, true
}

// complete settles the entry and removes the mapping unconditionally, on
// success or failure, whether or not all waiters have consumed it.
func (t *inflightTracker) complete(key string, resp *Response, err error) {
	t.mu.Lock()
	entry, exists := t.entries[key]
	delete(t.entries, key)
	t.mu.Unlock()

	if !exists {
		return
	}

	entry.mu.Lock()
	entry.resp = resp
	entry.err = err
	entry.mu.Unlock()
	close(entry.done)
}

// wait blocks until the owning call settles or ctx is cancelled. Each waiter
// receives an independent copy of the shared response; waiters never see the
// owner's response object directly.
func (e *inflightEntry) wait(ctx context.Context) (*Response, error) {
	select {
	case <-e.done:
		e.mu.Lock()
		resp, err := e.resp, e.err
		e.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, &ClientError{
				Type:    ErrorTypeInternal,
				Message: "shared in-flight result settled without response or error",
			}
		}
		return resp.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// requestSignature identifies a request by method, full URL and body content.
// Bodies are hashed so large payloads do not bloat the in-flight map keys.
func requestSignature(method, url string, body []byte) string {
	h := fnv.New64a()
	h.Write([]byte(method))
	h.Write([]byte{':'})
	h.Write([]byte(url))
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		h.Write(sum[:])
	}
	return fmt.Sprintf("%x", h.Sum64())
}
