// Package singleflight collapses concurrent calls for the same key into one
// execution. The token manager uses it to guarantee at most one security
// token fetch is in flight at any time.
package singleflight

import "sync"

// Group manages a set of in-flight calls keyed by string.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

type call struct {
	wg  sync.WaitGroup
	val any
	err error
}

// New creates an empty Group.
func New() *Group {
	return &Group{m: make(map[string]*call)}
}

// Do executes fn, making sure only one execution is in flight for key at a
// time. Duplicate callers block until the owner completes and receive the
// same result. The key is released the moment the call settles, so the next
// Do after completion starts a fresh execution.
func (g *Group) Do(key string, fn func() (any, error)) (any, bool, error) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, false, c.err
	}

	c := &call{}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	g.mu.Lock()
	if g.m[key] == c {
		delete(g.m, key)
	}
	g.mu.Unlock()
	c.wg.Done()

	return c.val, true, c.err
}

// Forget drops any in-flight call for key. A subsequent Do will execute fn
// even if a previous owner has not settled; use only when the previous
// result must not be shared (e.g. after logout).
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}
