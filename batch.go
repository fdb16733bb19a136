package apiclient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// BatchFunc produces the response for one queued request when its batch
// flushes.
type BatchFunc func(ctx context.Context) (*Response, error)

type batchResult struct {
	resp *Response
	err  error
}

type queuedRequest struct {
	id     string
	ctx    context.Context
	fn     BatchFunc
	result chan batchResult
}

// batchCoordinator briefly delays dispatch of enqueued requests so that
// same-class ones arriving within the flush window run as one parallel
// burst. Each caller is resolved independently: one failure never fails its
// batch-mates. The coordinator trades up to one flush window of latency for
// fewer, better-parallelized dispatch cycles.
type batchCoordinator struct {
	mu         sync.Mutex
	queue      []*queuedRequest
	scheduled  bool
	window     time.Duration
	categories []string
	clock      clock.Clock

	// onFlush, when set, observes the size of each dispatched class
	// ("batchable" / "individual").
	onFlush func(class string, size int)
}

func newBatchCoordinator(window time.Duration, categories []string, clk clock.Clock) *batchCoordinator {
	return &batchCoordinator{
		window:     window,
		categories: categories,
		clock:      clk,
	}
}

// enqueue adds the request to the shared queue, schedules a flush if none is
// pending, and blocks until the flush resolves this request or ctx is
// cancelled. Cancellation releases only the waiter; the queued work still
// runs at flush time.
func (b *batchCoordinator) enqueue(ctx context.Context, id string, fn BatchFunc) (*Response, error) {
	q := &queuedRequest{
		id:     id,
		ctx:    ctx,
		fn:     fn,
		result: make(chan batchResult, 1),
	}

	b.mu.Lock()
	b.queue = append(b.queue, q)
	if !b.scheduled {
		b.scheduled = true
		b.clock.AfterFunc(b.window, b.flush)
	}
	b.mu.Unlock()

	select {
	case res := <-q.result:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flush drains the queue, dispatches batchable requests concurrently and the
// rest one at a time in enqueue order, then leaves the coordinator idle until
// the next enqueue.
func (b *batchCoordinator) flush() {
	b.mu.Lock()
	queue := b.queue
	b.queue = nil
	b.scheduled = false
	b.mu.Unlock()

	var batchable, individual []*queuedRequest
	for _, q := range queue {
		if b.isBatchable(q.id) {
			batchable = append(batchable, q)
		} else {
			individual = append(individual, q)
		}
	}

	if b.onFlush != nil {
		b.onFlush("batchable", len(batchable))
		b.onFlush("individual", len(individual))
	}

	var wg sync.WaitGroup
	for _, q := range batchable {
		wg.Add(1)
		go func(q *queuedRequest) {
			defer wg.Done()
			resp, err := q.fn(q.ctx)
			q.result <- batchResult{resp: resp, err: err}
		}(q)
	}

	for _, q := range individual {
		resp, err := q.fn(q.ctx)
		q.result <- batchResult{resp: resp, err: err}
	}

	wg.Wait()
}

// isBatchable reports whether the request id belongs to a bulk-friendly
// category (analytics and dashboard reads by default).
func (b *batchCoordinator) isBatchable(id string) bool {
	for _, category := range b.categories {
		if strings.Contains(id, category) {
			return true
		}
	}
	return false
}
