package apiclient

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInflightTrackerOwnership(t *testing.T) {
	tracker := newInflightTracker()

	_, owner := tracker.getOrCreate("sig")
	if !owner {
		t.Error("first caller should own the call")
	}

	entry2, owner2 := tracker.getOrCreate("sig")
	if owner2 {
		t.Error("second caller should join, not own")
	}

	tracker.complete("sig", testResponse("shared"), nil)

	resp, err := entry2.wait(context.Background())
	if err != nil {
		t.Fatalf("wait returned error: %v", err)
	}
	if string(resp.Body) != "shared" {
		t.Errorf("waiter got %q, want shared", resp.Body)
	}
}

func TestInflightTrackerRemovedOnSettle(t *testing.T) {
	tracker := newInflightTracker()

	tracker.getOrCreate("sig")
	tracker.complete("sig", nil, errors.New("boom"))

	// The mapping is gone the instant the call settles, so the next caller
	// owns a fresh call even though the failure just happened.
	if _, owner := tracker.getOrCreate("sig"); !owner {
		t.Error("signature should be free immediately after settle")
	}
}

func TestInflightWaitersGetIndependentCopies(t *testing.T) {
	tracker := newInflightTracker()

	tracker.getOrCreate("sig")
	w1, _ := tracker.getOrCreate("sig")
	w2, _ := tracker.getOrCreate("sig")
	tracker.complete("sig", testResponse("payload"), nil)

	r1, err := w1.wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	r1.Body[0] = 'X'

	r2, err := w2.wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if string(r2.Body) != "payload" {
		t.Errorf("waiter 2 saw mutated payload %q", r2.Body)
	}
}

func TestInflightWaitSettledWithoutResult(t *testing.T) {
	tracker := newInflightTracker()

	entry, _ := tracker.getOrCreate("sig")
	tracker.complete("sig", nil, nil)

	_, err := entry.wait(context.Background())
	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeInternal {
		t.Errorf("want internal error for defective shared result, got %v", err)
	}
}

func TestInflightWaitContextCancel(t *testing.T) {
	tracker := newInflightTracker()
	entry, _ := tracker.getOrCreate("sig")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := entry.wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("want deadline error, got %v", err)
	}

	// The abandoned waiter must not break later completion.
	tracker.complete("sig", testResponse("late"), nil)
}

func TestRequestSignature(t *testing.T) {
	getSig := requestSignature("GET", "/api/v1/items", nil)
	if got := requestSignature("GET", "/api/v1/items", nil); got != getSig {
		t.Error("identical requests must share a signature")
	}
	if requestSignature("POST", "/api/v1/items", nil) == getSig {
		t.Error("method must participate in the signature")
	}
	if requestSignature("GET", "/api/v1/others", nil) == getSig {
		t.Error("URL must participate in the signature")
	}

	a := requestSignature("POST", "/api/v1/items", []byte(`{"name":"a"}`))
	b := requestSignature("POST", "/api/v1/items", []byte(`{"name":"b"}`))
	if a == b {
		t.Error("body must participate in the signature")
	}
	if a != requestSignature("POST", "/api/v1/items", []byte(`{"name":"a"}`)) {
		t.Error("identical bodies must share a signature")
	}
}
