package apiclient

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func testResponse(body string) *Response {
	return &Response{
		StatusCode: 200,
		Status:     "200 OK",
		Header:     make(http.Header),
		Body:       []byte(body),
	}
}

func TestBoundedCacheGetSet(t *testing.T) {
	cache := NewBoundedCache(10)

	if _, ok := cache.Get("missing"); ok {
		t.Error("Get(missing) should report absent")
	}

	cache.Set("k", testResponse("payload"), time.Minute)

	resp, ok := cache.Get("k")
	if !ok {
		t.Fatal("Get(k) should report present")
	}
	if string(resp.Body) != "payload" {
		t.Errorf("Body = %q, want payload", resp.Body)
	}
}

func TestBoundedCacheTTL(t *testing.T) {
	mock := clock.NewMock()
	cache := newBoundedCache(10, mock)

	cache.Set("k", testResponse("v"), 30*time.Second)

	if _, ok := cache.Get("k"); !ok {
		t.Error("entry should be fresh immediately after Set")
	}

	mock.Add(29 * time.Second)
	if _, ok := cache.Get("k"); !ok {
		t.Error("entry should still be fresh within the TTL")
	}

	mock.Add(2 * time.Second)
	if _, ok := cache.Get("k"); ok {
		t.Error("entry should be absent after the TTL elapses")
	}

	// Expired lookup deletes the entry as a side effect.
	if cache.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after expired lookup", cache.Len())
	}
}

func TestBoundedCacheEvictsOldestInsertion(t *testing.T) {
	cache := NewBoundedCache(DefaultCacheCapacity)

	for i := 0; i < DefaultCacheCapacity+1; i++ {
		cache.Set(fmt.Sprintf("key-%03d", i), testResponse("v"), time.Minute)
	}

	if cache.Len() != DefaultCacheCapacity {
		t.Errorf("Len() = %d, want exactly %d", cache.Len(), DefaultCacheCapacity)
	}
	if _, ok := cache.Get("key-000"); ok {
		t.Error("first-inserted key should have been evicted")
	}
	if _, ok := cache.Get("key-001"); !ok {
		t.Error("second-inserted key should survive")
	}
}

func TestBoundedCacheInvalidateSubstring(t *testing.T) {
	cache := NewBoundedCache(10)

	cache.Set("GET:/api/v1/transactions?page=1", testResponse("1"), time.Minute)
	cache.Set("GET:/api/v1/transactions?page=2", testResponse("2"), time.Minute)
	cache.Set("GET:/api/v1/ledgers", testResponse("3"), time.Minute)

	removed := cache.Invalidate("transactions")
	if removed != 2 {
		t.Errorf("Invalidate removed %d entries, want 2", removed)
	}
	if _, ok := cache.Get("GET:/api/v1/transactions?page=1"); ok {
		t.Error("transactions entry should be gone")
	}
	if _, ok := cache.Get("GET:/api/v1/ledgers"); !ok {
		t.Error("ledgers entry should survive")
	}
}

func TestBoundedCacheClear(t *testing.T) {
	cache := NewBoundedCache(10)

	cache.Set("a", testResponse("1"), time.Minute)
	cache.Set("b", testResponse("2"), time.Minute)
	cache.Clear()

	if cache.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after Clear", cache.Len())
	}
}

func TestBoundedCacheHandsOutCopies(t *testing.T) {
	cache := NewBoundedCache(10)
	cache.Set("k", testResponse("original"), time.Minute)

	first, _ := cache.Get("k")
	first.Body[0] = 'X'
	first.Header.Set("Mutated", "yes")

	second, _ := cache.Get("k")
	if string(second.Body) != "original" {
		t.Errorf("cached body corrupted by consumer mutation: %q", second.Body)
	}
	if second.Header.Get("Mutated") != "" {
		t.Error("cached headers corrupted by consumer mutation")
	}
}

func TestBoundedCacheSetClonesInput(t *testing.T) {
	cache := NewBoundedCache(10)
	resp := testResponse("original")
	cache.Set("k", resp, time.Minute)

	resp.Body[0] = 'X'

	got, _ := cache.Get("k")
	if string(got.Body) != "original" {
		t.Errorf("cache stored a live reference, got %q", got.Body)
	}
}
