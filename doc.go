// Package apiclient coordinates every HTTP request a financial-operations
// dashboard makes against its backend API. It wraps the standard net/http
// client with the coordination primitives the UI depends on:
//
//   - CSRF token lifecycle (single-flight fetch, throttled re-fetch, invalidation)
//   - Session pre-flight gate (local 401 synthesis for unauthenticated callers)
//   - Bounded, time-expiring response cache with substring invalidation
//   - Per-endpoint sliding-window rate limiting (degrades latency, never drops)
//   - In-flight request de-duplication (concurrent identical calls share one round trip)
//   - Opportunistic batching of bulk-friendly reads within a short flush window
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - Deterministic cache / de-duplication keys from stable URL encoding
//   - Extensibility via pluggable cache, logger, metrics and clock
//
// Typical usage:
//
//	client := apiclient.New(
//	    apiclient.WithBaseURL("https://ops.example.com/api/v1"),
//	    apiclient.WithCache(30*time.Second, 100),
//	    apiclient.WithRateLimit(10, time.Second),
//	    apiclient.WithDeduplication(),
//	)
//	resp, err := client.Get(ctx, "/transactions", apiclient.Params{"page": 1}, true)
//
// Responses carry their fully-read body as immutable bytes, so a single
// network round trip can serve any number of concurrent waiters; decode with
// Response.Parse, which turns non-success statuses into typed errors carrying
// the server-provided message.
package apiclient
