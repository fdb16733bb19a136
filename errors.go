package apiclient

import (
	"errors"
	"fmt"
	"time"
)

// Error type identifiers carried by ClientError.Type.
const (
	ErrorTypeNetwork      = "Network"
	ErrorTypeServer       = "Server"
	ErrorTypeUnauthorized = "Unauthorized"
	ErrorTypeRateLimit    = "RateLimit"
	ErrorTypeCircuitOpen  = "CircuitOpen"
	ErrorTypeValidation   = "Validation"
	ErrorTypeInternal     = "Internal"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrCircuitOpen is returned when the circuit breaker is in open state.
	ErrCircuitOpen = errors.New("apiclient: circuit open")

	// ErrTokenUnavailable signals that no CSRF token could be obtained. It is
	// absorbed inside the layer and never surfaces to callers.
	ErrTokenUnavailable = errors.New("apiclient: security token unavailable")

	// ErrTokenFetchThrottled signals that a token fetch was suppressed by the
	// fetch gate. Internal to the token manager.
	ErrTokenFetchThrottled = errors.New("apiclient: token fetch throttled")
)

// ClientError is the typed error surfaced to callers for genuine failures:
// transport errors, non-success server statuses and internal defects.
// Recoverable conditions (missing token, throttling, cache miss) are absorbed
// inside the layer and only affect latency or freshness.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	StatusCode int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsTransient reports whether an error represents a transient failure that
// might succeed on retry: network errors, 5xx responses, rate limiting and
// open circuits. 4xx client errors (except 429) are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeNetwork, ErrorTypeServer, ErrorTypeRateLimit, ErrorTypeCircuitOpen:
			return true
		default:
			return clientErr.StatusCode == 429
		}
	}

	return false
}

// IsUnauthorized reports whether err represents a missing or invalid session,
// whether synthesized locally by the session gate or returned by the server.
func IsUnauthorized(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrorTypeUnauthorized
	}
	return false
}
