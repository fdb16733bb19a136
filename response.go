package apiclient

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Response is the immutable result of a coordinated request. The body is held
// as fully-read bytes rather than a stream, so one network round trip can be
// consumed any number of times by any number of waiters.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Clone returns an independent copy of the response. Shared in-flight results
// and cache entries are cloned before being handed out so that no consumer
// can observe another consumer's mutations.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return &Response{
		StatusCode: r.StatusCode,
		Status:     r.Status,
		Header:     r.Header.Clone(),
		Body:       body,
	}
}

// Parse decodes the response body into v (which may be nil when the caller
// only needs the status check). A non-success status yields a *ClientError
// embedding the server-provided message; an unparseable error body falls back
// to the raw text rather than raising a secondary decode error.
func (r *Response) Parse(v any) error {
	if r == nil {
		return &ClientError{Type: ErrorTypeInternal, Message: "nil response"}
	}

	if !r.IsSuccess() {
		errType := ErrorTypeServer
		if r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden {
			errType = ErrorTypeUnauthorized
		}
		return &ClientError{
			Type:       errType,
			Message:    r.errorMessage(),
			StatusCode: r.StatusCode,
		}
	}

	if v == nil || len(r.Body) == 0 {
		return nil
	}

	if err := json.Unmarshal(r.Body, v); err != nil {
		return &ClientError{
			Type:       ErrorTypeInternal,
			Message:    "failed to decode response body",
			Cause:      err,
			StatusCode: r.StatusCode,
		}
	}
	return nil
}

// errorMessage extracts a human-readable message from a failed response body.
// The backend returns {"message": ...} or {"error": ...}; anything else is
// used verbatim.
func (r *Response) errorMessage() string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(r.Body, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := strings.TrimSpace(string(r.Body)); text != "" {
		return text
	}
	if r.Status != "" {
		return r.Status
	}
	return http.StatusText(r.StatusCode)
}

// unauthorizedResponse synthesizes the standard "not authorized" result shape
// used when the session gate short-circuits a protected request. Callers see
// the same shape whether the 401 came from here or from the server.
func unauthorizedResponse() *Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &Response{
		StatusCode: http.StatusUnauthorized,
		Status:     "401 Unauthorized",
		Header:     header,
		Body:       []byte(`{"error":"Authentication required"}`),
	}
}

// jsonBody renders v as a JSON request body, or nil when v is nil.
func jsonBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
