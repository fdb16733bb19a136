package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// sessionState is the shape returned by the session-check endpoint.
type sessionState struct {
	Authenticated bool            `json:"authenticated"`
	User          json.RawMessage `json:"user,omitempty"`
}

// authGate is the pre-flight check consulted before any request outside the
// auth namespace. It probes the session-check endpoint and treats any
// non-success status or transport failure as "not valid"; the executor
// decides whether to short-circuit with a synthesized unauthorized result.
type authGate struct {
	httpClient *http.Client
	checkURL   string
}

func newAuthGate(httpClient *http.Client, checkURL string) *authGate {
	return &authGate{httpClient: httpClient, checkURL: checkURL}
}

// IsSessionValid probes the session-check endpoint. The probe itself has no
// side effects.
func (g *authGate) IsSessionValid(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.checkURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set(headerRequestedWith, requestedWithValue)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	var state sessionState
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(body, &state); err != nil {
		return false
	}
	return state.Authenticated
}
