package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthGateValidSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
			t.Error("probe should carry the script-origin header")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"authenticated":true,"user":{"id":7}}`)
	}))
	defer server.Close()

	gate := newAuthGate(server.Client(), server.URL+"/auth/check")
	if !gate.IsSessionValid(context.Background()) {
		t.Error("authenticated session should be valid")
	}
}

func TestAuthGateInvalidCases(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"unauthenticated", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"authenticated":false}`)
		}},
		{"error status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `not json`)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			gate := newAuthGate(server.Client(), server.URL+"/auth/check")
			if gate.IsSessionValid(context.Background()) {
				t.Error("session should be invalid")
			}
		})
	}
}

func TestAuthGateTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	gate := newAuthGate(&http.Client{}, url+"/auth/check")
	if gate.IsSessionValid(context.Background()) {
		t.Error("transport failure must read as not valid")
	}
}
