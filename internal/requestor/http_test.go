package requestor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowpbx/callengine/internal/callerr"
)

func newTestBase(t *testing.T, baseURL string) Base {
	t.Helper()
	b, err := NewBase("acct-1", "", baseURL)
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}
	return b
}

func TestHTTPRequestSendsSnakeCasedJSONAndParsesResponse(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	base := newTestBase(t, srv.URL)
	pool := NewPool(4, 1, 5*time.Second, time.Minute)
	defer pool.Close()
	h := NewHTTP(base, pool, "callengine-test", WSConfig{})

	resp, err := h.Request(context.Background(), "call:status", Hook{URL: "/status"}, map[string]any{
		"callSid": "abc",
	}, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	m, ok := resp.(map[string]any)
	if !ok || m["status"] != "ok" {
		t.Fatalf("unexpected response: %v", resp)
	}
	if gotBody["call_sid"] != "abc" {
		t.Fatalf("expected snake_cased call_sid in request body, got %v", gotBody)
	}
}

func TestHTTPRequestRetriesOnServerErrorUpToRetryCount(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	base := newTestBase(t, srv.URL)
	pool := NewPool(4, 1, 5*time.Second, time.Minute)
	defer pool.Close()
	h := NewHTTP(base, pool, "", WSConfig{})

	// #rp=5xx,rc=3 requests exactly 3 attempts.
	_, err := h.Request(context.Background(), "verb:status", Hook{URL: "/status#rp=5xx,rc=3"}, nil, nil)
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if _, ok := err.(*callerr.HTTPStatusError); !ok {
		t.Fatalf("expected HTTPStatusError, got %T: %v", err, err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestHTTPRequestDoesNotRetryWithoutMatchingToken(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	base := newTestBase(t, srv.URL)
	pool := NewPool(4, 1, 5*time.Second, time.Minute)
	defer pool.Close()
	h := NewHTTP(base, pool, "", WSConfig{})

	// Default policy with no #rp fragment only covers connect-timeout
	// failures, not 5xx responses, so a single attempt is expected.
	_, err := h.Request(context.Background(), "verb:status", Hook{URL: "/status"}, nil, nil)
	if err == nil {
		t.Fatal("expected an error from the 5xx response")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected exactly 1 attempt with no matching retry token, got %d", got)
	}
}

func TestHTTPRequestSuppressesJambonzErrorOverHTTP(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	base := newTestBase(t, srv.URL)
	pool := NewPool(4, 1, 5*time.Second, time.Minute)
	defer pool.Close()
	h := NewHTTP(base, pool, "", WSConfig{})

	resp, err := h.Request(context.Background(), "jambonz:error", Hook{URL: "/status"}, nil, nil)
	if err != nil || resp != nil {
		t.Fatalf("expected jambonz:error to be silently dropped over HTTP, got resp=%v err=%v", resp, err)
	}
	if called {
		t.Fatal("expected no HTTP call for jambonz:error")
	}
}
