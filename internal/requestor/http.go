package requestor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowpbx/callengine/internal/callerr"
	"github.com/flowpbx/callengine/internal/signing"
)

// HTTP is the HTTP(S) Requestor: JSON bodies over a pooled,
// keep-alive client, snake_case key transform, JB-Signature, and
// fragment-driven retry/backoff. A hook that resolves to ws(s) hands the
// request off to a freshly dialed WS requestor instead of sending it.
type HTTP struct {
	Base

	pool      *Pool
	userAgent string
	wsConfig  WSConfig
}

// NewHTTP constructs an HTTP requestor. wsConfig is used only if a hook this
// requestor resolves turns out to target a ws(s) URL, triggering handover.
func NewHTTP(base Base, pool *Pool, userAgent string, wsConfig WSConfig) *HTTP {
	return &HTTP{Base: base, pool: pool, userAgent: userAgent, wsConfig: wsConfig}
}

// Close implements Requestor. The pooled clients it sends through are a
// shared, process-wide resource owned by Pool, not by this instance, so
// there is nothing for an individual HTTP requestor to release.
func (h *HTTP) Close() error { return nil }

// Request implements Requestor.
func (h *HTTP) Request(ctx context.Context, msgType string, hook Hook, params map[string]any, headers http.Header) (any, error) {
	rh, err := h.resolve(hook)
	if err != nil {
		return nil, err
	}

	if isWebSocketScheme(rh.url) {
		ws := NewWS(h.Base, h.wsConfig)
		if err := ws.dial(ctx, rh.url); err != nil {
			ws.Close()
			return nil, err
		}
		// The new transport's first outbound frame must be session:new,
		// carrying the params already computed for the hook that triggered
		// this handover, before the original request is forwarded onto it.
		if _, err := ws.Request(ctx, "session:new", Hook{}, params, http.Header{}); err != nil {
			ws.Close()
			return nil, err
		}
		select {
		case h.Events().Handover <- ws:
		default:
		}
		return ws.Request(ctx, msgType, hook, params, headers)
	}
	if !isHTTPScheme(rh.url) {
		return nil, fmt.Errorf("requestor: unsupported hook scheme %q", rh.url.Scheme)
	}

	// Special case: jambonz:error is a WS-only notification
	// and is silently dropped when the active transport is HTTP.
	if msgType == "jambonz:error" {
		return nil, nil
	}

	payload, err := json.Marshal(SnakeCaseParams(params))
	if err != nil {
		return nil, err
	}

	maxAttempts := rh.policy.RetryCount
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDuration(attempt - 1)):
			}
		}

		result, retryable, err := h.attempt(ctx, rh, hook, payload, headers)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable || attempt == maxAttempts || !rh.policy.ShouldRetry(err) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// attempt performs one HTTP round trip. The bool return reports whether the
// error (if any) is of a kind the retry policy even gets a vote on.
func (h *HTTP) attempt(ctx context.Context, rh resolvedHook, hook Hook, payload []byte, headers http.Header) (any, bool, error) {
	req, err := http.NewRequestWithContext(ctx, rh.method, rh.url.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	if sig := h.signature(payload); sig != "" {
		req.Header.Set(signing.Header, sig)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if hook.Username != "" {
		req.SetBasicAuth(hook.Username, hook.Password)
	}

	resp, err := h.pool.ClientFor(rh.url.Scheme + "://" + rh.url.Host).Do(req)
	if err != nil {
		return nil, true, &callerr.TransportError{Op: "http request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &callerr.TransportError{Op: "http read body", Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(body) == 0 || !strings.Contains(resp.Header.Get("Content-Type"), "json") {
			return nil, false, nil
		}
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, false, &callerr.ProtocolError{Reason: "non-json 2xx response body"}
		}
		return v, false, nil
	}

	return nil, true, &callerr.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
}
