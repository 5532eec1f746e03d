package requestor

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/flowpbx/callengine/internal/retrypolicy"
	"github.com/flowpbx/callengine/internal/signing"
)

// Base holds the state common to HTTP and WS requestors: the account
// credentials and base URL fixed at construction, and the event channel
// bundle every concrete requestor publishes to.
type Base struct {
	AccountSID string
	Secret     string
	BaseURL    *url.URL

	events *Events
}

// NewBase constructs the shared state. baseURL may be empty if every hook
// this requestor will resolve is already absolute.
func NewBase(accountSID, secret, baseURL string) (Base, error) {
	b := Base{AccountSID: accountSID, Secret: secret, events: newEvents()}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return Base{}, err
		}
		b.BaseURL = u
	}
	return b, nil
}

func (b *Base) Events() *Events { return b.events }

// resolvedHook is a Hook after URL resolution and fragment parsing.
type resolvedHook struct {
	url    *url.URL
	method string
	policy retrypolicy.Policy
}

// resolve turns a Hook into an absolute URL, a retry policy parsed from its
// fragment, and the effective HTTP method.
func (b *Base) resolve(h Hook) (resolvedHook, error) {
	u, err := url.Parse(h.URL)
	if err != nil {
		return resolvedHook{}, err
	}
	if !u.IsAbs() {
		if b.BaseURL == nil {
			return resolvedHook{}, &url.Error{Op: "resolve", URL: h.URL, Err: errNoBaseURL}
		}
		u = b.BaseURL.ResolveReference(u)
	}

	rp, rc, rcProvided := parseFragment(u.Fragment)
	policy := retrypolicy.Parse(rp, rc, rcProvided)

	method := h.Method
	if method == "" {
		method = "POST"
	}

	// The fragment is a client-side routing hint only; strip it before
	// dialing so it never reaches the wire.
	stripped := *u
	stripped.Fragment = ""

	return resolvedHook{url: &stripped, method: strings.ToUpper(method), policy: policy}, nil
}

func parseFragment(fragment string) (rp string, rc int, rcProvided bool) {
	if fragment == "" {
		return "", 0, false
	}
	values, err := url.ParseQuery(fragment)
	if err != nil {
		return "", 0, false
	}
	rp = values.Get("rp")
	if rcStr := values.Get("rc"); rcStr != "" {
		if n, err := strconv.Atoi(rcStr); err == nil {
			rc, rcProvided = n, true
		}
	}
	return rp, rc, rcProvided
}

// signature computes the JB-Signature header value for a non-empty body,
// or "" if no secret is configured.
func (b *Base) signature(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return signing.Sign(b.Secret, body)
}

// isWebSocketScheme reports whether a resolved URL targets the WS transport.
func isWebSocketScheme(u *url.URL) bool {
	return u.Scheme == "ws" || u.Scheme == "wss"
}

// isHTTPScheme reports whether a resolved URL targets the HTTP transport.
func isHTTPScheme(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}

var errNoBaseURL = errNoBaseURLError{}

type errNoBaseURLError struct{}

func (errNoBaseURLError) Error() string {
	return "relative hook URL with no base URL configured"
}
