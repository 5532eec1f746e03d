package retrypolicy

import (
	"testing"

	"github.com/flowpbx/callengine/internal/callerr"
)

func TestParseDefaultsToConnectTimeoutOnly(t *testing.T) {
	p := Parse("", 0, false)
	if !p.Tokens[ConnectTimeout] || len(p.Tokens) != 1 {
		t.Fatalf("expected connect-timeout-only default, got %v", p.Tokens)
	}
	if p.RetryCount != 5 {
		t.Fatalf("expected default retry count 5, got %d", p.RetryCount)
	}
}

func TestParseTokenList(t *testing.T) {
	p := Parse("4xx, 5xx , rt", 3, true)
	for _, tok := range []Token{Status4xx, Status5xx, ResponseTimeout} {
		if !p.Tokens[tok] {
			t.Fatalf("expected token %s to be set, got %v", tok, p.Tokens)
		}
	}
	if p.RetryCount != 3 {
		t.Fatalf("expected retry count 3, got %d", p.RetryCount)
	}
}

func TestParseClampsRetryCount(t *testing.T) {
	if p := Parse("all", 0, true); p.RetryCount != 1 {
		t.Fatalf("expected rc<1 clamped to 1, got %d", p.RetryCount)
	}
	if p := Parse("all", 99, true); p.RetryCount != 5 {
		t.Fatalf("expected rc>5 clamped to 5, got %d", p.RetryCount)
	}
}

func TestShouldRetryAllTokenAlwaysRetries(t *testing.T) {
	p := Parse("all", 5, true)
	if !p.ShouldRetry(&callerr.TransportError{Op: "dial", Err: nil}) {
		t.Fatal("expected 'all' token to retry any classified error")
	}
}

func TestShouldRetryMatchesTokenClass(t *testing.T) {
	p := Parse("5xx", 5, true)
	if !p.ShouldRetry(&callerr.HTTPStatusError{StatusCode: 503}) {
		t.Fatal("expected 5xx status to be retried under the 5xx token")
	}
	if p.ShouldRetry(&callerr.HTTPStatusError{StatusCode: 404}) {
		t.Fatal("expected 4xx status not to be retried under only the 5xx token")
	}
}

func TestShouldRetryUnclassifiedErrorNeverRetries(t *testing.T) {
	p := Parse("ct,rt,4xx,5xx", 5, false)
	// ProtocolError carries no retry token; even a policy naming every
	// classified token must not retry it.
	if p.ShouldRetry(&callerr.ProtocolError{Reason: "binary frame"}) {
		t.Fatal("expected an unclassified error never to be retried")
	}
}
