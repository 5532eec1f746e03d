// Package retrypolicy parses the retry-policy tokens a hook URL fragment
// carries and decides whether a given error should be retried.
package retrypolicy

import (
	"strings"

	"github.com/flowpbx/callengine/internal/callerr"
)

// Token is one of the recognized retry-policy tokens.
type Token string

const (
	ConnectTimeout   Token = "ct"
	ResponseTimeout  Token = "rt"
	Status4xx        Token = "4xx"
	Status5xx        Token = "5xx"
	All              Token = "all"
)

// Policy is a parsed set of retry tokens plus a clamped attempt count.
type Policy struct {
	Tokens     map[Token]bool
	RetryCount int
}

// DefaultConnectOnly is the policy used when a hook carries no #rp/#rc
// fragment: connect-timeout retries only, up to 5 attempts.
func DefaultConnectOnly() Policy {
	return Policy{Tokens: map[Token]bool{ConnectTimeout: true}, RetryCount: 5}
}

// Parse builds a Policy from the raw "rp" and "rc" fragment values. An
// empty rp defaults to connect-timeout-only. rc is clamped to [1,5]; a
// missing or unparseable rc defaults to 5.
func Parse(rp string, rc int, rcProvided bool) Policy {
	p := Policy{Tokens: make(map[Token]bool)}

	if rp == "" {
		p.Tokens[ConnectTimeout] = true
	} else {
		for _, tok := range strings.Split(rp, ",") {
			tok = strings.TrimSpace(strings.ToLower(tok))
			if tok == "" {
				continue
			}
			p.Tokens[Token(tok)] = true
		}
	}

	switch {
	case !rcProvided:
		p.RetryCount = 5
	case rc < 1:
		p.RetryCount = 1
	case rc > 5:
		p.RetryCount = 5
	default:
		p.RetryCount = rc
	}

	return p
}

// ShouldRetry returns true iff err's retry class matches one of the
// policy's tokens, or the policy carries the "all" token.
func (p Policy) ShouldRetry(err error) bool {
	if p.Tokens[All] {
		return true
	}
	class := callerr.RetryToken(err)
	if class == "" {
		return false
	}
	return p.Tokens[Token(class)]
}
