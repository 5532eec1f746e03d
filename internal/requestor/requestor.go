// Package requestor implements the pluggable webhook transport: a
// common BaseRequestor plus two concrete implementations, HTTP and WS,
// with seamless handover between them.
package requestor

import (
	"context"
	"net/http"
)

// Message types that never expect an ack over the WS transport.
// Every other outbound type does.
var noAckTypes = map[string]bool{
	"call:status":         true,
	"verb:status":         true,
	"jambonz:error":       true,
	"llm:event":           true,
	"llm:tool-call":       true,
	"tts:streaming-event": true,
	"tts:tokens-result":   true,
}

// WantsAck reports whether an outbound message of the given type expects
// an ack frame in return.
func WantsAck(msgType string) bool {
	return !noAckTypes[msgType]
}

// Hook identifies where a webhook request is sent: a bare URL or
// {url, method, username, password}. The URL may carry a
// "#rp=...,rc=..." fragment overriding the retry policy for this hook
// only.
type Hook struct {
	URL      string
	Method   string // defaults to POST if empty
	Username string
	Password string
}

// Command is an inbound WS command dispatched to the call session.
type Command struct {
	MsgID        string
	Command      string
	CallSID      string
	QueueCommand bool
	ToolCallID   string
	Data         map[string]any
}

// Events carries the three cross-cutting signals a Requestor raises to its
// owning CallSession as typed channels rather than a single tagged-union
// channel. A session's single goroutine reads from these.
type Events struct {
	// Handover fires when resolving a hook implies switching transport
	// (http(s) <-> ws(s)). The new Requestor is ready to use; the old one
	// should be closed by the receiver once any in-flight send settles.
	Handover chan Requestor

	// Command fires for every inbound WS command frame.
	Command chan Command

	// Dropped fires once per unrecoverable connection loss (reconnects
	// exhausted). The session should treat this as requestor failure.
	Dropped chan struct{}
}

func newEvents() *Events {
	return &Events{
		Handover: make(chan Requestor, 1),
		Command:  make(chan Command, 64),
		Dropped:  make(chan struct{}, 1),
	}
}

// Requestor is the pluggable webhook transport.
type Requestor interface {
	// Request sends params to hook under msgType, returning the parsed
	// response body (nil if none) or an error. headers are additional
	// request headers to merge in (HTTP only; ignored by WS).
	Request(ctx context.Context, msgType string, hook Hook, params map[string]any, headers http.Header) (any, error)

	// Events returns the channel bundle this requestor raises events on.
	Events() *Events

	// Close tears down the transport. Idempotent.
	Close() error
}
