// Package sipdialog declares the interface-only contract a SIP signalling
// stack hands the call engine once a call is accepted. SIP signalling,
// registration, and offer/answer negotiation are deliberately out of
// scope: a SIP stack delivers an accepted call with a media-server
// endpoint, and that is the only boundary this package describes. No
// concrete SIP implementation lives here.
package sipdialog

// Direction is the call direction as seen by this process.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// CallerInfo carries the identity fields a CallSession needs from the
// accepted SIP dialog.
type CallerInfo struct {
	From      string
	To        string
	Direction Direction
	SIPCallID string
}

// Dialog is the accepted-call handle a SIP stack delivers to the engine.
// It is the minimum surface the call session needs to answer, respond
// with a final status, or tear the call down; everything else about SIP
// transaction/dialog state stays inside the signalling layer.
type Dialog interface {
	// CallerInfo returns the identity fields for this dialog.
	CallerInfo() CallerInfo

	// Answer sends a final 200 response, completing an unanswered call.
	Answer() error

	// Reject sends a final non-2xx response with the given cause and
	// reason, for use before an endpoint has been allocated.
	Reject(cause int, reason string) error

	// Bye tears down an already-answered call.
	Bye() error
}
