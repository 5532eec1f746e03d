// Package mediaserver declares the interface-only contract the external
// media server exposes. The media server itself is deliberately out of
// scope, treated as an external collaborator. No concrete media-server
// implementation lives here; tasks and the
// call session depend only on this interface, and a real deployment wires
// in whatever backend satisfies it (FreeSWITCH, a custom RTP engine, ...).
package mediaserver

import "context"

// CustomEvent is a media-server-originated event delivered to a listener
// registered via Endpoint.AddCustomEventListener (e.g. a play-finished or
// record-finished notification).
type CustomEvent struct {
	Name string
	Data map[string]any
}

// DTMFEvent carries one collected DTMF digit and its duration.
type DTMFEvent struct {
	Digit      string
	DurationMs int
}

// Endpoint is the media-server-side handle through which one call leg's
// audio is played, recorded, and manipulated.
type Endpoint interface {
	// UUID identifies this endpoint to the media server.
	UUID() string

	// Connected reports whether the underlying channel is still up.
	Connected() bool

	// API issues a media-server command (e.g. "uuid_break", "uuid_record")
	// with the given argument list and waits for its synchronous reply.
	API(ctx context.Context, verb string, args []string) (string, error)

	// Play streams the audio file at path to the endpoint and waits for
	// playback to finish or be interrupted.
	Play(ctx context.Context, path string) error

	// Set assigns a media-server channel variable.
	Set(ctx context.Context, key, value string) error

	// AddCustomEventListener registers fn to run whenever the media server
	// raises a custom event of the given name on this endpoint.
	AddCustomEventListener(name string, fn func(CustomEvent))

	// OnDTMF registers fn to run for every DTMF digit detected on this
	// endpoint.
	OnDTMF(fn func(DTMFEvent))
}
