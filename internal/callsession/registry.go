package callsession

import "sync/atomic"

// Registry tracks how many CallSessions are currently running, satisfying
// both internal/telemetry.ActiveSessionsProvider and internal/api's
// SessionCounter. Session-local state is never shared between sessions;
// this registry and the requestor pool are the only process-wide state.
type Registry struct {
	active atomic.Int64
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// ActiveSessionCount implements telemetry.ActiveSessionsProvider and
// api.SessionCounter.
func (r *Registry) ActiveSessionCount() int { return int(r.active.Load()) }

// Track increments the active count and returns a function that
// decrements it, meant to be deferred around a call to Run.
func (r *Registry) Track() func() {
	r.active.Add(1)
	return func() { r.active.Add(-1) }
}
