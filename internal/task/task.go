// Package task implements the verb interpreter contract:
// a closed sum type of verbs behind a common Task interface, executed one
// at a time by a CallSession. Grounded on a node-handler dispatch
// pattern, generalized from a graph-edge walk to a linear, redirectable
// task queue.
package task

import (
	"context"
	"net/http"

	"github.com/flowpbx/callengine/internal/alerts"
	"github.com/flowpbx/callengine/internal/mediaserver"
	"github.com/flowpbx/callengine/internal/requestor"
	"github.com/flowpbx/callengine/internal/sipdialog"
)

// Name enumerates the verb kinds the registry knows how to construct.
type Name string

const (
	NameSay        Name = "say"
	NamePlay       Name = "play"
	NameGather     Name = "gather"
	NameDial       Name = "dial"
	NameRecord     Name = "record"
	NameTranscribe Name = "transcribe"
	NameHangup     Name = "hangup"
	NameRedirect   Name = "redirect"
	NamePause      Name = "pause"
	NameConfig     Name = "config"
)

// Precondition is what the session must guarantee before Exec runs.
type Precondition int

const (
	// None: any call state.
	None Precondition = iota
	// StableCall: the SIP dialog is established.
	StableCall
	// Endpoint: a media endpoint is allocated, allocating on demand.
	Endpoint
	// UnansweredCall: no final SIP response sent yet.
	UnansweredCall
)

func (p Precondition) String() string {
	switch p {
	case StableCall:
		return "stable_call"
	case Endpoint:
		return "endpoint"
	case UnansweredCall:
		return "unanswered_call"
	default:
		return "none"
	}
}

// Session is the subset of CallSession a Task needs. It is a borrowed
// reference: a task must not retain it past Exec/Kill returning.
type Session interface {
	CallSID() string
	AccountSID() string
	CallerInfo() sipdialog.CallerInfo
	Requestor() requestor.Requestor
	EnsureEndpoint(ctx context.Context) (mediaserver.Endpoint, error)
	Endpoint() mediaserver.Endpoint
	Answered() bool
	SetAnswered(bool)
	Epoch() uint64
	ReplaceApplication(tasks []Task)
	AppendTasks(tasks []Task)
	TrackTmpFile(path string)
	Alerts() *alerts.Emitter
}

// Task is the abstract verb contract.
type Task interface {
	Name() Name
	Preconditions() Precondition

	// Exec runs the verb to completion or until Kill causes it to return.
	// The session awaits exactly this call before advancing.
	Exec(ctx context.Context, sess Session) error

	// Kill is idempotent and must cause a blocked Exec to return promptly.
	Kill(sess Session)

	// HandlesCommand reports whether this task acts on an inbound WS
	// command of the given name (mute, tts:flush, ...) rather than the
	// session handling it or ignoring it.
	HandlesCommand(cmd string) bool

	// HandleCommand executes a command HandlesCommand accepted.
	HandleCommand(ctx context.Context, sess Session, cmd requestor.Command)
}

// Node is the wire shape of one verb in an application's task list.
type Node struct {
	Verb Name           `json:"verb"`
	Data map[string]any `json:"-"`
}

// ParseHook decodes a hook field that may be a bare URL string or an
// object with url/method/username/password.
func ParseHook(v any) (requestor.Hook, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return requestor.Hook{}, false
		}
		return requestor.Hook{URL: t}, true
	case map[string]any:
		h := requestor.Hook{}
		if u, ok := t["url"].(string); ok {
			h.URL = u
		}
		if h.URL == "" {
			return requestor.Hook{}, false
		}
		if m, ok := t["method"].(string); ok {
			h.Method = m
		}
		if u, ok := t["username"].(string); ok {
			h.Username = u
		}
		if p, ok := t["password"].(string); ok {
			h.Password = p
		}
		return h, true
	default:
		return requestor.Hook{}, false
	}
}

// headersFor builds the standard call-identifying headers every hook
// request carries in addition to its JSON body.
func headersFor(sess Session) http.Header {
	h := http.Header{}
	h.Set("X-Call-SID", sess.CallSID())
	h.Set("X-Account-SID", sess.AccountSID())
	return h
}
