// Package engine is the single entry point an embedding SIP stack calls
// once it has accepted a call and handed over a media-server endpoint.
// It wires together the account's credentials, the process-wide
// requestor pool, and the task registry into a running CallSession —
// the integration seam between the signalling layer and the call-session
// engine.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowpbx/callengine/internal/accountstore"
	"github.com/flowpbx/callengine/internal/alerts"
	"github.com/flowpbx/callengine/internal/callsession"
	"github.com/flowpbx/callengine/internal/mediaserver"
	"github.com/flowpbx/callengine/internal/requestor"
	"github.com/flowpbx/callengine/internal/sipdialog"
	"github.com/flowpbx/callengine/internal/task"
)

// Engine holds the process-wide resources every call session shares:
// multiple sessions run concurrently, each with its own goroutines, but
// share the pool, the account store, and the alert emitter.
type Engine struct {
	Accounts    *accountstore.Store
	Pool        *requestor.Pool
	WSConfig    requestor.WSConfig
	Alerts      *alerts.Emitter
	Registry    *callsession.Registry
	NewEndpoint callsession.EndpointFactory
	Logger      *slog.Logger
	UserAgent   string
}

// AcceptCall builds the initial Requestor for accountSID and starts a
// CallSession running applicationNodes against dialog. It returns once the
// session has been launched in its own goroutine; the caller does not
// block on the call's lifetime.
func (e *Engine) AcceptCall(ctx context.Context, accountSID string, dialog sipdialog.Dialog, applicationNodes []any) (*callsession.CallSession, error) {
	account, err := e.Accounts.Lookup(ctx, accountSID)
	if err != nil {
		return nil, fmt.Errorf("engine: lookup account %s: %w", accountSID, err)
	}

	tasks, err := task.ParseTasks(applicationNodes)
	if err != nil {
		return nil, fmt.Errorf("engine: parse initial application: %w", err)
	}

	base, err := requestor.NewBase(account.AccountSID, account.Secret, account.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("engine: build requestor base: %w", err)
	}
	req := requestor.NewHTTP(base, e.Pool, e.UserAgent, e.WSConfig)

	sess := callsession.New(dialog.CallerInfo().SIPCallID, accountSID, dialog, tasks, req, e.NewEndpoint, e.Alerts, e.Logger)

	done := e.Registry.Track()
	go func() {
		defer done()
		sess.Run(ctx)
	}()

	return sess, nil
}

// StubEndpointFactory is a minimal EndpointFactory placeholder for
// deployments that have not yet wired a real media-server client; it
// returns an error so callers see a clear signal rather than a nil
// endpoint panicking deep inside a verb.
func StubEndpointFactory(_ context.Context, _ sipdialog.Dialog) (mediaserver.Endpoint, error) {
	return nil, fmt.Errorf("engine: no media-server endpoint factory configured")
}
