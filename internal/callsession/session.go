// Package callsession implements the per-call driver:
// it owns a media-server endpoint, runs a task list sequentially, and
// reacts to redirects, requestor handover, and inbound WS commands.
// Grounded on an exec-loop-plus-watcher walk, generalized from a
// single-goroutine graph-edge walk to a linear, redirectable queue.
package callsession

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flowpbx/callengine/internal/alerts"
	"github.com/flowpbx/callengine/internal/callerr"
	"github.com/flowpbx/callengine/internal/mediaserver"
	"github.com/flowpbx/callengine/internal/requestor"
	"github.com/flowpbx/callengine/internal/sipdialog"
	"github.com/flowpbx/callengine/internal/task"
)

// State is the lifecycle stage of a CallSession.
type State int32

const (
	Idle State = iota
	Running
	Replacing
	Ending
	Ended
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Replacing:
		return "replacing"
	case Ending:
		return "ending"
	case Ended:
		return "ended"
	default:
		return "idle"
	}
}

// EndpointFactory allocates the media-server endpoint for a call on
// demand, the first time a task declares the Endpoint precondition.
type EndpointFactory func(ctx context.Context, dialog sipdialog.Dialog) (mediaserver.Endpoint, error)

// CallSession is the per-call state machine. It exclusively owns its
// endpoint and every task it runs.
type CallSession struct {
	callSID    string
	accountSID string
	dialog     sipdialog.Dialog
	callerInfo sipdialog.CallerInfo

	newEndpoint EndpointFactory
	logger      *slog.Logger
	alerts      *alerts.Emitter

	mu       sync.Mutex
	req      requestor.Requestor
	endpoint mediaserver.Endpoint
	tasks    []task.Task
	current  task.Task
	state    State
	answered bool
	tmpFiles []string

	epoch atomic.Uint64
}

// New constructs a CallSession. application is the initial task list;
// req is the requestor resolved from the application's host/base URL.
func New(callSID, accountSID string, dialog sipdialog.Dialog, application []task.Task, req requestor.Requestor, newEndpoint EndpointFactory, alertEmitter *alerts.Emitter, logger *slog.Logger) *CallSession {
	if callSID == "" {
		callSID = uuid.NewString()
	}
	return &CallSession{
		callSID:     callSID,
		accountSID:  accountSID,
		dialog:      dialog,
		callerInfo:  dialog.CallerInfo(),
		newEndpoint: newEndpoint,
		logger:      logger.With("call_sid", callSID),
		alerts:      alertEmitter,
		req:         req,
		tasks:       application,
	}
}

// -- task.Session implementation --

func (s *CallSession) CallSID() string                 { return s.callSID }
func (s *CallSession) AccountSID() string              { return s.accountSID }
func (s *CallSession) CallerInfo() sipdialog.CallerInfo { return s.callerInfo }
func (s *CallSession) Epoch() uint64                    { return s.epoch.Load() }
func (s *CallSession) Alerts() *alerts.Emitter          { return s.alerts }

func (s *CallSession) Requestor() requestor.Requestor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.req
}

func (s *CallSession) Endpoint() mediaserver.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

func (s *CallSession) EnsureEndpoint(ctx context.Context) (mediaserver.Endpoint, error) {
	s.mu.Lock()
	if s.endpoint != nil {
		ep := s.endpoint
		s.mu.Unlock()
		return ep, nil
	}
	s.mu.Unlock()

	ep, err := s.newEndpoint(ctx, s.dialog)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.endpoint == nil {
		s.endpoint = ep
	} else {
		ep = s.endpoint
	}
	s.mu.Unlock()
	return ep, nil
}

func (s *CallSession) Answered() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.answered }

func (s *CallSession) SetAnswered(v bool) {
	s.mu.Lock()
	s.answered = v
	s.mu.Unlock()
}

// ReplaceApplication kills current and swaps the pending queue. The
// session's own exec loop, not this call, advances to the new list once
// current.Exec returns.
func (s *CallSession) ReplaceApplication(tasks []task.Task) {
	s.mu.Lock()
	cur := s.current
	s.tasks = tasks
	s.epoch.Add(1)
	s.mu.Unlock()
	if cur != nil {
		cur.Kill(s)
	}
}

// AppendTasks implements the queueCommand=true append semantics: the
// running task finishes, then these tasks run next.
func (s *CallSession) AppendTasks(tasks []task.Task) {
	s.mu.Lock()
	s.tasks = append(s.tasks, tasks...)
	s.mu.Unlock()
}

func (s *CallSession) TrackTmpFile(path string) {
	s.mu.Lock()
	s.tmpFiles = append(s.tmpFiles, path)
	s.mu.Unlock()
}

// -- lifecycle --

func (s *CallSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *CallSession) setState(v State) {
	s.mu.Lock()
	s.state = v
	s.mu.Unlock()
}

// Run drives the session to completion: the command/handover watcher runs
// alongside the task exec loop until the call ends, then tears down.
// Run blocks until teardown completes.
func (s *CallSession) Run(ctx context.Context) {
	s.setState(Running)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchRequestor(ctx)
	}()

	s.execLoop(ctx)
	cancel()
	wg.Wait()
	s.teardown(ctx)
}

// execLoop runs the session's task list to completion, generalized to
// Go's explicit-error-return style in place of a promise/exception split.
func (s *CallSession) execLoop(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.state == Ending || s.state == Ended || len(s.tasks) == 0 {
			s.mu.Unlock()
			return
		}
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.current = t
		s.mu.Unlock()

		if err := s.checkPreconditions(ctx, t); err != nil {
			s.logger.Warn("precondition failed, skipping task", "task", t.Name(), "error", err)
			s.mu.Lock()
			s.current = nil
			s.mu.Unlock()
			continue
		}

		err := t.Exec(ctx, s)

		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()

		if err == nil {
			continue
		}

		var terminated *callerr.SessionTerminated
		if errors.As(err, &terminated) {
			s.setState(Ending)
			return
		}
		// TaskError and everything else: logged, loop continues.
		s.logger.Error("task failed", "task", t.Name(), "error", err)
	}
}

func (s *CallSession) checkPreconditions(ctx context.Context, t task.Task) error {
	switch t.Preconditions() {
	case task.StableCall:
		if !s.dialogStable() {
			return &callerr.PreconditionError{Task: string(t.Name()), Condition: task.StableCall.String()}
		}
	case task.Endpoint:
		if _, err := s.EnsureEndpoint(ctx); err != nil {
			return &callerr.PreconditionError{Task: string(t.Name()), Condition: task.Endpoint.String()}
		}
	case task.UnansweredCall:
		if s.Answered() {
			return &callerr.PreconditionError{Task: string(t.Name()), Condition: task.UnansweredCall.String()}
		}
	}
	return nil
}

func (s *CallSession) dialogStable() bool {
	return s.dialog != nil
}

// watchRequestor multiplexes the active requestor's event channels,
// re-subscribing whenever a handover swaps the live Requestor out from
// under it.
func (s *CallSession) watchRequestor(ctx context.Context) {
	for {
		req := s.Requestor()
		if req == nil {
			return
		}
		events := req.Events()
		select {
		case <-ctx.Done():
			return
		case newReq, ok := <-events.Handover:
			if !ok {
				return
			}
			s.handleHandover(ctx, req, newReq)
		case cmd, ok := <-events.Command:
			if !ok {
				return
			}
			s.handleCommand(ctx, cmd)
		case <-events.Dropped:
			s.logger.Warn("requestor connection dropped, reconnects exhausted")
		}
	}
}

// handleHandover swaps in the new transport. session:new has already gone
// out as the new transport's first frame (HTTP.Request sends it before
// emitting the handover event), so this only needs to update session state
// and retire the old transport.
func (s *CallSession) handleHandover(_ context.Context, old, newReq requestor.Requestor) {
	s.mu.Lock()
	cur := s.current
	s.req = newReq
	s.mu.Unlock()

	if cur != nil {
		cur.Kill(s)
	}
	go func() {
		time.Sleep(500 * time.Millisecond)
		_ = old.Close()
	}()
}

// handleCommand implements the WS command dispatch table.
func (s *CallSession) handleCommand(ctx context.Context, cmd requestor.Command) {
	switch cmd.Command {
	case "redirect":
		nodes, _ := cmd.Data["tasks"].([]any)
		tasks, err := task.ParseTasks(nodes)
		if err != nil {
			s.alerts.Raise(alerts.InvalidAppPayload, s.callSID, err.Error())
			return
		}
		if cmd.QueueCommand {
			s.AppendTasks(tasks)
		} else {
			s.ReplaceApplication(tasks)
		}
	case "hangup":
		s.mu.Lock()
		cur := s.current
		s.state = Ending
		s.mu.Unlock()
		if cur != nil {
			cur.Kill(s)
		}
	case "mute", "unmute", "pause", "resume":
		s.mu.Lock()
		cur := s.current
		s.mu.Unlock()
		if cur != nil && cur.HandlesCommand(cmd.Command) {
			cur.HandleCommand(ctx, s, cmd)
		}
	default:
		s.mu.Lock()
		cur := s.current
		s.mu.Unlock()
		if cur != nil && cur.HandlesCommand(cmd.Command) {
			cur.HandleCommand(ctx, s, cmd)
			return
		}
		if req := s.Requestor(); req != nil {
			_, _ = req.Request(ctx, "jambonz:error", requestor.Hook{}, map[string]any{
				"msgid": cmd.MsgID,
				"error": "unhandled command",
			}, http.Header{})
		}
	}
}

// teardown runs every resource-release step, logging but never propagating
// errors past session end.
func (s *CallSession) teardown(ctx context.Context) {
	s.mu.Lock()
	cur := s.current
	ep := s.endpoint
	req := s.req
	files := s.tmpFiles
	s.state = Ended
	s.mu.Unlock()

	if cur != nil {
		cur.Kill(s)
	}

	if ep != nil {
		if _, err := ep.API(ctx, "uuid_kill", []string{ep.UUID()}); err != nil {
			s.logger.Warn("endpoint release failed", "error", err)
		}
	}

	for _, f := range files {
		s.removeTmpFile(f)
	}

	if req != nil {
		_, err := req.Request(ctx, "call:status", requestor.Hook{}, map[string]any{
			"call_sid": s.callSID,
			"status":   "completed",
		}, http.Header{})
		if err != nil {
			s.logger.Warn("final call:status send failed", "error", err)
		}
		if err := req.Close(); err != nil {
			s.logger.Warn("requestor close failed", "error", err)
		}
	}

	s.logger.Info("call session ended")
}

func (s *CallSession) removeTmpFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("tmp file cleanup failed", "path", path, "error", err)
	}
}
