package task

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/flowpbx/callengine/internal/alerts"
	"github.com/flowpbx/callengine/internal/mediaserver"
	"github.com/flowpbx/callengine/internal/requestor"
	"github.com/flowpbx/callengine/internal/sipdialog"
)

// fakeEndpoint is the minimal mediaserver.Endpoint a verb test needs.
type fakeEndpoint struct {
	plays      []string
	playErr    error
	apiReplies map[string]string
	apiErr     error
	dtmf       func(mediaserver.DTMFEvent)
	custom     map[string]func(mediaserver.CustomEvent)
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{custom: map[string]func(mediaserver.CustomEvent){}}
}

func (f *fakeEndpoint) UUID() string      { return "ep-1" }
func (f *fakeEndpoint) Connected() bool   { return true }
func (f *fakeEndpoint) Play(ctx context.Context, path string) error {
	f.plays = append(f.plays, path)
	return f.playErr
}
func (f *fakeEndpoint) API(ctx context.Context, verb string, args []string) (string, error) {
	if f.apiErr != nil {
		return "", f.apiErr
	}
	return f.apiReplies[verb], nil
}
func (f *fakeEndpoint) Set(ctx context.Context, key, value string) error { return nil }
func (f *fakeEndpoint) AddCustomEventListener(name string, fn func(mediaserver.CustomEvent)) {
	f.custom[name] = fn
}
func (f *fakeEndpoint) OnDTMF(fn func(mediaserver.DTMFEvent)) { f.dtmf = fn }

// fakeRequestor records every Request call and returns a canned response.
type fakeRequestor struct {
	events   *requestor.Events
	calls    []string
	response any
	err      error
}

func newFakeRequestor() *fakeRequestor {
	return &fakeRequestor{events: &requestor.Events{
		Handover: make(chan requestor.Requestor, 1),
		Command:  make(chan requestor.Command, 4),
		Dropped:  make(chan struct{}, 1),
	}}
}

func (f *fakeRequestor) Request(ctx context.Context, msgType string, hook requestor.Hook, params map[string]any, headers http.Header) (any, error) {
	f.calls = append(f.calls, msgType)
	return f.response, f.err
}
func (f *fakeRequestor) Events() *requestor.Events { return f.events }
func (f *fakeRequestor) Close() error              { return nil }

// fakeSession implements task.Session for exercising verbs in isolation.
type fakeSession struct {
	callSID    string
	accountSID string
	caller     sipdialog.CallerInfo
	req        requestor.Requestor
	ep         mediaserver.Endpoint
	answered   bool
	epoch      uint64
	replaced   [][]Task
	appended   [][]Task
	tmpFiles   []string
	alertEm    *alerts.Emitter
}

func newFakeSession(req requestor.Requestor, ep mediaserver.Endpoint) *fakeSession {
	return &fakeSession{
		callSID:    "call-1",
		accountSID: "acct-1",
		req:        req,
		ep:         ep,
		alertEm:    alerts.NewEmitter(nopAlertSink{}),
	}
}

// nopAlertSink discards alerts, keeping fakeSession's Emitter harmless in tests.
type nopAlertSink struct{}

func (nopAlertSink) Emit(alerts.Alert) {}

func (s *fakeSession) CallSID() string                  { return s.callSID }
func (s *fakeSession) AccountSID() string                { return s.accountSID }
func (s *fakeSession) CallerInfo() sipdialog.CallerInfo  { return s.caller }
func (s *fakeSession) Requestor() requestor.Requestor    { return s.req }
func (s *fakeSession) EnsureEndpoint(ctx context.Context) (mediaserver.Endpoint, error) {
	return s.ep, nil
}
func (s *fakeSession) Endpoint() mediaserver.Endpoint { return s.ep }
func (s *fakeSession) Answered() bool                 { return s.answered }
func (s *fakeSession) SetAnswered(v bool)             { s.answered = v }
func (s *fakeSession) Epoch() uint64                  { return s.epoch }
func (s *fakeSession) ReplaceApplication(tasks []Task) {
	s.replaced = append(s.replaced, tasks)
	s.epoch++
}
func (s *fakeSession) AppendTasks(tasks []Task)  { s.appended = append(s.appended, tasks) }
func (s *fakeSession) TrackTmpFile(path string)  { s.tmpFiles = append(s.tmpFiles, path) }
func (s *fakeSession) Alerts() *alerts.Emitter   { return s.alertEm }

func TestParseTasksBuildsRegisteredVerbsInOrder(t *testing.T) {
	nodes := []any{
		map[string]any{"say": map[string]any{"text": "hello"}},
		map[string]any{"pause": map[string]any{"length": float64(2)}},
		map[string]any{"hangup": map[string]any{}},
	}
	tasks, err := ParseTasks(nodes)
	if err != nil {
		t.Fatalf("ParseTasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if tasks[0].Name() != NameSay || tasks[1].Name() != NamePause || tasks[2].Name() != NameHangup {
		t.Fatalf("unexpected verb order: %v %v %v", tasks[0].Name(), tasks[1].Name(), tasks[2].Name())
	}
}

func TestParseTasksRejectsUnknownVerb(t *testing.T) {
	_, err := ParseTasks([]any{map[string]any{"frobnicate": map[string]any{}}})
	if err == nil {
		t.Fatal("expected error for unknown verb")
	}
}

func TestParseTasksRejectsMultiKeyNode(t *testing.T) {
	_, err := ParseTasks([]any{map[string]any{"say": map[string]any{}, "pause": map[string]any{}}})
	if err == nil {
		t.Fatal("expected error for a node with two verb keys")
	}
}

func TestSayExecPlaysTTSAndReportsCompleted(t *testing.T) {
	ep := newFakeEndpoint()
	req := newFakeRequestor()
	sess := newFakeSession(req, ep)

	tk, err := newSay(map[string]any{"text": "hi there", "actionHook": "https://example.com/status"})
	if err != nil {
		t.Fatalf("newSay: %v", err)
	}
	if err := tk.Exec(context.Background(), sess); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(ep.plays) != 1 || ep.plays[0] != "tts:hi there" {
		t.Fatalf("unexpected plays: %v", ep.plays)
	}
	if len(req.calls) != 1 || req.calls[0] != "verb:status" {
		t.Fatalf("expected one verb:status report, got %v", req.calls)
	}
}

func TestPlayLoopsRequestedCount(t *testing.T) {
	ep := newFakeEndpoint()
	sess := newFakeSession(newFakeRequestor(), ep)

	tk, err := newPlay(map[string]any{"url": "https://example.com/a.wav", "loop": float64(3)})
	if err != nil {
		t.Fatalf("newPlay: %v", err)
	}
	if err := tk.Exec(context.Background(), sess); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(ep.plays) != 3 {
		t.Fatalf("expected 3 plays, got %d", len(ep.plays))
	}
}

func TestPauseReturnsAfterKill(t *testing.T) {
	sess := newFakeSession(newFakeRequestor(), newFakeEndpoint())
	tk, err := newPause(map[string]any{"length": float64(60)})
	if err != nil {
		t.Fatalf("newPause: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- tk.Exec(context.Background(), sess) }()

	tk.Kill(sess)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Exec after Kill: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pause did not return promptly after Kill")
	}
}

func TestHangupTerminatesSession(t *testing.T) {
	sess := newFakeSession(newFakeRequestor(), newFakeEndpoint())
	tk, err := newHangup(map[string]any{"reason": "caller_hangup"})
	if err != nil {
		t.Fatalf("newHangup: %v", err)
	}
	err = tk.Exec(context.Background(), sess)
	if err == nil {
		t.Fatal("expected SessionTerminated error")
	}
}

func TestDialFallsThroughTargetsAndReportsFailure(t *testing.T) {
	ep := newFakeEndpoint()
	ep.apiErr = errBoom{}
	req := newFakeRequestor()
	sess := newFakeSession(req, ep)

	tk, err := newDial(map[string]any{"targets": []any{"sip:a@x", "sip:b@x"}, "timeout": float64(1)})
	if err != nil {
		t.Fatalf("newDial: %v", err)
	}
	if err := tk.Exec(context.Background(), sess); err == nil {
		t.Fatal("expected error when every target fails")
	}
	if len(req.calls) != 1 || req.calls[0] != "verb:status" {
		t.Fatalf("expected a failure report, got %v", req.calls)
	}
}

func TestRedirectReplacesApplication(t *testing.T) {
	req := newFakeRequestor()
	req.response = []any{map[string]any{"hangup": map[string]any{}}}
	sess := newFakeSession(req, newFakeEndpoint())

	tk, err := newRedirect(map[string]any{"url": "https://example.com/next"})
	if err != nil {
		t.Fatalf("newRedirect: %v", err)
	}
	if err := tk.Exec(context.Background(), sess); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(sess.replaced) != 1 || len(sess.replaced[0]) != 1 {
		t.Fatalf("expected one replacement application of one task, got %v", sess.replaced)
	}
}

func TestConfigAppliesSettingsAndIgnoresActionHookKey(t *testing.T) {
	sess := newFakeSession(newFakeRequestor(), newFakeEndpoint())
	tk, err := newConfig(map[string]any{"record_stereo": "true", "actionHook": "https://example.com/status"})
	if err != nil {
		t.Fatalf("newConfig: %v", err)
	}
	cfg := tk.(*Config)
	if _, ok := cfg.Settings["actionHook"]; ok {
		t.Fatal("actionHook must not be treated as a settable channel variable")
	}
	if cfg.Settings["record_stereo"] != "true" {
		t.Fatalf("expected record_stereo setting to be captured, got %v", cfg.Settings)
	}
	if err := tk.Exec(context.Background(), sess); err != nil {
		t.Fatalf("Exec: %v", err)
	}
}

func TestGatherCollectsDigitsUntilFinishOnKey(t *testing.T) {
	ep := newFakeEndpoint()
	req := newFakeRequestor()
	sess := newFakeSession(req, ep)

	tk, err := newGather(map[string]any{
		"numDigits":   float64(4),
		"finishOnKey": "#",
		"timeout":     float64(5),
	})
	if err != nil {
		t.Fatalf("newGather: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- tk.Exec(context.Background(), sess) }()

	// Give Exec time to register the DTMF listener before sending digits.
	time.Sleep(20 * time.Millisecond)
	for _, d := range []string{"1", "2", "3", "#"} {
		ep.dtmf(mediaserver.DTMFEvent{Digit: d})
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Exec: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gather did not complete after finishOnKey digit")
	}

	g := tk.(*Gather)
	if g.snapshot() != "123" {
		t.Fatalf("expected collected digits \"123\", got %q", g.snapshot())
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
