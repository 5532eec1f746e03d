package task

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/flowpbx/callengine/internal/alerts"
	"github.com/flowpbx/callengine/internal/requestor"
)

// Base holds the fields and helpers every concrete verb embeds: precondition
// declaration, hook resolution, and the action/event hook reporting
// contract.
type Base struct {
	name          Name
	preconditions Precondition
	actionHook    *requestor.Hook
	eventHook     *requestor.Hook

	killed atomic.Bool
	done   chan struct{}
}

// NewBase constructs the shared verb state from a JSON node's data.
// actionHookKey/eventHookKey are usually "actionHook"/"eventHook"; a few
// verbs use other names.
func NewBase(name Name, pre Precondition, data map[string]any, actionHookKey, eventHookKey string) Base {
	b := Base{name: name, preconditions: pre, done: make(chan struct{})}
	if actionHookKey != "" {
		if h, ok := ParseHook(data[actionHookKey]); ok {
			b.actionHook = &h
		}
	}
	if eventHookKey != "" {
		if h, ok := ParseHook(data[eventHookKey]); ok {
			b.eventHook = &h
		}
	}
	return b
}

func (b *Base) Name() Name                     { return b.name }
func (b *Base) Preconditions() Precondition     { return b.preconditions }
func (b *Base) HandlesCommand(_ string) bool    { return false }
func (b *Base) HandleCommand(context.Context, Session, requestor.Command) {}

// MarkKilled flips the idempotent killed flag and closes done, unblocking
// anything selecting on Done().
func (b *Base) MarkKilled() {
	if b.killed.CompareAndSwap(false, true) {
		close(b.done)
	}
}

func (b *Base) IsKilled() bool    { return b.killed.Load() }
func (b *Base) Done() <-chan struct{} { return b.done }

// PerformAction posts the task's result to its action hook, plus standard
// call identifiers. A 2xx JSON array-of-verb-nodes response triggers
// application replacement when advance is true.
func (b *Base) PerformAction(ctx context.Context, sess Session, result map[string]any, advance bool) error {
	return b.report(ctx, sess, b.actionHook, "verb:status", result, advance)
}

// PerformHook posts an intra-task event to the task's event hook. A
// redirect response always replaces the application, regardless of the
// advance flag PerformAction takes (event hooks have no "advance" concept).
func (b *Base) PerformHook(ctx context.Context, sess Session, results map[string]any) error {
	return b.report(ctx, sess, b.eventHook, string(b.name)+":event", results, true)
}

func (b *Base) report(ctx context.Context, sess Session, hook *requestor.Hook, msgType string, payload map[string]any, advance bool) error {
	if hook == nil {
		return nil
	}
	body := map[string]any{
		"call_sid":    sess.CallSID(),
		"account_sid": sess.AccountSID(),
		"epoch":       sess.Epoch(),
	}
	for k, v := range payload {
		body[k] = v
	}

	epoch := sess.Epoch()
	resp, err := sess.Requestor().Request(ctx, msgType, *hook, body, headersFor(sess))
	if err != nil {
		return err
	}
	if !advance || resp == nil || sess.Epoch() != epoch {
		return nil
	}
	if nodes, ok := asVerbNodes(resp); ok {
		tasks, err := ParseTasks(nodes)
		if err != nil {
			sess.Alerts().Raise(alerts.InvalidAppPayload, sess.CallSID(), err.Error())
			return nil
		}
		sess.ReplaceApplication(tasks)
	}
	return nil
}

// asVerbNodes reports whether resp is a JSON array, i.e. a new application.
func asVerbNodes(resp any) ([]any, bool) {
	arr, ok := resp.([]any)
	return arr, ok
}

// decodeInto is a small convenience for verbs that want a typed view of
// their raw JSON data map.
func decodeInto(data map[string]any, dst any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
