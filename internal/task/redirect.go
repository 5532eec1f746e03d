package task

import (
	"context"
	"fmt"

	"github.com/flowpbx/callengine/internal/callerr"
	"github.com/flowpbx/callengine/internal/requestor"
)

// Redirect fetches a new application from an explicit hook and replaces
// the remainder of the current task list with it, grounded on a bare
// webhook-fetch stub this package's Requestor fully builds out, and on
// an edge-following-by-replacement transfer shape.
type Redirect struct {
	Base
	Hook requestor.Hook
}

func newRedirect(data map[string]any) (Task, error) {
	h, ok := ParseHook(data["actionHook"])
	if !ok {
		h, ok = ParseHook(data["url"])
	}
	if !ok {
		return nil, fmt.Errorf("redirect: missing url")
	}
	return &Redirect{
		Base: NewBase(NameRedirect, None, data, "", ""),
		Hook: h,
	}, nil
}

func (r *Redirect) Exec(ctx context.Context, sess Session) error {
	resp, err := sess.Requestor().Request(ctx, "redirect", r.Hook, map[string]any{
		"call_sid": sess.CallSID(),
	}, nil)
	if err != nil {
		return &callerr.TaskError{Task: string(r.Name()), Err: err}
	}
	nodes, ok := resp.([]any)
	if !ok {
		return &callerr.TaskError{Task: string(r.Name()), Err: fmt.Errorf("redirect target did not return an application")}
	}
	tasks, err := ParseTasks(nodes)
	if err != nil {
		return &callerr.TaskError{Task: string(r.Name()), Err: err}
	}
	sess.ReplaceApplication(tasks)
	return nil
}

func (r *Redirect) Kill(sess Session) { r.MarkKilled() }
