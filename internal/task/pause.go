package task

import (
	"context"
	"time"

	"github.com/flowpbx/callengine/internal/callerr"
)

// Pause waits a fixed duration, or until killed. It has no direct
// precedent — the original graph model had no bare-delay node — so it is
// written fresh in the surrounding verbs' idiom.
type Pause struct {
	Base
	Length time.Duration
}

func newPause(data map[string]any) (Task, error) {
	return &Pause{
		Base:   NewBase(NamePause, None, data, "actionHook", ""),
		Length: time.Duration(number(data, "length", 1)) * time.Second,
	}, nil
}

func (p *Pause) Exec(ctx context.Context, sess Session) error {
	timer := time.NewTimer(p.Length)
	defer timer.Stop()
	select {
	case <-timer.C:
		_ = p.PerformAction(ctx, sess, map[string]any{"reason": "completed"}, true)
		return nil
	case <-p.Done():
		_ = p.PerformAction(ctx, sess, map[string]any{"reason": "killed"}, true)
		return nil
	case <-ctx.Done():
		return &callerr.TaskError{Task: string(p.Name()), Err: ctx.Err()}
	}
}

func (p *Pause) Kill(sess Session) { p.MarkKilled() }
