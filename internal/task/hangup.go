package task

import (
	"context"

	"github.com/flowpbx/callengine/internal/callerr"
)

// Hangup is a terminal verb: it ends the session, grounded on a
// hangup.go terminal-node handling shape.
type Hangup struct {
	Base
	Reason string
}

func newHangup(data map[string]any) (Task, error) {
	h := &Hangup{
		Base:   NewBase(NameHangup, StableCall, data, "actionHook", ""),
		Reason: str(data, "reason", "normal_clearing"),
	}
	return h, nil
}

func (h *Hangup) Exec(ctx context.Context, sess Session) error {
	_ = h.PerformAction(ctx, sess, map[string]any{"reason": h.Reason}, false)
	return &callerr.SessionTerminated{Reason: h.Reason}
}

func (h *Hangup) Kill(sess Session) { h.MarkKilled() }
