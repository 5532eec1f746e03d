package task

import (
	"context"
	"fmt"
	"time"

	"github.com/flowpbx/callengine/internal/callerr"
)

// Dial rings one or more targets in sequence and bridges the first to
// answer, grounded on a ringgroup.go/extension.go sequential
// ring-and-bridge logic — there dispatched through a SIPActions facade,
// here through the vendor-neutral ep.API command surface.
type Dial struct {
	Base
	Targets []string
	Timeout time.Duration
}

func newDial(data map[string]any) (Task, error) {
	d := &Dial{
		Base:    NewBase(NameDial, StableCall, data, "actionHook", ""),
		Targets: strSlice(data, "targets"),
		Timeout: time.Duration(number(data, "timeout", 30)) * time.Second,
	}
	if len(d.Targets) == 0 {
		if t := str(data, "target", ""); t != "" {
			d.Targets = []string{t}
		}
	}
	return d, nil
}

func (d *Dial) Exec(ctx context.Context, sess Session) error {
	if len(d.Targets) == 0 {
		return &callerr.TaskError{Task: string(d.Name()), Err: fmt.Errorf("no dial targets")}
	}
	ep, err := sess.EnsureEndpoint(ctx)
	if err != nil {
		return &callerr.TaskError{Task: string(d.Name()), Err: err}
	}

	for _, target := range d.Targets {
		select {
		case <-d.Done():
			_ = d.PerformAction(ctx, sess, map[string]any{"reason": "killed"}, true)
			return nil
		default:
		}

		attemptCtx, cancel := context.WithTimeout(ctx, d.Timeout)
		reply, err := ep.API(attemptCtx, "dial", []string{target})
		cancel()
		if err == nil {
			_ = d.PerformAction(ctx, sess, map[string]any{
				"reason":         "answered",
				"dial_call_sid":  reply,
				"dial_call_dest": target,
			}, true)
			return nil
		}
		// No alternates left; this is the one verb where an exhausted
		// retry loop reports failure instead of the usual continue-on-error.
	}

	err = &callerr.TaskError{Task: string(d.Name()), Err: fmt.Errorf("all dial targets failed")}
	_ = d.PerformAction(ctx, sess, map[string]any{"reason": "failed"}, true)
	return err
}

func (d *Dial) Kill(sess Session) { d.MarkKilled() }
