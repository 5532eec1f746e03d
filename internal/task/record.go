package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowpbx/callengine/internal/callerr"
	"github.com/flowpbx/callengine/internal/mediaserver"
	"github.com/google/uuid"
)

// Record captures audio from the endpoint to a sink file, grounded on a
// voicemail.go recording flow. The temp file is registered with
// the session via TrackTmpFile so it is removed at teardown even if the
// verb's own cleanup never runs.
type Record struct {
	Base
	MaxDurationSec int
	Beep           bool
	FinishOnKey    string
	Path           string
}

func newRecord(data map[string]any) (Task, error) {
	r := &Record{
		Base:           NewBase(NameRecord, Endpoint, data, "actionHook", "eventHook"),
		MaxDurationSec: int(number(data, "maxDurationSeconds", 60)),
		Beep:           boolean(data, "beep", true),
		FinishOnKey:    str(data, "finishOnKey", "#"),
	}
	r.Path = fmt.Sprintf("/tmp/rec-%s.wav", uuid.NewString())
	return r, nil
}

func (r *Record) Exec(ctx context.Context, sess Session) error {
	ep, err := sess.EnsureEndpoint(ctx)
	if err != nil {
		return &callerr.TaskError{Task: string(r.Name()), Err: err}
	}
	sess.TrackTmpFile(r.Path)

	if r.Beep {
		if err := ep.Play(ctx, "tone_stream://%(200,0,1400)"); err != nil {
			return &callerr.TaskError{Task: string(r.Name()), Err: err}
		}
	}

	done := make(chan struct{})
	var once sync.Once
	ep.AddCustomEventListener("record-finished", func(_ mediaserver.CustomEvent) { once.Do(func() { close(done) }) })

	maxDur := r.MaxDurationSec
	if maxDur <= 0 {
		maxDur = 60
	}
	recordCtx, cancel := context.WithTimeout(ctx, time.Duration(maxDur)*time.Second)
	defer cancel()

	if _, err := ep.API(recordCtx, "record", []string{r.Path, fmt.Sprintf("%d", maxDur)}); err != nil {
		return &callerr.TaskError{Task: string(r.Name()), Err: err}
	}

	select {
	case <-r.Done():
		_ = ep.Set(ctx, "record_stop", r.Path)
		return r.finish(ctx, sess, "killed")
	case <-recordCtx.Done():
		return r.finish(ctx, sess, "maxDuration")
	case <-done:
		return r.finish(ctx, sess, "completed")
	}
}

func (r *Record) finish(ctx context.Context, sess Session, reason string) error {
	_ = r.PerformAction(ctx, sess, map[string]any{
		"reason": reason,
		"path":   r.Path,
		"format": "wav",
	}, true)
	return nil
}

func (r *Record) Kill(sess Session) { r.MarkKilled() }
