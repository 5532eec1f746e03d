package task

import (
	"context"
	"time"

	"github.com/flowpbx/callengine/internal/callerr"
	"github.com/flowpbx/callengine/internal/mediaserver"
)

// Transcribe streams speech-to-text results from the endpoint's custom
// events to the task's event hook until killed, using the same
// retry/recurring-report pattern as Gather's DTMF collection but for a
// continuous rather than bounded signal.
type Transcribe struct {
	Base
	Language      string
	InterimResult bool
}

func newTranscribe(data map[string]any) (Task, error) {
	t := &Transcribe{
		Base:          NewBase(NameTranscribe, Endpoint, data, "actionHook", "eventHook"),
		Language:      str(data, "language", "en-US"),
		InterimResult: boolean(data, "interim", false),
	}
	return t, nil
}

func (t *Transcribe) Exec(ctx context.Context, sess Session) error {
	ep, err := sess.EnsureEndpoint(ctx)
	if err != nil {
		return &callerr.TaskError{Task: string(t.Name()), Err: err}
	}
	if err := ep.Set(ctx, "transcribe_language", t.Language); err != nil {
		return &callerr.TaskError{Task: string(t.Name()), Err: err}
	}

	ep.AddCustomEventListener("transcription", func(ev mediaserver.CustomEvent) {
		if !t.InterimResult && ev.Data["is_final"] != true {
			return
		}
		_ = t.PerformHook(ctx, sess, map[string]any{
			"transcript": ev.Data["transcript"],
			"is_final":   ev.Data["is_final"],
		})
	})

	if _, err := ep.API(ctx, "start_transcribe", []string{t.Language}); err != nil {
		return &callerr.TaskError{Task: string(t.Name()), Err: err}
	}

	select {
	case <-t.Done():
	case <-ctx.Done():
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = ep.API(stopCtx, "stop_transcribe", nil)
	_ = t.PerformAction(stopCtx, sess, map[string]any{"reason": "killed"}, true)
	return nil
}

func (t *Transcribe) Kill(sess Session) { t.MarkKilled() }
