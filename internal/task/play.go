package task

import (
	"context"

	"github.com/flowpbx/callengine/internal/callerr"
)

// Play streams a pre-recorded audio file through the endpoint, grounded on
// a play_message.go file-playback path (as opposed to Say's TTS path).
type Play struct {
	Base
	URL  string
	Loop int
}

func newPlay(data map[string]any) (Task, error) {
	p := &Play{
		Base: NewBase(NamePlay, Endpoint, data, "actionHook", ""),
		URL:  str(data, "url", ""),
		Loop: int(number(data, "loop", 1)),
	}
	return p, nil
}

func (p *Play) Exec(ctx context.Context, sess Session) error {
	ep, err := sess.EnsureEndpoint(ctx)
	if err != nil {
		return &callerr.TaskError{Task: string(p.Name()), Err: err}
	}

	loops := p.Loop
	if loops <= 0 {
		loops = 1
	}
	for i := 0; i < loops; i++ {
		select {
		case <-p.Done():
			_ = p.PerformAction(ctx, sess, map[string]any{"reason": "killed"}, true)
			return nil
		default:
		}
		if err := ep.Play(ctx, p.URL); err != nil {
			return &callerr.TaskError{Task: string(p.Name()), Err: err}
		}
	}
	_ = p.PerformAction(ctx, sess, map[string]any{"reason": "completed"}, true)
	return nil
}

func (p *Play) Kill(sess Session) { p.MarkKilled() }
