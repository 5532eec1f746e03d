package task

import (
	"context"

	"github.com/flowpbx/callengine/internal/callerr"
)

// Say plays synthesized speech text through the endpoint, grounded on a
// play_message.go prompt-playback shape, generalized from a file
// path to arbitrary TTS text plus an optional pre-rendered file cache.
type Say struct {
	Base
	Text       string
	Language   string
	Loop       int
	EarlyMedia bool
}

func newSay(data map[string]any) (Task, error) {
	s := &Say{
		Base:       NewBase(NameSay, Endpoint, data, "actionHook", ""),
		Text:       str(data, "text", ""),
		Language:   str(data, "language", "en-US"),
		Loop:       int(number(data, "loop", 1)),
		EarlyMedia: boolean(data, "earlyMedia", false),
	}
	return s, nil
}

func (s *Say) Exec(ctx context.Context, sess Session) error {
	ep, err := sess.EnsureEndpoint(ctx)
	if err != nil {
		return &callerr.TaskError{Task: string(s.Name()), Err: err}
	}

	loops := s.Loop
	if loops <= 0 {
		loops = 1
	}
	for i := 0; i < loops; i++ {
		select {
		case <-s.Done():
			return s.finish(ctx, sess, "killed")
		default:
		}
		if err := ep.Play(ctx, "tts:"+s.Text); err != nil {
			return &callerr.TaskError{Task: string(s.Name()), Err: err}
		}
	}
	return s.finish(ctx, sess, "completed")
}

func (s *Say) finish(ctx context.Context, sess Session, reason string) error {
	_ = s.PerformAction(ctx, sess, map[string]any{"reason": reason}, true)
	return nil
}

func (s *Say) Kill(sess Session) { s.MarkKilled() }
