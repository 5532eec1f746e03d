package task

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/flowpbx/callengine/internal/callerr"
	"github.com/flowpbx/callengine/internal/mediaserver"
)

// Gather plays a prompt and collects DTMF digits, retrying on timeout or an
// invalid entry up to a configured maximum, grounded on an ivr_menu.go
// retry loop (there driving a flow-graph edge, here reporting
// straight to the verb's action hook).
type Gather struct {
	Base
	Prompt      string
	NumDigits   int
	FinishOnKey string
	Timeout     time.Duration
	InterDigit  time.Duration
	MaxAttempts int

	mu      sync.Mutex
	digits  strings.Builder
	digitCh chan mediaserver.DTMFEvent
}

func newGather(data map[string]any) (Task, error) {
	g := &Gather{
		Base:        NewBase(NameGather, Endpoint, data, "actionHook", "eventHook"),
		Prompt:      str(data, "say", ""),
		NumDigits:   int(number(data, "numDigits", 1)),
		FinishOnKey: str(data, "finishOnKey", "#"),
		Timeout:     time.Duration(number(data, "timeout", 10)) * time.Second,
		InterDigit:  time.Duration(number(data, "interDigitTimeout", 3)) * time.Second,
		MaxAttempts: int(number(data, "maxAttempts", 3)),
		digitCh:     make(chan mediaserver.DTMFEvent, 16),
	}
	if g.MaxAttempts <= 0 {
		g.MaxAttempts = 1
	}
	return g, nil
}

func (g *Gather) Exec(ctx context.Context, sess Session) error {
	ep, err := sess.EnsureEndpoint(ctx)
	if err != nil {
		return &callerr.TaskError{Task: string(g.Name()), Err: err}
	}
	ep.OnDTMF(func(ev mediaserver.DTMFEvent) {
		select {
		case g.digitCh <- ev:
		default:
		}
	})

	for attempt := 1; attempt <= g.MaxAttempts; attempt++ {
		select {
		case <-g.Done():
			return g.report(ctx, sess, "killed", "")
		default:
		}

		if g.Prompt != "" {
			if err := ep.Play(ctx, "tts:"+g.Prompt); err != nil {
				return &callerr.TaskError{Task: string(g.Name()), Err: err}
			}
		}

		digits, outcome := g.collect(ctx)
		switch outcome {
		case "killed":
			return g.report(ctx, sess, "killed", digits)
		case "complete":
			return g.report(ctx, sess, "completed", digits)
		case "timeout":
			if attempt == g.MaxAttempts {
				return g.report(ctx, sess, "timeout", digits)
			}
			_ = g.PerformHook(ctx, sess, map[string]any{"reason": "timeout", "attempt": attempt})
		}
	}
	return g.report(ctx, sess, "invalid", "")
}

// collect waits for digits until finishOnKey, numDigits reached, the
// overall or inter-digit timeout elapses, or the task is killed.
func (g *Gather) collect(ctx context.Context) (string, string) {
	g.mu.Lock()
	g.digits.Reset()
	g.mu.Unlock()

	overall := time.NewTimer(g.Timeout)
	defer overall.Stop()
	interDigit := time.NewTimer(g.Timeout)
	defer interDigit.Stop()

	for {
		select {
		case <-ctx.Done():
			return g.snapshot(), "killed"
		case <-g.Done():
			return g.snapshot(), "killed"
		case <-overall.C:
			return g.snapshot(), "timeout"
		case <-interDigit.C:
			if g.snapshot() == "" {
				return "", "timeout"
			}
			return g.snapshot(), "complete"
		case ev := <-g.digitCh:
			if !interDigit.Stop() {
				<-interDigit.C
			}
			if ev.Digit == g.FinishOnKey {
				return g.snapshot(), "complete"
			}
			g.mu.Lock()
			g.digits.WriteString(ev.Digit)
			done := g.NumDigits > 0 && g.digits.Len() >= g.NumDigits
			g.mu.Unlock()
			if done {
				return g.snapshot(), "complete"
			}
			interDigit.Reset(g.InterDigit)
		}
	}
}

func (g *Gather) snapshot() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.digits.String()
}

func (g *Gather) report(ctx context.Context, sess Session, reason, digits string) error {
	_ = g.PerformAction(ctx, sess, map[string]any{"reason": reason, "digits": digits}, true)
	return nil
}

func (g *Gather) Kill(sess Session) { g.MarkKilled() }
