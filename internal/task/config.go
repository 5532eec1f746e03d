package task

import (
	"context"

	"github.com/flowpbx/callengine/internal/mediaserver"
)

// Config applies session-level settings without producing any audio,
// grounded on a set_caller_id.go single-shot channel-variable verb,
// generalized to an arbitrary key/value bag applied via ep.Set.
type Config struct {
	Base
	Settings map[string]string
}

func newConfig(data map[string]any) (Task, error) {
	c := &Config{
		Base:     NewBase(NameConfig, None, data, "actionHook", ""),
		Settings: map[string]string{},
	}
	for k, v := range data {
		if k == "actionHook" {
			continue
		}
		if s, ok := v.(string); ok {
			c.Settings[k] = s
		}
	}
	return c, nil
}

func (c *Config) Exec(ctx context.Context, sess Session) error {
	var ep mediaserver.Endpoint
	if sess.Endpoint() != nil {
		ep = sess.Endpoint()
		for k, v := range c.Settings {
			_ = ep.Set(ctx, k, v)
		}
	}
	_ = c.PerformAction(ctx, sess, map[string]any{"reason": "completed"}, true)
	return nil
}

func (c *Config) Kill(sess Session) { c.MarkKilled() }
