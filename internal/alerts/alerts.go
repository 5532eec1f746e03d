// Package alerts emits user-visible, fire-and-forget operational alerts.
// Emission never blocks a call: callers hand an Alert to a buffered channel
// and a single background goroutine drains it, the same async,
// non-blocking shape used for background cleanup tickers elsewhere.
package alerts

import (
	"log/slog"
	"time"
)

// Kind enumerates the operator-facing alert taxonomy.
type Kind string

const (
	WebhookConnectionFailure Kind = "WEBHOOK_CONNECTION_FAILURE"
	WebhookStatusFailure     Kind = "WEBHOOK_STATUS_FAILURE"
	InvalidAppPayload        Kind = "INVALID_APP_PAYLOAD"
)

// Alert is a single occurrence of an alertable condition.
type Alert struct {
	Kind      Kind
	CallSID   string
	Detail    string
	Timestamp time.Time
}

// Sink receives alerts for out-of-band delivery (e.g. to an accounts
// dashboard). The core engine only needs to log them; a real deployment
// would plug in an accounts/alerting backend here.
type Sink interface {
	Emit(Alert)
}

// LogSink is the default Sink: it logs every alert via log/slog.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a Sink that logs alerts at warn level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("subsystem", "alerts")}
}

func (s *LogSink) Emit(a Alert) {
	s.logger.Warn("alert",
		"kind", string(a.Kind),
		"call_sid", a.CallSID,
		"detail", a.Detail,
	)
}

const queueDepth = 256

// Emitter buffers alerts and dispatches them to a Sink from a single
// background goroutine, so that a slow or blocking sink never stalls the
// call that raised the alert.
type Emitter struct {
	sink  Sink
	queue chan Alert
	done  chan struct{}
}

// NewEmitter starts the background dispatch goroutine. Call Close to stop it.
func NewEmitter(sink Sink) *Emitter {
	e := &Emitter{
		sink:  sink,
		queue: make(chan Alert, queueDepth),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Emitter) run() {
	for {
		select {
		case a, ok := <-e.queue:
			if !ok {
				close(e.done)
				return
			}
			e.sink.Emit(a)
		}
	}
}

// Raise enqueues an alert without blocking. If the queue is full (the sink
// is falling behind), the alert is dropped rather than blocking the call
// that raised it. Alerts are best-effort by design; they must never slow
// down or stall call processing.
func (e *Emitter) Raise(kind Kind, callSID, detail string) {
	select {
	case e.queue <- Alert{Kind: kind, CallSID: callSID, Detail: detail, Timestamp: time.Now()}:
	default:
	}
}

// Close stops the background goroutine once the queue drains.
func (e *Emitter) Close() {
	close(e.queue)
	<-e.done
}
