package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/flowpbx/callengine/internal/alerts"
)

type fakeSessions struct{ n int }

func (f fakeSessions) ActiveSessionCount() int { return f.n }

func TestCollectorReportsActiveSessionsAndUptime(t *testing.T) {
	c := NewCollector(fakeSessions{n: 3}, time.Now().Add(-time.Minute))

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var sawActive, sawUptime bool
	for _, mf := range mfs {
		switch mf.GetName() {
		case "callengine_active_sessions":
			sawActive = true
			if got := mf.Metric[0].GetGauge().GetValue(); got != 3 {
				t.Fatalf("expected active sessions 3, got %v", got)
			}
		case "callengine_uptime_seconds":
			sawUptime = true
			if got := mf.Metric[0].GetGauge().GetValue(); got <= 0 {
				t.Fatalf("expected positive uptime, got %v", got)
			}
		}
	}
	if !sawActive || !sawUptime {
		t.Fatalf("expected both active-sessions and uptime metrics, got %v", mfs)
	}
}

func TestAlertSinkIncrementsCounterByKind(t *testing.T) {
	c := NewCollector(nil, time.Now())
	sink := AlertSink{Counter: c.Alerts}

	sink.Emit(alerts.Alert{Kind: alerts.InvalidAppPayload, CallSID: "call-1"})
	sink.Emit(alerts.Alert{Kind: alerts.InvalidAppPayload, CallSID: "call-2"})
	sink.Emit(alerts.Alert{Kind: alerts.WebhookStatusFailure, CallSID: "call-3"})

	var m dto.Metric
	if err := c.Alerts.WithLabelValues(string(alerts.InvalidAppPayload)).Write(&m); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 InvalidAppPayload alerts counted, got %v", got)
	}
}

func TestMultiSinkFansOutToEverySink(t *testing.T) {
	var a, b int
	sinkA := recordingSink{fn: func() { a++ }}
	sinkB := recordingSink{fn: func() { b++ }}
	m := MultiSink{sinkA, sinkB}

	m.Emit(alerts.Alert{Kind: alerts.WebhookConnectionFailure})

	if a != 1 || b != 1 {
		t.Fatalf("expected both sinks to observe the alert, got a=%d b=%d", a, b)
	}
}

type recordingSink struct{ fn func() }

func (r recordingSink) Emit(alerts.Alert) { r.fn() }
