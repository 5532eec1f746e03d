// Package telemetry exposes call-engine metrics as a prometheus.Collector,
// grounded on a scrape-time collector pattern where an original PBX
// metrics package polled its providers (active calls, trunk status) at
// scrape time. This package keeps that shape for ActiveSessionsProvider
// and layers plain counters/histograms for the event-driven signals
// (hook latency, retries, reconnects, alerts) that have no natural
// "ask at scrape time" source.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowpbx/callengine/internal/alerts"
)

// ActiveSessionsProvider exposes the number of live call sessions.
type ActiveSessionsProvider interface {
	ActiveSessionCount() int
}

// Collector is the process-wide prometheus.Collector for the call engine.
type Collector struct {
	sessions  ActiveSessionsProvider
	startTime time.Time

	activeSessionsDesc *prometheus.Desc
	uptimeDesc         *prometheus.Desc

	HookLatency  *prometheus.HistogramVec
	HookRetries  *prometheus.CounterVec
	Reconnects   prometheus.Counter
	Alerts       *prometheus.CounterVec
	TasksExecd   *prometheus.CounterVec
	SessionsDone *prometheus.CounterVec
}

// NewCollector creates the collector. sessions may be nil if unavailable.
func NewCollector(sessions ActiveSessionsProvider, startTime time.Time) *Collector {
	return &Collector{
		sessions:  sessions,
		startTime: startTime,

		activeSessionsDesc: prometheus.NewDesc(
			"callengine_active_sessions",
			"Number of currently active call sessions",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"callengine_uptime_seconds",
			"Seconds since the call engine process started",
			nil, nil,
		),

		HookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callengine_hook_duration_seconds",
			Help:    "Webhook round-trip latency by transport and message type",
			Buckets: prometheus.DefBuckets,
		}, []string{"transport", "msg_type"}),

		HookRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callengine_hook_retries_total",
			Help: "Webhook retry attempts by retry-policy token class",
		}, []string{"class"}),

		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callengine_ws_reconnects_total",
			Help: "Total WS requestor reconnect attempts that succeeded",
		}),

		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callengine_alerts_total",
			Help: "Alerts raised, by kind",
		}, []string{"kind"}),

		TasksExecd: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callengine_tasks_total",
			Help: "Tasks executed, by verb and outcome",
		}, []string{"verb", "outcome"}),

		SessionsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callengine_sessions_total",
			Help: "Call sessions completed, by ending reason",
		}, []string{"reason"}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeSessionsDesc
	ch <- c.uptimeDesc
	c.HookLatency.Describe(ch)
	c.HookRetries.Describe(ch)
	c.Reconnects.Describe(ch)
	c.Alerts.Describe(ch)
	c.TasksExecd.Describe(ch)
	c.SessionsDone.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.sessions != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeSessionsDesc, prometheus.GaugeValue,
			float64(c.sessions.ActiveSessionCount()),
		)
	}
	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
	c.HookLatency.Collect(ch)
	c.HookRetries.Collect(ch)
	c.Reconnects.Collect(ch)
	c.Alerts.Collect(ch)
	c.TasksExecd.Collect(ch)
	c.SessionsDone.Collect(ch)
}

// AlertSink implements alerts.Sink by incrementing a counter per kind. It
// is meant to be combined with alerts.LogSink via MultiSink so every alert
// is both logged and counted.
type AlertSink struct {
	Counter *prometheus.CounterVec
}

func (a AlertSink) Emit(al alerts.Alert) {
	a.Counter.WithLabelValues(string(al.Kind)).Inc()
}

// MultiSink fans an alert out to every sink in the list.
type MultiSink []alerts.Sink

func (m MultiSink) Emit(al alerts.Alert) {
	for _, s := range m {
		s.Emit(al)
	}
}
