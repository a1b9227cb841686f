// Package observer implements spec §4.9 component I: a read-only
// projection surface over the daemon's sessions, channels, and events,
// exposed as Prometheus metrics, OpenTelemetry traces, and a websocket
// event stream. Nothing in this package mutates daemon state.
package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the daemon's Prometheus series. cmd/nexusd creates one
// instance at startup and passes it to fsmengine, which records the tick
// duration histogram. The active-session gauge and the MCP restart,
// tool-dispatch and scrollback-eviction counters have recording methods
// here but no caller in the daemon, so they are never updated.
type Metrics struct {
	// FSMTickDuration measures one scheduler tick's wall time (spec §4.7).
	// Labels: state (the session's state when the tick began).
	FSMTickDuration *prometheus.HistogramVec

	// ActiveSessions is the current count of non-terminal sessions.
	ActiveSessions prometheus.Gauge

	// MCPServerRestarts counts supervisor-initiated MCP server restarts
	// (component C, spec §4.4).
	// Labels: server.
	MCPServerRestarts *prometheus.CounterVec

	// ToolDispatches counts tool calls dispatched by outcome (component
	// D, spec §4.3).
	// Labels: tool, outcome (success|error|needs_approval).
	ToolDispatches *prometheus.CounterVec

	// PTYScrollbackEvictions counts ring-buffer evictions in a PTY
	// session's scrollback (component B, spec §4.5).
	// Labels: session.
	PTYScrollbackEvictions *prometheus.CounterVec
}

// NewMetrics registers the daemon's metrics against reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests) or nil to
// use the default global registry (the one promhttp.Handler serves).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		FSMTickDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexusd_fsm_tick_duration_seconds",
				Help:    "Duration of one session's scheduler tick in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"state"},
		),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nexusd_active_sessions",
			Help: "Current number of sessions not in a terminal state",
		}),
		MCPServerRestarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusd_mcp_server_restarts_total",
				Help: "Total number of MCP server supervisor restarts",
			},
			[]string{"server"},
		),
		ToolDispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusd_tool_dispatches_total",
				Help: "Total number of tool dispatches by outcome",
			},
			[]string{"tool", "outcome"},
		),
		PTYScrollbackEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusd_pty_scrollback_evictions_total",
				Help: "Total number of PTY ring buffer scrollback evictions",
			},
			[]string{"session"},
		),
	}
}

// ObserveTick records one scheduler tick's duration for state.
func (m *Metrics) ObserveTick(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.FSMTickDuration.WithLabelValues(state).Observe(d.Seconds())
}

// SetActiveSessions sets the current non-terminal session count.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// RecordMCPRestart increments the restart counter for server.
func (m *Metrics) RecordMCPRestart(server string) {
	if m == nil {
		return
	}
	m.MCPServerRestarts.WithLabelValues(server).Inc()
}

// RecordToolDispatch increments the dispatch counter for tool/outcome.
func (m *Metrics) RecordToolDispatch(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolDispatches.WithLabelValues(tool, outcome).Inc()
}

// RecordScrollbackEviction increments the eviction counter for session.
func (m *Metrics) RecordScrollbackEviction(sessionID string) {
	if m == nil {
		return
	}
	m.PTYScrollbackEvictions.WithLabelValues(sessionID).Inc()
}
