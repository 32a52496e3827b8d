// Package metrics exposes Prometheus collectors for turns, agent calls,
// transitions and bus traffic. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dialogmesh"

// Metrics holds the engine collectors.
type Metrics struct {
	Turns          *prometheus.CounterVec
	TurnDuration   prometheus.Histogram
	AgentCalls     *prometheus.CounterVec
	AgentDuration  *prometheus.HistogramVec
	Transitions    *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	Envelopes      *prometheus.CounterVec
	Completeness   prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Processed conversation turns by resulting state and outcome.",
		}, []string{"state", "outcome"}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time spent processing a turn.",
			Buckets:   prometheus.DefBuckets,
		}),
		AgentCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_calls_total",
			Help:      "Agent invocations by agent and outcome.",
		}, []string{"agent", "outcome"}),
		AgentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_duration_seconds",
			Help:      "Agent execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Conversation state transitions.",
		}, []string{"from", "to"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory.",
		}),
		Envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_envelopes_total",
			Help:      "Bus envelopes by event type and disposition.",
		}, []string{"event_type", "disposition"}),
		Completeness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_completeness",
			Help:      "Context completeness observed at the end of each turn.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Turns, m.TurnDuration, m.AgentCalls, m.AgentDuration,
			m.Transitions, m.ActiveSessions, m.Envelopes, m.Completeness)
	}
	return m
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(state string, success bool, completeness float64, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(state, outcome(success)).Inc()
	m.TurnDuration.Observe(d.Seconds())
	m.Completeness.Observe(completeness)
}

// ObserveAgent records a single agent call.
func (m *Metrics) ObserveAgent(agent string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.AgentCalls.WithLabelValues(agent, outcome(success)).Inc()
	m.AgentDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// ObserveTransition records a state change.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionEnded decrements the active session gauge.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// EnvelopePublished implements bus.Observer.
func (m *Metrics) EnvelopePublished(eventType string) { m.envelope(eventType, "published") }

// EnvelopeDelivered implements bus.Observer.
func (m *Metrics) EnvelopeDelivered(eventType string) { m.envelope(eventType, "delivered") }

// EnvelopeExpired implements bus.Observer.
func (m *Metrics) EnvelopeExpired(eventType string) { m.envelope(eventType, "expired") }

// HandlerFailed implements bus.Observer.
func (m *Metrics) HandlerFailed(eventType string) { m.envelope(eventType, "handler_error") }

func (m *Metrics) envelope(eventType, disposition string) {
	if m == nil {
		return
	}
	m.Envelopes.WithLabelValues(eventType, disposition).Inc()
}
