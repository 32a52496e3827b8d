package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTurn("GATHERING", true, 0.175, 10*time.Millisecond)
	m.ObserveTurn("GATHERING", true, 0.35, 10*time.Millisecond)
	m.ObserveAgent("curriculum", false, time.Millisecond)
	m.ObserveTransition("GREETING", "GATHERING")
	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()
	m.EnvelopePublished("turn.received")
	m.HandlerFailed("turn.received")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Turns.WithLabelValues("GATHERING", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentCalls.WithLabelValues("curriculum", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("GREETING", "GATHERING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Envelopes.WithLabelValues("turn.received", "handler_error")))

	n, err := testutil.GatherAndCount(reg, "dialogmesh_turns_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("ERROR", false, 0, time.Second)
		m.ObserveAgent("x", true, 0)
		m.ObserveTransition("a", "b")
		m.SessionStarted()
		m.SessionEnded()
		m.EnvelopeDelivered("x")
		m.EnvelopeExpired("x")
	})
}
