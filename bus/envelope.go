package bus

import (
	"errors"
	"time"

	"github.com/hupe1980/dialogmesh/core"
)

// Priority orders envelopes. Higher values are more urgent.
type Priority int

const (
	PriorityDeferred Priority = 0
	PriorityLow      Priority = 25
	PriorityNormal   Priority = 50
	PriorityHigh     Priority = 75
	PriorityCritical Priority = 100
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityDeferred:
		return "deferred"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "custom"
	}
}

// Pattern describes how an envelope is meant to be delivered.
type Pattern string

const (
	PatternRequestResponse Pattern = "request_response"
	PatternBroadcast       Pattern = "broadcast"
	PatternUnicast         Pattern = "unicast"
	PatternMulticast       Pattern = "multicast"
	PatternStreaming       Pattern = "streaming"
	PatternWorkflow        Pattern = "workflow"
	PatternConsensus       Pattern = "consensus"
)

// EventType names a category of envelope.
type EventType string

const (
	EventTurnReceived           EventType = "turn.received"
	EventContextUpdated         EventType = "context.updated"
	EventStateChanged           EventType = "state.changed"
	EventPlanCreated            EventType = "plan.created"
	EventAgentStarted           EventType = "agent.started"
	EventAgentCompleted         EventType = "agent.completed"
	EventAgentFailed            EventType = "agent.failed"
	EventResponseReady          EventType = "response.ready"
	EventSessionStarted         EventType = "session.started"
	EventSessionEnded           EventType = "session.ended"
	EventClarificationRequested EventType = "clarification.requested"
)

var (
	// ErrInvalidEnvelope is returned when an envelope lacks required fields.
	ErrInvalidEnvelope = errors.New("invalid envelope")
	// ErrEnvelopeExpired is returned when an envelope outlived its TTL before routing.
	ErrEnvelopeExpired = errors.New("envelope expired")
)

// Envelope is the unit of communication on the bus.
type Envelope struct {
	ID            string
	CorrelationID string
	CausationID   string
	CreatedAt     time.Time
	// TTL is nil when the envelope never expires.
	TTL         *time.Duration
	Priority    Priority
	Pattern     Pattern
	EventType   EventType
	Data        map[string]any
	SourceAgent string
	TargetAgent string
	TargetGroup string
}

// NewEnvelope returns a broadcast envelope with a fresh ID and normal priority.
// The envelope starts its own correlation chain.
func NewEnvelope(eventType EventType, source string, data map[string]any) Envelope {
	id := core.NewID()
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{
		ID:            id,
		CorrelationID: id,
		CreatedAt:     time.Now().UTC(),
		Priority:      PriorityNormal,
		Pattern:       PatternBroadcast,
		EventType:     eventType,
		Data:          data,
		SourceAgent:   source,
	}
}

// WithTTL returns a copy of the envelope that expires after d.
func (e Envelope) WithTTL(d time.Duration) Envelope {
	e.TTL = &d
	return e
}

// WithTarget returns a unicast copy addressed to a single agent.
func (e Envelope) WithTarget(agent string) Envelope {
	e.TargetAgent = agent
	e.Pattern = PatternUnicast
	return e
}

// WithGroup returns a multicast copy addressed to a subscriber group.
func (e Envelope) WithGroup(group string) Envelope {
	e.TargetGroup = group
	e.Pattern = PatternMulticast
	return e
}

// Reply builds a response envelope to e. The reply's CorrelationID and
// CausationID are both e.ID.
func (e Envelope) Reply(eventType EventType, source string, data map[string]any) Envelope {
	r := NewEnvelope(eventType, source, data)
	r.CorrelationID = e.ID
	r.CausationID = e.ID
	r.Priority = e.Priority
	r.Pattern = PatternRequestResponse
	r.TargetAgent = e.SourceAgent
	return r
}

// Expired reports whether the envelope's TTL has elapsed at now.
// A TTL of zero is expired immediately.
func (e Envelope) Expired(now time.Time) bool {
	if e.TTL == nil {
		return false
	}
	return !now.Before(e.CreatedAt.Add(*e.TTL))
}

// Validate checks the fields every published envelope must carry.
func (e Envelope) Validate() error {
	switch {
	case e.ID == "":
		return errors.Join(ErrInvalidEnvelope, errors.New("missing id"))
	case e.EventType == "":
		return errors.Join(ErrInvalidEnvelope, errors.New("missing event type"))
	case e.CreatedAt.IsZero():
		return errors.Join(ErrInvalidEnvelope, errors.New("missing creation time"))
	case e.TTL != nil && *e.TTL < 0:
		return errors.Join(ErrInvalidEnvelope, errors.New("negative ttl"))
	}
	return nil
}

func (e Envelope) clone() Envelope {
	if e.Data != nil {
		d := make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			d[k] = v
		}
		e.Data = d
	}
	if e.TTL != nil {
		ttl := *e.TTL
		e.TTL = &ttl
	}
	return e
}
