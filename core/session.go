package core

import (
	"time"
)

// DefaultHistoryCap bounds the number of turns retained per session.
const DefaultHistoryCap = 50

// Turn is one entry of the conversation history.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Intent    Intent    `json:"intent,omitempty"`
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionContext is the mutable per-conversation state. It is owned by a
// SessionStore and mutated only by the accumulator and the state machine;
// callers always operate on clones handed out by the store.
//
// Contract:
//   - ID is stable for the session lifetime
//   - History is bounded; AddTurn evicts the oldest entries past the cap
//   - Completeness is derived and recomputed after every merge
//   - Clone performs deep copies of maps/slices for safe divergence
type SessionContext struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	State         State `json:"state"`
	PreviousState State `json:"previous_state,omitempty"`

	History      []Turn        `json:"history"`
	Context      LessonContext `json:"context"`
	Completeness float64       `json:"completeness"`

	CompletedTasks   []string `json:"completed_tasks"`
	PendingQuestions []string `json:"pending_questions"`

	// AskedField is the field the pending clarification question targets.
	AskedField Field `json:"asked_field,omitempty"`
	// ClarificationRounds counts consecutive CLARIFYING re-entries without
	// newly extracted required facts.
	ClarificationRounds int `json:"clarification_rounds"`
	// AwaitingConfirmation is set while the user is asked to confirm a
	// complete context before design starts.
	AwaitingConfirmation bool `json:"awaiting_confirmation,omitempty"`
	// TaskIntent is the content-producing intent the lifecycle is serving.
	TaskIntent Intent `json:"task_intent,omitempty"`
	// Defaulted lists required fields filled with defaults by the
	// clarification escape valve.
	Defaulted []Field `json:"defaulted,omitempty"`

	TurnCount int               `json:"turn_count"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewSessionContext creates a session in the INITIALIZING state.
func NewSessionContext(id string) *SessionContext {
	now := time.Now().UTC()
	return &SessionContext{
		ID:               id,
		StartedAt:        now,
		UpdatedAt:        now,
		State:            StateInitializing,
		History:          []Turn{},
		CompletedTasks:   []string{},
		PendingQuestions: []string{},
		Metadata:         map[string]string{},
	}
}

// Touch refreshes UpdatedAt.
func (s *SessionContext) Touch() { s.UpdatedAt = time.Now().UTC() }

// AddTurn appends a turn and evicts the oldest entries beyond limit. A
// non-positive limit falls back to DefaultHistoryCap.
func (s *SessionContext) AddTurn(t Turn, limit int) {
	if limit <= 0 {
		limit = DefaultHistoryCap
	}
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	s.History = append(s.History, t)
	if over := len(s.History) - limit; over > 0 {
		s.History = append([]Turn(nil), s.History[over:]...)
	}
	s.Touch()
}

// UserTurns returns the number of user turns currently retained.
func (s *SessionContext) UserTurns() int {
	n := 0
	for _, t := range s.History {
		if t.Role == "user" {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *SessionContext) Clone() *SessionContext {
	clone := *s
	clone.History = append([]Turn(nil), s.History...)
	clone.Context = s.Context.Clone()
	clone.CompletedTasks = append([]string(nil), s.CompletedTasks...)
	clone.PendingQuestions = append([]string(nil), s.PendingQuestions...)
	clone.Defaulted = append([]Field(nil), s.Defaulted...)
	clone.Metadata = make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	return &clone
}

// SessionSummary is the read-only overview returned by session management.
type SessionSummary struct {
	SessionID           string    `json:"session_id"`
	State               State     `json:"state"`
	TotalTurns          int       `json:"total_turns"`
	Completeness        float64   `json:"completeness"`
	MissingFields       []Field   `json:"missing_fields"`
	CompletedTasks      []string  `json:"completed_tasks"`
	PendingQuestions    []string  `json:"pending_questions"`
	ClarificationRounds int       `json:"clarification_rounds"`
	LastUpdated         time.Time `json:"last_updated"`
}

// SessionStore owns every SessionContext. Implementations hand out clones and
// must be safe for concurrent use; per-session serialization of whole turns
// is the caller's responsibility.
type SessionStore interface {
	// Create stores a brand new session and returns a clone of it.
	Create(id string) (*SessionContext, error)
	// Get returns a clone of an existing session or ErrSessionNotFound.
	Get(id string) (*SessionContext, error)
	// GetOrCreate returns the existing session or creates it; created
	// reports which path was taken.
	GetOrCreate(id string) (sess *SessionContext, created bool, err error)
	// Save replaces the stored session with a clone of sess.
	Save(sess *SessionContext) error
	// Delete removes a session, reporting whether it existed.
	Delete(id string) (bool, error)
}
