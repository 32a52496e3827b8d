package testutil

import (
	"github.com/hupe1980/dialogmesh/accumulator"
	"github.com/hupe1980/dialogmesh/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").State(core.StateClarifying).Field(core.FieldSubject, "math").Build()
type SessionBuilder struct {
	sess *core.SessionContext
}

// NewSessionBuilder creates a builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{sess: core.NewSessionContext(id)}
}

// State sets the lifecycle state (chainable).
func (b *SessionBuilder) State(s core.State) *SessionBuilder {
	b.sess.State = s
	return b
}

// Field sets a context field (chainable).
func (b *SessionBuilder) Field(f core.Field, v string) *SessionBuilder {
	b.sess.Context.Set(f, v)
	return b
}

// Required fills every required field with a plausible value (chainable).
func (b *SessionBuilder) Required() *SessionBuilder {
	return b.Field(core.FieldGradeLevel, "5th grade").
		Field(core.FieldSubject, "math").
		Field(core.FieldTopic, "fractions").
		Field(core.FieldContentType, "lesson")
}

// Task sets the task intent the session is serving (chainable).
func (b *SessionBuilder) Task(i core.Intent) *SessionBuilder {
	b.sess.TaskIntent = i
	return b
}

// Turn appends a history entry (chainable).
func (b *SessionBuilder) Turn(role, text string) *SessionBuilder {
	b.sess.AddTurn(core.Turn{Role: role, Text: text, State: b.sess.State}, 0)
	return b
}

// Build returns the session with completeness recomputed.
func (b *SessionBuilder) Build() *core.SessionContext {
	b.sess.Completeness = accumulator.Completeness(&b.sess.Context)
	return b.sess.Clone()
}
