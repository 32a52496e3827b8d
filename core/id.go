package core

import "github.com/google/uuid"

// NewID generates a new unique identifier for sessions, turns, plans and
// envelopes.
func NewID() string { return uuid.NewString() }
