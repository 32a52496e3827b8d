package core

import "errors"

var (
	// ErrSessionNotFound is returned by every session operation except
	// ProcessTurn (which auto-creates) when the ID is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAgentNotFound marks an invocation of an unregistered agent name.
	ErrAgentNotFound = errors.New("agent not registered")

	// ErrIllegalTransition marks a state change absent from the transition table.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrAgentTimeout marks an agent call that exceeded its time budget.
	ErrAgentTimeout = errors.New("agent timed out")

	// ErrCallLimitExceeded marks an agent call refused by the per-plan limiter.
	ErrCallLimitExceeded = errors.New("agent call limit exceeded")
)
