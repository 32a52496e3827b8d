package core

// State is the lifecycle tag of a conversation.
type State string

const (
	StateInitializing          State = "INITIALIZING"
	StateGreeting              State = "GREETING"
	StateGatheringRequirements State = "GATHERING_REQUIREMENTS"
	StateClarifying            State = "CLARIFYING"
	StateDesigning             State = "DESIGNING"
	StateReviewing             State = "REVIEWING"
	StateImplementing          State = "IMPLEMENTING"
	StateCompleted             State = "COMPLETED"
	StatePaused                State = "PAUSED"
	StateError                 State = "ERROR"
)

// States returns every lifecycle state in declaration order.
func States() []State {
	return []State{
		StateInitializing,
		StateGreeting,
		StateGatheringRequirements,
		StateClarifying,
		StateDesigning,
		StateReviewing,
		StateImplementing,
		StateCompleted,
		StatePaused,
		StateError,
	}
}

// String implements fmt.Stringer.
func (s State) String() string { return string(s) }

// IsResting reports whether the state awaits new external input before the
// conversation can re-enter the graph (no forced transition leaves it).
func (s State) IsResting() bool {
	return s == StateCompleted || s == StatePaused || s == StateError
}
