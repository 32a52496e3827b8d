package fsm

import "github.com/hupe1980/dialogmesh/core"

// transitions is the complete set of legal moves. Any other requested
// transition is an input error and lands the session in ERROR.
var transitions = map[core.State][]core.State{
	core.StateInitializing:          {core.StateGreeting, core.StateError},
	core.StateGreeting:              {core.StateGatheringRequirements, core.StateClarifying, core.StateError},
	core.StateGatheringRequirements: {core.StateClarifying, core.StateDesigning, core.StatePaused, core.StateError},
	core.StateClarifying:            {core.StateGatheringRequirements, core.StateDesigning, core.StateError},
	core.StateDesigning:             {core.StateReviewing, core.StateImplementing, core.StateError},
	core.StateReviewing:             {core.StateImplementing, core.StateDesigning, core.StateCompleted, core.StateError},
	core.StateImplementing:          {core.StateCompleted, core.StateReviewing, core.StateError},
	core.StateCompleted:             {core.StateGreeting, core.StateReviewing},
	core.StatePaused:                {core.StateGatheringRequirements, core.StateGreeting},
	core.StateError:                 {core.StateGatheringRequirements, core.StateGreeting},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to core.State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Targets returns the legal successors of from.
func Targets(from core.State) []core.State {
	return append([]core.State(nil), transitions[from]...)
}
