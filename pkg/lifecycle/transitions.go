package lifecycle

// transitions is the fixed adjacency table of allowed state transitions.
// Any pair not listed here is rejected.
var transitions = map[State][]State{
	StateDiscovered:   {StateInitializing, StateError},
	StateInitializing: {StateActive, StateError, StateStopped},
	StateActive:       {StateIdle, StateError, StateStopped, StateRestarting},
	StateIdle:         {StateActive, StateError, StateStopped, StateRestarting},
	StateError:        {StateInitializing, StateStopped},
	StateStopped:      {StateInitializing, StateRestarting},
	StateRestarting:   {StateInitializing, StateError, StateStopped},
}

// CanTransition reports whether the transition from one state to another
// is allowed. A transition to the current state is always allowed and is
// treated by callers as an idempotent no-op.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedFrom returns the set of states reachable from the given state,
// not counting the idempotent self-transition.
func AllowedFrom(from State) []State {
	out := make([]State, len(transitions[from]))
	copy(out, transitions[from])
	return out
}
