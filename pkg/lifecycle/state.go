package lifecycle

// State represents the lifecycle state of a managed agent.
type State int

const (
	StateDiscovered State = iota
	StateInitializing
	StateActive
	StateIdle
	StateError
	StateStopped
	StateRestarting
)

// String returns the canonical name of the state.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "DISCOVERED"
	case StateInitializing:
		return "INITIALIZING"
	case StateActive:
		return "ACTIVE"
	case StateIdle:
		return "IDLE"
	case StateError:
		return "ERROR"
	case StateStopped:
		return "STOPPED"
	case StateRestarting:
		return "RESTARTING"
	default:
		return "UNKNOWN"
	}
}

// States lists every lifecycle state. Useful for exhaustive checks in tests.
var States = []State{
	StateDiscovered,
	StateInitializing,
	StateActive,
	StateIdle,
	StateError,
	StateStopped,
	StateRestarting,
}

// Operational reports whether an agent in this state is doing work and
// should be health-checked.
func (s State) Operational() bool {
	return s == StateActive || s == StateIdle
}
