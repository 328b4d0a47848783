package lifecycle

import "testing"

// allowedPairs mirrors the adjacency table from the design doc. The test
// walks the full 7x7 matrix so that any table edit shows up immediately.
var allowedPairs = map[State][]State{
	StateDiscovered:   {StateInitializing, StateError},
	StateInitializing: {StateActive, StateError, StateStopped},
	StateActive:       {StateIdle, StateError, StateStopped, StateRestarting},
	StateIdle:         {StateActive, StateError, StateStopped, StateRestarting},
	StateError:        {StateInitializing, StateStopped},
	StateStopped:      {StateInitializing, StateRestarting},
	StateRestarting:   {StateInitializing, StateError, StateStopped},
}

func contains(list []State, s State) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestCanTransition_FullMatrix(t *testing.T) {
	for _, from := range States {
		for _, to := range States {
			want := from == to || contains(allowedPairs[from], to)
			got := CanTransition(from, to)
			if got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_SelfIsAlwaysAllowed(t *testing.T) {
	for _, s := range States {
		if !CanTransition(s, s) {
			t.Errorf("CanTransition(%s, %s) = false, want true", s, s)
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDiscovered, "DISCOVERED"},
		{StateInitializing, "INITIALIZING"},
		{StateActive, "ACTIVE"},
		{StateIdle, "IDLE"},
		{StateError, "ERROR"},
		{StateStopped, "STOPPED"},
		{StateRestarting, "RESTARTING"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.state.String()
		if got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestState_Operational(t *testing.T) {
	for _, s := range States {
		want := s == StateActive || s == StateIdle
		if got := s.Operational(); got != want {
			t.Errorf("%s.Operational() = %v, want %v", s, got, want)
		}
	}
}

func TestAllowedFrom_ReturnsCopy(t *testing.T) {
	a := AllowedFrom(StateActive)
	if len(a) != 4 {
		t.Fatalf("AllowedFrom(ACTIVE) returned %d states, want 4", len(a))
	}
	a[0] = StateDiscovered
	if contains(AllowedFrom(StateActive), StateDiscovered) {
		t.Error("mutating AllowedFrom result leaked into the table")
	}
}
