package lifecycle

import (
	"sync"
	"time"
)

// Store holds the current lifecycle state and last-activity timestamp for
// each agent. It performs no validation; callers must check CanTransition
// before calling Set, and must serialize multi-step operations per agent id.
// The map itself is safe for concurrent access so that status reads and the
// health monitor can run alongside in-flight transitions.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	state        State
	lastActivity time.Time
}

// NewStore creates an empty state store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Get returns the current state for the agent id.
// The second return value is false if the id is unknown.
func (s *Store) Get(id string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return StateDiscovered, false
	}
	return e.state, true
}

// Set records a new state for the agent id and bumps its last-activity
// timestamp. The id is created if it does not exist.
func (s *Store) Set(id string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	e.state = state
	e.lastActivity = s.now()
}

// Touch bumps the last-activity timestamp without changing state.
// It is a no-op for unknown ids.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.lastActivity = s.now()
	}
}

// LastActivity returns the last-activity timestamp for the agent id.
func (s *Store) LastActivity(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return e.lastActivity, true
}

// Remove deletes the agent id from the store.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Snapshot returns a copy of all known states keyed by agent id.
func (s *Store) Snapshot() map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]State, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.state
	}
	return out
}

// SetClock overrides the time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
