package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/agentd/internal/domain"
)

// Hook is a startup or shutdown operation supplied by an agent descriptor.
// Hooks may take arbitrary time and may fail; timeout handling is the
// hook's own responsibility.
type Hook func(ctx context.Context) error

// Probe produces a health score in [0,100] for an agent.
type Probe func(ctx context.Context) (int, error)

// Descriptor declares an agent to the orchestrator.
type Descriptor struct {
	// ID uniquely identifies the agent.
	ID string

	// Type selects the retry policy for the agent.
	Type string

	// Dependencies lists agent ids that must be ACTIVE before this agent
	// starts.
	Dependencies []string

	// Startup is invoked during start, before the agent becomes ACTIVE.
	Startup Hook

	// Shutdown is invoked during graceful stop. Its failure never blocks
	// the stop.
	Shutdown Hook

	// HealthProbe is run each health-check cycle. When nil, a default
	// constant-cost probe reporting a full score is used.
	HealthProbe Probe
}

// HealthRecord is the per-agent health snapshot, fully replaced each
// health-check cycle.
type HealthRecord struct {
	Status    string
	Score     int
	LastCheck time.Time
	Issues    []string
}

// Health status values.
const (
	HealthUnknown   = "unknown"
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// record is the mutable per-agent bookkeeping owned by the registry.
type record struct {
	desc         Descriptor
	registeredAt time.Time

	retryCount         int
	errorCount         int
	degraded           bool
	consecutiveHealthy int

	health HealthRecord
}

// registry owns all agent records. Counter mutations go through its
// methods; lifecycle state lives in the lifecycle.Store, not here.
type registry struct {
	mu     sync.RWMutex
	agents map[string]*record
	now    func() time.Time
}

func newRegistry(now func() time.Time) *registry {
	return &registry{
		agents: make(map[string]*record),
		now:    now,
	}
}

// add registers a new descriptor. It rejects duplicate ids and dependency
// cycles without mutating anything.
func (r *registry) add(desc Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[desc.ID]; ok {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateID, desc.ID)
	}
	if cycle := r.findCycleLocked(desc); cycle != "" {
		return fmt.Errorf("%w: %s", domain.ErrDependencyCycle, cycle)
	}

	r.agents[desc.ID] = &record{
		desc:         desc,
		registeredAt: r.now(),
		health:       HealthRecord{Status: HealthUnknown},
	}
	return nil
}

// findCycleLocked walks the dependency graph formed by the registered
// agents plus the candidate descriptor. It returns a description of the
// first cycle found through the candidate, or "" when acyclic.
func (r *registry) findCycleLocked(desc Descriptor) string {
	deps := func(id string) []string {
		if id == desc.ID {
			return desc.Dependencies
		}
		if rec, ok := r.agents[id]; ok {
			return rec.desc.Dependencies
		}
		return nil
	}

	var walk func(id string, path []string) string
	walk = func(id string, path []string) string {
		for _, dep := range deps(id) {
			if dep == desc.ID {
				return fmt.Sprintf("%s -> %s", joinPath(append(path, id)), dep)
			}
			if res := walk(dep, append(path, id)); res != "" {
				return res
			}
		}
		return ""
	}
	return walk(desc.ID, nil)
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " -> "
		}
		out += p
	}
	return out
}

func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return false
	}
	delete(r.agents, id)
	return true
}

func (r *registry) descriptor(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[id]
	if !ok {
		return Descriptor{}, false
	}
	return rec.desc, true
}

func (r *registry) exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[id]
	return ok
}

func (r *registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// incError bumps the agent's error counter and returns the new value.
func (r *registry) incError(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[id]
	if !ok {
		return 0
	}
	rec.errorCount++
	return rec.errorCount
}

// incRetry bumps the agent's retry counter and returns the new value,
// which doubles as the 1-based attempt number for backoff.
func (r *registry) incRetry(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[id]
	if !ok {
		return 0
	}
	rec.retryCount++
	return rec.retryCount
}

func (r *registry) retryCount(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.agents[id]; ok {
		return rec.retryCount
	}
	return 0
}

// resetRetries zeroes the retry counter. This happens only on operator
// action or the configured healthy-streak reset, never on a successful
// start.
func (r *registry) resetRetries(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[id]; ok {
		rec.retryCount = 0
	}
}

func (r *registry) setDegraded(id string, degraded bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[id]
	if !ok {
		return false
	}
	rec.degraded = degraded
	return true
}

// setHealth replaces the agent's health record and maintains the
// consecutive-healthy streak. It returns the streak length, or 0 when the
// record was unhealthy or the id is unknown.
func (r *registry) setHealth(id string, h HealthRecord) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[id]
	if !ok {
		return 0
	}
	rec.health = h
	if h.Status == HealthHealthy {
		rec.consecutiveHealthy++
	} else {
		rec.consecutiveHealthy = 0
	}
	return rec.consecutiveHealthy
}

// snapshot returns a copy of the agent's counters and health.
func (r *registry) snapshot(id string) (record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[id]
	if !ok {
		return record{}, false
	}
	cp := *rec
	cp.health.Issues = append([]string(nil), rec.health.Issues...)
	return cp, true
}
