package app

import (
	"time"

	"github.com/bft-labs/agentd/pkg/lifecycle"
)

// AgentStatus is the read-only projection combining lifecycle state,
// health record, and agent counters.
type AgentStatus struct {
	ID           string
	Type         string
	Dependencies []string
	State        lifecycle.State
	RetryCount   int
	ErrorCount   int
	Degraded     bool
	LastActivity time.Time
	Health       HealthRecord
}

// System health buckets.
const (
	SystemHealthExcellent = "excellent"
	SystemHealthGood      = "good"
	SystemHealthPoor      = "poor"
)

// HealthSummary aggregates lifecycle and health data across all registered
// agents.
type HealthSummary struct {
	TotalAgents    int
	ActiveAgents   int
	ErrorAgents    int
	StoppedAgents  int
	AvgHealthScore float64
	SystemHealth   string
}

// Status returns the projection for one agent, or false when the id is
// unknown.
func (o *Orchestrator) Status(id string) (AgentStatus, bool) {
	rec, ok := o.reg.snapshot(id)
	if !ok {
		return AgentStatus{}, false
	}
	state, _ := o.store.Get(id)
	last, _ := o.store.LastActivity(id)

	return AgentStatus{
		ID:           rec.desc.ID,
		Type:         rec.desc.Type,
		Dependencies: append([]string(nil), rec.desc.Dependencies...),
		State:        state,
		RetryCount:   rec.retryCount,
		ErrorCount:   rec.errorCount,
		Degraded:     rec.degraded,
		LastActivity: last,
		Health:       rec.health,
	}, true
}

// AllStatuses returns projections for every registered agent, sorted by id.
func (o *Orchestrator) AllStatuses() []AgentStatus {
	ids := o.reg.ids()
	out := make([]AgentStatus, 0, len(ids))
	for _, id := range ids {
		if st, ok := o.Status(id); ok {
			out = append(out, st)
		}
	}
	return out
}

// HealthSummary aggregates counts and the mean health score across all
// registered agents. With no agents the average is 0, never NaN.
func (o *Orchestrator) HealthSummary() HealthSummary {
	ids := o.reg.ids()
	sum := HealthSummary{TotalAgents: len(ids)}

	total := 0
	for _, id := range ids {
		state, _ := o.store.Get(id)
		switch state {
		case lifecycle.StateActive:
			sum.ActiveAgents++
		case lifecycle.StateError:
			sum.ErrorAgents++
		case lifecycle.StateStopped:
			sum.StoppedAgents++
		}
		if rec, ok := o.reg.snapshot(id); ok {
			total += rec.health.Score
		}
	}

	if len(ids) > 0 {
		sum.AvgHealthScore = float64(total) / float64(len(ids))
	}

	switch {
	case sum.AvgHealthScore > 80:
		sum.SystemHealth = SystemHealthExcellent
	case sum.AvgHealthScore > 60:
		sum.SystemHealth = SystemHealthGood
	default:
		sum.SystemHealth = SystemHealthPoor
	}
	return sum
}
