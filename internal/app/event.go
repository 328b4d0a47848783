package app

import "github.com/bft-labs/agentd/pkg/lifecycle"

// EventKind names the lifecycle events emitted by the orchestrator.
type EventKind string

const (
	EventAgentRegistered   EventKind = "agent_registered"
	EventAgentStarted      EventKind = "agent_started"
	EventAgentStopped      EventKind = "agent_stopped"
	EventAgentRestarted    EventKind = "agent_restarted"
	EventAgentUnregistered EventKind = "agent_unregistered"
	EventAgentError        EventKind = "agent_error"
	EventStateChange       EventKind = "state_change"
	EventHealthCheck       EventKind = "health_check"
)

// Event carries a lifecycle notification. From/To are set for state_change
// events, Score for health_check events, Err for agent_error events.
type Event struct {
	Kind    EventKind
	AgentID string
	Message string
	Err     error
	From    lifecycle.State
	To      lifecycle.State
	Score   int
}

// Emitter receives orchestrator events. Implementations must not block;
// the orchestrator calls Emit synchronously from lifecycle operations.
type Emitter interface {
	Emit(e Event)
}
