package domain

import "errors"

// Domain errors represent failure conditions in the agentd lifecycle domain.
// These errors are surfaced through operation results and events and can be
// checked with errors.Is.
var (
	// ErrDuplicateID is returned when Register is called with an id that
	// is already registered. No state is mutated.
	ErrDuplicateID = errors.New("agentd: agent id already registered")

	// ErrAgentNotFound is returned by any operation on an unknown agent id.
	ErrAgentNotFound = errors.New("agentd: agent not found")

	// ErrInvalidTransition is returned when a requested state transition
	// is not present in the transition table.
	ErrInvalidTransition = errors.New("agentd: invalid state transition")

	// ErrDependencyNotReady is returned when an agent is started while one
	// of its declared dependencies is not ACTIVE.
	ErrDependencyNotReady = errors.New("agentd: dependency not ready")

	// ErrDependencyCycle is returned when registering an agent whose
	// declared dependencies would close a cycle.
	ErrDependencyCycle = errors.New("agentd: dependency cycle")

	// ErrStartupHook wraps a failure from an agent's startup hook.
	ErrStartupHook = errors.New("agentd: startup hook failed")

	// ErrShutdownHook wraps a failure from an agent's shutdown hook.
	// Non-fatal: the agent is forced to STOPPED regardless.
	ErrShutdownHook = errors.New("agentd: shutdown hook failed")

	// ErrRetryExhausted marks a recovery sequence whose retry budget ran
	// out; it drives fallback escalation.
	ErrRetryExhausted = errors.New("agentd: retry budget exhausted")

	// ErrAllFallbacksFailed marks the terminal recovery condition: every
	// fallback strategy failed and the agent stays in ERROR until manual
	// intervention.
	ErrAllFallbacksFailed = errors.New("agentd: all fallback strategies failed")

	// ErrOrchestratorClosed is returned when operations are issued after
	// the orchestrator has been shut down.
	ErrOrchestratorClosed = errors.New("agentd: orchestrator closed")

	// ErrAlreadyRunning is returned when Run is called on a running
	// orchestrator.
	ErrAlreadyRunning = errors.New("agentd: already running")

	// ErrShutdownTimeout is returned when background workers do not finish
	// within the shutdown timeout.
	ErrShutdownTimeout = errors.New("agentd: shutdown timeout")
)
