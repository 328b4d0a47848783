// Package lifecycle defines the agent lifecycle state machine.
//
// An agent occupies exactly one of seven states at any instant:
// DISCOVERED, INITIALIZING, ACTIVE, IDLE, ERROR, STOPPED, RESTARTING.
// Transitions are only legal when the fixed adjacency table allows them;
// CanTransition is the single authority consulted before any commit.
//
// # State Machine
//
// Valid state transitions:
//   - DISCOVERED -> INITIALIZING, ERROR
//   - INITIALIZING -> ACTIVE, ERROR, STOPPED
//   - ACTIVE -> IDLE, ERROR, STOPPED, RESTARTING
//   - IDLE -> ACTIVE, ERROR, STOPPED, RESTARTING
//   - ERROR -> INITIALIZING, STOPPED
//   - STOPPED -> INITIALIZING, RESTARTING
//   - RESTARTING -> INITIALIZING, ERROR, STOPPED
//
// A transition to the current state is defined as an idempotent no-op
// success, never an error.
//
// The Store holds per-agent state plus a last-activity timestamp. It does
// not re-validate transitions; the orchestrator guards every Set with
// CanTransition and serializes operations per agent id.
package lifecycle
