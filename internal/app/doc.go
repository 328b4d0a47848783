// Package app implements the agent lifecycle orchestrator core: the
// façade that sequences guarded state transitions, dependency checks, and
// startup/shutdown hooks; the health monitor loop; and the recovery
// coordinator with its fallback strategies.
//
// Concurrency model: at most one lifecycle transition is in flight per
// agent id, enforced by a keyed mutex. Operations for different ids run
// fully concurrently. The health monitor and recovery goroutines never
// write the state store directly; every commit goes through the
// orchestrator's guarded transition helper.
package app
