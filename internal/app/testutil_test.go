package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/agentd/pkg/log"
	"github.com/bft-labs/agentd/pkg/policy"
)

// mockLogger implements log.Logger for testing.
type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...log.Field) {}
func (mockLogger) Info(msg string, fields ...log.Field)  {}
func (mockLogger) Warn(msg string, fields ...log.Field)  {}
func (mockLogger) Error(msg string, fields ...log.Field) {}

// recordingEmitter captures emitted events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.events...)
}

func (r *recordingEmitter) byKind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// hookRecorder counts hook invocations and fails with err while it is
// set.
type hookRecorder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (h *hookRecorder) hook() Hook {
	return func(ctx context.Context) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.calls++
		return h.err
	}
}

func (h *hookRecorder) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// testConfig returns a config suitable for fast tests: no settle delay,
// graceful shutdown on, quiet recovery by default.
func testConfig() Config {
	return Config{
		HealthInterval:     time.Hour, // loop never fires during tests
		UnhealthyThreshold: 50,
		RestartSettleDelay: 0,
		GracefulShutdown:   true,
		ShutdownTimeout:    time.Second,
	}
}

// quietPolicies disables automatic retries so lifecycle tests are not
// perturbed by background recovery.
func quietPolicies() *policy.Set {
	return policy.NewSet(policy.RetryPolicy{
		MaxRetries:        0,
		BaseDelay:         time.Millisecond,
		BackoffMultiplier: 2,
	})
}

func newTestOrchestrator(cfg Config, pol *policy.Set) (*Orchestrator, *recordingEmitter) {
	emitter := &recordingEmitter{}
	o := New(cfg, pol, mockLogger{}, emitter, nil, nil)
	return o, emitter
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

var errBoom = errors.New("boom")
