package agentd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/agentd/pkg/lifecycle"
	"github.com/bft-labs/agentd/pkg/policy"
)

var errBoom = errors.New("boom")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HealthInterval = time.Hour // loop never fires during tests
	cfg.RestartSettleDelay = 0
	cfg.ShutdownTimeout = time.Second
	cfg.Fallbacks = nil
	return cfg
}

func noRetries() *policy.Set {
	return policy.NewSet(policy.RetryPolicy{
		MaxRetries:        0,
		BaseDelay:         time.Millisecond,
		BackoffMultiplier: 2,
	})
}

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

func TestNew_ConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"zero values filled", func(c *Config) { *c = Config{} }, true},
		{"negative idle-after", func(c *Config) { c.IdleAfter = -time.Second }, false},
		{"threshold over 100", func(c *Config) { over := 101; c.UnhealthyThreshold = &over }, false},
		{"negative settle delay", func(c *Config) { c.RestartSettleDelay = -1 }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			_, err := New(cfg)
			if ok := err == nil; ok != tc.wantOK {
				t.Errorf("New() error = %v, want ok = %v", err, tc.wantOK)
			}
		})
	}
}

func TestConfig_ExplicitZeroThresholdPreserved(t *testing.T) {
	cfg := DefaultConfig()
	zero := 0
	cfg.UnhealthyThreshold = &zero
	cfg.SetDefaults()
	if *cfg.UnhealthyThreshold != 0 {
		t.Errorf("UnhealthyThreshold = %d, want explicit 0 kept", *cfg.UnhealthyThreshold)
	}

	var unset Config
	unset.SetDefaults()
	if unset.UnhealthyThreshold == nil || *unset.UnhealthyThreshold != DefaultUnhealthyThreshold {
		t.Errorf("unset UnhealthyThreshold = %v, want default %d filled",
			unset.UnhealthyThreshold, DefaultUnhealthyThreshold)
	}
}

func TestNew_RejectsInvalidPolicySet(t *testing.T) {
	bad := policy.NewSet(policy.RetryPolicy{BackoffMultiplier: 0.5})
	if _, err := New(testConfig(), WithPolicies(bad)); err == nil {
		t.Fatal("New() accepted an invalid policy set")
	}
}

func TestOperations_ResultSemantics(t *testing.T) {
	orc, err := New(testConfig(), WithPolicies(noRetries()))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if res := orc.Register(Descriptor{ID: "a"}); !res.Success {
		t.Fatalf("Register() = %+v, want success", res)
	}
	if res := orc.Register(Descriptor{ID: "a"}); res.Success || !errors.Is(res.Err, ErrDuplicateID) {
		t.Errorf("duplicate Register() = %+v, want ErrDuplicateID", res)
	}
	if res := orc.Start(ctx, "missing"); res.Success || !errors.Is(res.Err, ErrAgentNotFound) {
		t.Errorf("Start(missing) = %+v, want ErrAgentNotFound", res)
	}
	if res := orc.Start(ctx, "a"); !res.Success {
		t.Fatalf("Start() = %+v, want success", res)
	}
	if res := orc.Stop(ctx, "a"); !res.Success {
		t.Fatalf("Stop() = %+v, want success", res)
	}
	// A failed operation reports but never panics or kills the instance.
	if res := orc.Restart(ctx, "missing"); res.Success || res.Message == "" {
		t.Errorf("Restart(missing) = %+v, want failure with message", res)
	}

	st := orc.GetStatus("a")
	if st == nil || st.State != lifecycle.StateStopped {
		t.Errorf("GetStatus() = %+v, want STOPPED", st)
	}
	if got := orc.GetStatus("missing"); got != nil {
		t.Errorf("GetStatus(missing) = %+v, want nil", got)
	}
}

func TestEvents_UniqueIDsAndFanOut(t *testing.T) {
	var mu sync.Mutex
	var first, second []Event

	orc, err := New(testConfig(),
		WithPolicies(noRetries()),
		WithSubscriber(func(e Event) {
			mu.Lock()
			first = append(first, e)
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	orc.Subscribe(func(e Event) {
		mu.Lock()
		second = append(second, e)
		mu.Unlock()
	})

	ctx := context.Background()
	orc.Register(Descriptor{ID: "a"})
	orc.Start(ctx, "a")

	mu.Lock()
	defer mu.Unlock()
	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("fan-out mismatch: first %d events, second %d", len(first), len(second))
	}

	seen := make(map[string]bool)
	for _, e := range first {
		if e.ID == "" {
			t.Fatal("event with empty ID")
		}
		if seen[e.ID] {
			t.Fatalf("duplicate event ID %s", e.ID)
		}
		seen[e.ID] = true
		if e.Timestamp.IsZero() {
			t.Fatal("event with zero timestamp")
		}
	}

	var kinds []EventType
	for _, e := range first {
		kinds = append(kinds, e.Type)
	}
	want := []EventType{
		EventAgentRegistered,
		EventStateChange, // DISCOVERED -> INITIALIZING
		EventHealthCheck,
		EventStateChange, // INITIALIZING -> ACTIVE
		EventAgentStarted,
	}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestEvents_PanickingSubscriberIsContained(t *testing.T) {
	var mu sync.Mutex
	var got []Event

	orc, err := New(testConfig(),
		WithPolicies(noRetries()),
		WithSubscriber(func(e Event) { panic("bad observer") }),
		WithSubscriber(func(e Event) {
			mu.Lock()
			got = append(got, e)
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatal(err)
	}

	if res := orc.Register(Descriptor{ID: "a"}); !res.Success {
		t.Fatalf("Register() = %+v after subscriber panic", res)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Type != EventAgentRegistered {
		t.Errorf("second subscriber events = %v, want one agent_registered", got)
	}
}

func TestSetPolicies(t *testing.T) {
	orc, err := New(testConfig(), WithPolicies(noRetries()))
	if err != nil {
		t.Fatal(err)
	}

	if err := orc.SetPolicies(nil); err == nil {
		t.Error("SetPolicies(nil) accepted")
	}
	bad := policy.NewSet(policy.RetryPolicy{BackoffMultiplier: 0})
	if err := orc.SetPolicies(bad); err == nil {
		t.Error("SetPolicies accepted an invalid set")
	}
	good := policy.NewSet(policy.Default())
	good.SetType("worker", policy.RetryPolicy{
		MaxRetries:        5,
		BaseDelay:         time.Second,
		BackoffMultiplier: 1.5,
	})
	if err := orc.SetPolicies(good); err != nil {
		t.Errorf("SetPolicies() error = %v", err)
	}
}

// orderPlugin records initialize/shutdown calls into a shared journal.
type orderPlugin struct {
	name    string
	initErr error
	journal *[]string
	mu      *sync.Mutex
}

func (p *orderPlugin) Name() string { return p.name }

func (p *orderPlugin) Initialize(ctx context.Context, pctx PluginContext) error {
	p.mu.Lock()
	*p.journal = append(*p.journal, "init:"+p.name)
	p.mu.Unlock()
	return p.initErr
}

func (p *orderPlugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	*p.journal = append(*p.journal, "shutdown:"+p.name)
	p.mu.Unlock()
	return nil
}

func TestPlugins_InitOrderAndReverseShutdown(t *testing.T) {
	var mu sync.Mutex
	var journal []string
	p1 := &orderPlugin{name: "one", journal: &journal, mu: &mu}
	p2 := &orderPlugin{name: "two", journal: &journal, mu: &mu}

	orc, err := New(testConfig(),
		WithPolicies(noRetries()),
		WithPlugin(p1),
		WithPlugin(p2),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := orc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := orc.Close(); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"init:one", "init:two", "shutdown:two", "shutdown:one"}
	if len(journal) != len(want) {
		t.Fatalf("journal = %v, want %v", journal, want)
	}
	for i := range want {
		if journal[i] != want[i] {
			t.Fatalf("journal[%d] = %s, want %s", i, journal[i], want[i])
		}
	}
}

func TestPlugins_InitFailureAbortsRunAndUnwinds(t *testing.T) {
	var mu sync.Mutex
	var journal []string
	p1 := &orderPlugin{name: "one", journal: &journal, mu: &mu}
	p2 := &orderPlugin{name: "two", initErr: errBoom, journal: &journal, mu: &mu}

	orc, err := New(testConfig(),
		WithPolicies(noRetries()),
		WithPlugin(p1),
		WithPlugin(p2),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := orc.Run(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("Run() error = %v, want errBoom", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"init:one", "init:two", "shutdown:one"}
	if len(journal) != len(want) {
		t.Fatalf("journal = %v, want %v", journal, want)
	}
	for i := range want {
		if journal[i] != want[i] {
			t.Fatalf("journal[%d] = %s, want %s", i, journal[i], want[i])
		}
	}
}

// TestRecovery_EndToEnd exercises the documented recovery walkthrough
// through the public API: one retry, then graceful degradation.
func TestRecovery_EndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.Fallbacks = []string{StrategyGracefulDegradation}

	pol := policy.NewSet(policy.RetryPolicy{
		MaxRetries:        1,
		BaseDelay:         10 * time.Millisecond,
		BackoffMultiplier: 2,
	})

	orc, err := New(cfg, WithPolicies(pol))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	orc.Register(Descriptor{
		ID:   "x",
		Type: "worker",
		Startup: func(ctx context.Context) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return errBoom
		},
	})

	if res := orc.Start(ctx, "x"); res.Success {
		t.Fatal("Start() succeeded with failing startup hook")
	}

	waitFor(t, 2*time.Second, "graceful degradation", func() bool {
		st := orc.GetStatus("x")
		return st != nil && st.Degraded
	})

	st := orc.GetStatus("x")
	if st.State != lifecycle.StateError {
		t.Errorf("state = %s, want ERROR", st.State)
	}
	if st.ErrorCount != 2 {
		t.Errorf("errorCount = %d, want 2", st.ErrorCount)
	}
	if st.RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1", st.RetryCount)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("startup attempts = %d, want 2", calls)
	}
}

func TestCustomStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.Fallbacks = []string{"custom"}

	var mu sync.Mutex
	var invoked []string

	orc, err := New(cfg,
		WithPolicies(noRetries()),
		WithStrategy(funcStrategy{
			name: "custom",
			fn: func(ctx context.Context, agentID string) error {
				mu.Lock()
				invoked = append(invoked, agentID)
				mu.Unlock()
				return nil
			},
		}),
	)
	if err != nil {
		t.Fatal(err)
	}

	orc.Register(Descriptor{
		ID:      "x",
		Startup: func(ctx context.Context) error { return errBoom },
	})
	orc.Start(context.Background(), "x")

	waitFor(t, 2*time.Second, "custom strategy invocation", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(invoked) == 1 && invoked[0] == "x"
	})
}

type funcStrategy struct {
	name string
	fn   func(ctx context.Context, agentID string) error
}

func (s funcStrategy) Name() string { return s.name }

func (s funcStrategy) Execute(ctx context.Context, agentID string) error {
	return s.fn(ctx, agentID)
}
