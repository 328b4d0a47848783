package agentd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/agentd/internal/app"
	"github.com/bft-labs/agentd/pkg/lifecycle"
	"github.com/bft-labs/agentd/pkg/log"
	"github.com/bft-labs/agentd/pkg/policy"
)

// Hook is a startup or shutdown operation supplied by an agent
// descriptor. Hooks may take arbitrary time and may fail; timeout
// handling is the hook's own responsibility.
type Hook func(ctx context.Context) error

// Probe produces a health score in [0,100] for an agent. Scores outside
// the range are clamped; an error or panic is recorded as score 0.
type Probe func(ctx context.Context) (int, error)

// Descriptor declares an agent to the orchestrator.
type Descriptor struct {
	// ID uniquely identifies the agent.
	ID string

	// Type selects the retry policy applied when the agent fails.
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
	// probe reporting a full score is used.
	HealthProbe Probe
}

// Health status values reported in HealthRecord.Status.
const (
	HealthUnknown   = app.HealthUnknown
	HealthHealthy   = app.HealthHealthy
	HealthUnhealthy = app.HealthUnhealthy
)

// HealthRecord is an agent's latest health snapshot, fully replaced each
// health-check cycle.
type HealthRecord struct {
	Status    string
	Score     int
	LastCheck time.Time
	Issues    []string
}

// AgentStatus is the read-only projection of one agent: lifecycle state,
// counters, and health.
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

// System health buckets reported by HealthSummary.SystemHealth.
const (
	SystemHealthExcellent = app.SystemHealthExcellent
	SystemHealthGood      = app.SystemHealthGood
	SystemHealthPoor      = app.SystemHealthPoor
)

// HealthSummary aggregates lifecycle and health data across all
// registered agents.
type HealthSummary struct {
	TotalAgents    int
	ActiveAgents   int
	ErrorAgents    int
	StoppedAgents  int
	AvgHealthScore float64
	SystemHealth   string
}

// Orchestrator is the public lifecycle orchestrator. Use New() to create
// an instance, then Run() to start the health monitor and plugins.
// All methods are safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	core       *app.Orchestrator
	policies   *policy.Set
	logger     log.Logger
	dispatcher *dispatcher
	plugins    []Plugin

	mu          sync.Mutex
	initialized []Plugin
}

// New creates an orchestrator with the given configuration.
// The instance is idle until Run() is called; agents can be registered
// and operated before that, but health monitoring only runs after Run.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	policies := o.policies
	if policies == nil {
		policies = policy.NewSet(policy.Default())
	}
	if err := policies.Validate(); err != nil {
		return nil, err
	}

	now := time.Now
	if o.clock != nil {
		now = o.clock.Now
	}
	d := &dispatcher{logger: logger, now: now}
	for _, fn := range o.subscribers {
		d.subscribe(fn)
	}

	extra := make([]app.Strategy, 0, len(o.strategies))
	for _, s := range o.strategies {
		extra = append(extra, s)
	}

	var clock app.Clock
	if o.clock != nil {
		clock = o.clock
	}

	core := app.New(app.Config{
		HealthInterval:         cfg.HealthInterval,
		UnhealthyThreshold:     *cfg.UnhealthyThreshold,
		IdleAfter:              cfg.IdleAfter,
		RestartSettleDelay:     cfg.RestartSettleDelay,
		GracefulShutdown:       cfg.GracefulShutdown,
		ShutdownTimeout:        cfg.ShutdownTimeout,
		Fallbacks:              cfg.Fallbacks,
		RetryResetHealthyCount: cfg.RetryResetHealthyCount,
		AlternativeAgents:      cfg.AlternativeAgents,
	}, policies, logger, d, clock, extra)

	return &Orchestrator{
		cfg:        cfg,
		core:       core,
		policies:   policies,
		logger:     logger,
		dispatcher: d,
		plugins:    o.plugins,
	}, nil
}

// Run initializes registered plugins in order and starts the health
// monitor. It returns immediately; monitoring stops when ctx is canceled
// or Close is called. A plugin initialization failure shuts down the
// plugins initialized so far and aborts the run.
func (a *Orchestrator) Run(ctx context.Context) error {
	pctx := PluginContext{
		Logger:      a.logger,
		SetPolicies: a.SetPolicies,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range a.plugins {
		if err := p.Initialize(ctx, pctx); err != nil {
			a.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err),
			)
			a.shutdownPluginsLocked(context.Background())
			return fmt.Errorf("agentd: plugin %s: %w", p.Name(), err)
		}
		a.initialized = append(a.initialized, p)
		a.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	if err := a.core.Run(ctx); err != nil {
		a.shutdownPluginsLocked(context.Background())
		return err
	}
	return nil
}

// Close stops the health monitor, waits for in-flight recovery work, and
// shuts down plugins in reverse initialization order. Registered agents
// are not stopped; call StopAll first for a graceful shutdown.
func (a *Orchestrator) Close() error {
	err := a.core.Close()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdownPluginsLocked(context.Background())
	return err
}

func (a *Orchestrator) shutdownPluginsLocked(ctx context.Context) {
	for i := len(a.initialized) - 1; i >= 0; i-- {
		p := a.initialized[i]
		if err := p.Shutdown(ctx); err != nil {
			a.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err),
			)
			continue
		}
		a.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
	}
	a.initialized = nil
}

// Subscribe adds an event subscriber. Subscribers are invoked
// synchronously; a panicking subscriber is contained and logged.
func (a *Orchestrator) Subscribe(fn Subscriber) {
	a.dispatcher.subscribe(fn)
}

// SetPolicies validates and atomically swaps the retry policy set.
// Recovery attempts already in flight keep the policy they resolved.
func (a *Orchestrator) SetPolicies(set *policy.Set) error {
	if set == nil {
		return fmt.Errorf("agentd: policy set is nil")
	}
	if err := set.Validate(); err != nil {
		return err
	}
	a.policies.ReplaceFrom(set)
	a.logger.Info("retry policies replaced")
	return nil
}

// Register adds an agent in state DISCOVERED. Duplicate ids and
// dependency cycles are rejected without mutation.
func (a *Orchestrator) Register(desc Descriptor) Result {
	return toResult(a.core.Register(app.Descriptor{
		ID:           desc.ID,
		Type:         desc.Type,
		Dependencies: desc.Dependencies,
		Startup:      app.Hook(desc.Startup),
		Shutdown:     app.Hook(desc.Shutdown),
		HealthProbe:  app.Probe(desc.HealthProbe),
	}))
}

// Unregister removes an agent record. Records are never removed
// implicitly.
func (a *Orchestrator) Unregister(id string) Result {
	return toResult(a.core.Unregister(id))
}

// Start takes an agent through INITIALIZING to ACTIVE. A failure in the
// dependency gate or startup hook lands the agent in ERROR and triggers
// automatic recovery.
func (a *Orchestrator) Start(ctx context.Context, id string) Result {
	return toResult(a.core.Start(ctx, id))
}

// Stop transitions an agent to STOPPED. Stopping an already-stopped
// agent succeeds without re-invoking its shutdown hook.
func (a *Orchestrator) Stop(ctx context.Context, id string) Result {
	return toResult(a.core.Stop(ctx, id))
}

// Restart sequences stop, a fixed settle delay, then start, holding the
// agent's operation lock across the whole sequence.
func (a *Orchestrator) Restart(ctx context.Context, id string) Result {
	return toResult(a.core.Restart(ctx, id))
}

// Touch records agent activity, waking an IDLE agent back to ACTIVE.
func (a *Orchestrator) Touch(id string) Result {
	return toResult(a.core.Touch(id))
}

// ResetRetries zeroes an agent's retry counter and clears the
// fallback-exhausted latch, re-arming automatic recovery.
func (a *Orchestrator) ResetRetries(id string) Result {
	return toResult(a.core.ResetRetries(id))
}

// StopAll stops every agent that can legally reach STOPPED.
func (a *Orchestrator) StopAll(ctx context.Context) {
	a.core.StopAll(ctx)
}

// GetStatus returns the projection for one agent, or nil when the id is
// unknown.
func (a *Orchestrator) GetStatus(id string) *AgentStatus {
	st, ok := a.core.Status(id)
	if !ok {
		return nil
	}
	out := convertStatus(st)
	return &out
}

// GetAllStatuses returns projections for every registered agent, sorted
// by id.
func (a *Orchestrator) GetAllStatuses() []AgentStatus {
	all := a.core.AllStatuses()
	out := make([]AgentStatus, 0, len(all))
	for _, st := range all {
		out = append(out, convertStatus(st))
	}
	return out
}

// GetSystemHealthSummary aggregates counts and the mean health score
// across all registered agents.
func (a *Orchestrator) GetSystemHealthSummary() HealthSummary {
	s := a.core.HealthSummary()
	return HealthSummary{
		TotalAgents:    s.TotalAgents,
		ActiveAgents:   s.ActiveAgents,
		ErrorAgents:    s.ErrorAgents,
		StoppedAgents:  s.StoppedAgents,
		AvgHealthScore: s.AvgHealthScore,
		SystemHealth:   s.SystemHealth,
	}
}

func convertStatus(st app.AgentStatus) AgentStatus {
	return AgentStatus{
		ID:           st.ID,
		Type:         st.Type,
		Dependencies: st.Dependencies,
		State:        st.State,
		RetryCount:   st.RetryCount,
		ErrorCount:   st.ErrorCount,
		Degraded:     st.Degraded,
		LastActivity: st.LastActivity,
		Health: HealthRecord{
			Status:    st.Health.Status,
			Score:     st.Health.Score,
			LastCheck: st.Health.LastCheck,
			Issues:    st.Health.Issues,
		},
	}
}
