package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/agentd/internal/domain"
	"github.com/bft-labs/agentd/pkg/lifecycle"
	"github.com/bft-labs/agentd/pkg/log"
	"github.com/bft-labs/agentd/pkg/policy"
)

// Config holds the resolved orchestrator settings.
type Config struct {
	// HealthInterval is the health monitor cadence.
	HealthInterval time.Duration

	// UnhealthyThreshold marks health scores at or below it as unhealthy.
	UnhealthyThreshold int

	// IdleAfter transitions an ACTIVE agent with no recent activity to
	// IDLE. Zero disables idle detection.
	IdleAfter time.Duration

	// RestartSettleDelay is the fixed wait between the stop and start
	// phases of a restart.
	RestartSettleDelay time.Duration

	// GracefulShutdown controls whether shutdown hooks are invoked and
	// awaited before an agent commits to STOPPED.
	GracefulShutdown bool

	// ShutdownTimeout bounds the wait for background workers on Close.
	ShutdownTimeout time.Duration

	// Fallbacks is the ordered fallback strategy list applied after the
	// retry budget is exhausted.
	Fallbacks []string

	// RetryResetHealthyCount re-arms the retry budget after this many
	// consecutive healthy checks. Zero preserves the never-reset behavior.
	RetryResetHealthyCount int

	// AlternativeAgents maps a failing agent id to a substitute started by
	// the alternative_agent strategy.
	AlternativeAgents map[string]string
}

// Orchestrator sequences agent lifecycle operations: dependency checks,
// startup/shutdown hooks, guarded state transitions, health monitoring,
// and fault recovery. It is the only component callers interact with.
type Orchestrator struct {
	cfg        Config
	store      *lifecycle.Store
	reg        *registry
	locks      *keyedMutex
	policies   *policy.Set
	emitter    Emitter
	logger     log.Logger
	clock      Clock
	recovery   *coordinator
	monitor    *monitor
	strategies map[string]Strategy

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	runCtx  context.Context
	wg      sync.WaitGroup
}

// New creates an orchestrator. Extra strategies extend or override the
// built-in fallback strategy table by name.
func New(cfg Config, policies *policy.Set, logger log.Logger, emitter Emitter, clock Clock, extra []Strategy) *Orchestrator {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if policies == nil {
		policies = policy.NewSet(policy.Default())
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	o := &Orchestrator{
		cfg:      cfg,
		store:    lifecycle.NewStore(),
		locks:    newKeyedMutex(),
		policies: policies,
		emitter:  emitter,
		logger:   logger,
		clock:    clock,
	}
	o.reg = newRegistry(clock.Now)
	o.store.SetClock(clock.Now)
	o.recovery = newCoordinator(o)
	o.monitor = &monitor{o: o}

	o.strategies = builtinStrategies(o, cfg.AlternativeAgents)
	for _, s := range extra {
		o.strategies[s.Name()] = s
	}
	return o
}

// Run starts the health monitor loop. It returns immediately; the loop
// stops when ctx is canceled or Close is called.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return domain.ErrOrchestratorClosed
	}
	if o.running {
		return domain.ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.runCtx = runCtx
	o.cancel = cancel
	o.running = true

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.monitor.run(runCtx)
	}()

	o.logger.Info("orchestrator running",
		log.Duration("healthInterval", o.cfg.HealthInterval),
	)
	return nil
}

// Close stops the health monitor and waits for in-flight recovery work.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.running = false
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-o.clock.After(o.cfg.ShutdownTimeout):
		o.logger.Warn("shutdown timeout, background workers still running",
			log.Duration("timeout", o.cfg.ShutdownTimeout),
		)
		return domain.ErrShutdownTimeout
	}
}

// Register adds an agent in state DISCOVERED with zeroed counters and
// unknown health. Duplicate ids and dependency cycles are rejected without
// mutation.
func (o *Orchestrator) Register(desc Descriptor) error {
	if desc.ID == "" {
		return errors.New("agentd: descriptor id is empty")
	}
	if err := o.reg.add(desc); err != nil {
		return err
	}
	o.store.Set(desc.ID, lifecycle.StateDiscovered)
	o.recovery.reset(desc.ID)

	o.logger.Info("agent registered",
		log.String("agent", desc.ID),
		log.String("type", desc.Type),
		log.Int("dependencies", len(desc.Dependencies)),
	)
	o.emit(Event{Kind: EventAgentRegistered, AgentID: desc.ID, Message: desc.Type})
	return nil
}

// Unregister removes an agent record. Records are never removed
// implicitly.
func (o *Orchestrator) Unregister(id string) error {
	unlock := o.locks.lock(id)
	defer unlock()

	if !o.reg.remove(id) {
		return fmt.Errorf("%w: %q", domain.ErrAgentNotFound, id)
	}
	o.store.Remove(id)
	o.recovery.reset(id)

	o.logger.Info("agent unregistered", log.String("agent", id))
	o.emit(Event{Kind: EventAgentUnregistered, AgentID: id})
	return nil
}

// Start takes an agent through INITIALIZING to ACTIVE: guarded transition,
// dependency gate, startup hook, one health check, commit. Any step
// failure lands the agent in ERROR and raises agent_error for recovery.
func (o *Orchestrator) Start(ctx context.Context, id string) error {
	unlock := o.locks.lock(id)
	defer unlock()
	return o.startLocked(ctx, id)
}

func (o *Orchestrator) startLocked(ctx context.Context, id string) error {
	desc, ok := o.reg.descriptor(id)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrAgentNotFound, id)
	}

	if err := o.transition(id, lifecycle.StateInitializing, "start requested"); err != nil {
		return err
	}

	for _, dep := range desc.Dependencies {
		st, ok := o.store.Get(dep)
		if !ok || st != lifecycle.StateActive {
			err := fmt.Errorf("%w: %q requires %q to be ACTIVE", domain.ErrDependencyNotReady, id, dep)
			return o.fail(id, "dependency check failed", err)
		}
	}

	if desc.Startup != nil {
		if err := runHook(ctx, desc.Startup); err != nil {
			return o.fail(id, "startup hook failed",
				fmt.Errorf("%w: %v", domain.ErrStartupHook, err))
		}
	}

	// Baseline health check. A failing probe records score 0 but does not
	// abort the start; the monitor treats probe failures as data, not
	// crashes.
	o.monitor.checkAgent(ctx, id)

	if err := o.transition(id, lifecycle.StateActive, "startup complete"); err != nil {
		return err
	}

	o.logger.Info("agent started", log.String("agent", id))
	o.emit(Event{Kind: EventAgentStarted, AgentID: id})
	return nil
}

// Stop transitions an agent to STOPPED. Stopping an already-STOPPED agent
// succeeds without re-invoking the shutdown hook. A failing shutdown hook
// is logged but never blocks the stop; STOPPED must always be reachable.
func (o *Orchestrator) Stop(ctx context.Context, id string) error {
	unlock := o.locks.lock(id)
	defer unlock()
	return o.stopLocked(ctx, id, "stop requested")
}

func (o *Orchestrator) stopLocked(ctx context.Context, id, reason string) error {
	desc, ok := o.reg.descriptor(id)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrAgentNotFound, id)
	}

	cur, _ := o.store.Get(id)
	if cur == lifecycle.StateStopped {
		o.logger.Debug("agent already stopped", log.String("agent", id))
		return nil
	}
	if !lifecycle.CanTransition(cur, lifecycle.StateStopped) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, cur, lifecycle.StateStopped)
	}

	if o.cfg.GracefulShutdown && desc.Shutdown != nil {
		if err := runHook(ctx, desc.Shutdown); err != nil {
			o.logger.Warn("shutdown hook failed, forcing stop",
				log.String("agent", id),
				log.Err(fmt.Errorf("%w: %v", domain.ErrShutdownHook, err)),
			)
		}
	}

	if err := o.transition(id, lifecycle.StateStopped, reason); err != nil {
		return err
	}

	o.logger.Info("agent stopped", log.String("agent", id))
	o.emit(Event{Kind: EventAgentStopped, AgentID: id})
	return nil
}

// Restart sequences stop, a fixed settle delay, then start, passing
// through RESTARTING where the transition table allows it. The per-id lock
// is held across the whole sequence.
func (o *Orchestrator) Restart(ctx context.Context, id string) error {
	unlock := o.locks.lock(id)
	defer unlock()
	return o.restartLocked(ctx, id)
}

func (o *Orchestrator) restartLocked(ctx context.Context, id string) error {
	if !o.reg.exists(id) {
		return fmt.Errorf("%w: %q", domain.ErrAgentNotFound, id)
	}

	cur, _ := o.store.Get(id)
	switch {
	case cur == lifecycle.StateStopped:
		// Stop phase not needed.
	case cur == lifecycle.StateError:
		// The table routes ERROR to STOPPED directly; RESTARTING is not
		// reachable from ERROR.
		if err := o.stopLocked(ctx, id, "restart requested"); err != nil {
			return err
		}
	case lifecycle.CanTransition(cur, lifecycle.StateRestarting):
		if err := o.transition(id, lifecycle.StateRestarting, "restart requested"); err != nil {
			return err
		}
		if err := o.stopLocked(ctx, id, "restarting"); err != nil {
			return o.fail(id, "restart stop phase failed", err)
		}
	default:
		return fmt.Errorf("%w: cannot restart from %s", domain.ErrInvalidTransition, cur)
	}

	if o.cfg.RestartSettleDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.clock.After(o.cfg.RestartSettleDelay):
		}
	}

	if err := o.startLocked(ctx, id); err != nil {
		return err
	}

	o.emit(Event{Kind: EventAgentRestarted, AgentID: id})
	return nil
}

// Touch records agent activity, waking an IDLE agent back to ACTIVE.
func (o *Orchestrator) Touch(id string) error {
	unlock := o.locks.lock(id)
	defer unlock()

	if !o.reg.exists(id) {
		return fmt.Errorf("%w: %q", domain.ErrAgentNotFound, id)
	}
	cur, _ := o.store.Get(id)
	if cur == lifecycle.StateIdle {
		return o.transition(id, lifecycle.StateActive, "activity recorded")
	}
	o.store.Touch(id)
	return nil
}

// ResetRetries is the operator-level manual reset: it zeroes the retry
// counter and clears the fallback-exhausted latch.
func (o *Orchestrator) ResetRetries(id string) error {
	if !o.reg.exists(id) {
		return fmt.Errorf("%w: %q", domain.ErrAgentNotFound, id)
	}
	o.reg.resetRetries(id)
	o.recovery.reset(id)
	o.logger.Info("retry budget reset", log.String("agent", id))
	return nil
}

// StopAll stops every agent that can legally reach STOPPED. Used for
// process shutdown.
func (o *Orchestrator) StopAll(ctx context.Context) {
	for _, id := range o.reg.ids() {
		cur, ok := o.store.Get(id)
		if !ok || cur == lifecycle.StateStopped || !lifecycle.CanTransition(cur, lifecycle.StateStopped) {
			continue
		}
		if err := o.Stop(ctx, id); err != nil {
			o.logger.Warn("stop during shutdown failed",
				log.String("agent", id),
				log.Err(err),
			)
		}
	}
}

// markIdle moves a stale ACTIVE agent to IDLE. Called by the health
// monitor; re-checks under the per-id lock.
func (o *Orchestrator) markIdle(id string) {
	unlock := o.locks.lock(id)
	defer unlock()

	cur, ok := o.store.Get(id)
	if !ok || cur != lifecycle.StateActive {
		return
	}
	last, ok := o.store.LastActivity(id)
	if !ok || o.clock.Now().Sub(last) <= o.cfg.IdleAfter {
		return
	}
	if err := o.transition(id, lifecycle.StateIdle, "no recent activity"); err != nil {
		o.logger.Warn("idle transition failed", log.String("agent", id), log.Err(err))
	}
}

// transition is the single guarded path to the state store: validate
// against the table, commit, emit state_change. A transition to the
// current state is an idempotent no-op.
func (o *Orchestrator) transition(id string, to lifecycle.State, reason string) error {
	cur, ok := o.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrAgentNotFound, id)
	}
	if cur == to {
		return nil
	}
	if !lifecycle.CanTransition(cur, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, cur, to)
	}

	o.store.Set(id, to)
	o.logger.Debug("state transition",
		log.String("agent", id),
		log.String("from", cur.String()),
		log.String("to", to.String()),
		log.String("reason", reason),
	)
	o.emit(Event{Kind: EventStateChange, AgentID: id, From: cur, To: to, Message: reason})
	return nil
}

// fail lands an agent in ERROR, emits agent_error, and hands the failure
// to the recovery coordinator on its own goroutine.
func (o *Orchestrator) fail(id, reason string, cause error) error {
	if err := o.transition(id, lifecycle.StateError, reason); err != nil {
		o.logger.Error("transition to ERROR failed",
			log.String("agent", id),
			log.Err(err),
		)
	}
	o.logger.Error("agent error",
		log.String("agent", id),
		log.String("reason", reason),
		log.Err(cause),
	)
	o.emit(Event{Kind: EventAgentError, AgentID: id, Message: cause.Error(), Err: cause})

	if o.recovery.suppressed(id) {
		// Raised by a fallback strategy; the running escalation owns this
		// failure and moves on to the next strategy in the chain.
		o.logger.Debug("error raised during fallback escalation, recovery not re-entered",
			log.String("agent", id),
			log.Err(cause),
		)
		return cause
	}

	ctx := o.opContext()
	o.mu.Lock()
	closed := o.closed
	if !closed {
		o.wg.Add(1)
	}
	o.mu.Unlock()
	if closed {
		return cause
	}
	go func() {
		defer o.wg.Done()
		o.recovery.handle(ctx, id, cause)
	}()
	return cause
}

// opContext returns the run context, or Background before Run is called.
func (o *Orchestrator) opContext() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runCtx != nil {
		return o.runCtx
	}
	return context.Background()
}

func (o *Orchestrator) emit(e Event) {
	if o.emitter != nil {
		o.emitter.Emit(e)
	}
}

// runHook invokes a hook, converting a panic into an error so descriptor
// code can never unwind through the orchestrator.
func runHook(ctx context.Context, h Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return h(ctx)
}
