package app

import (
	"context"
	"sync"

	"github.com/bft-labs/agentd/internal/domain"
	"github.com/bft-labs/agentd/pkg/log"
)

// coordinator drives the per-agent recovery state machine off agent_error
// events: bounded backoff-delayed restarts first, then the ordered fallback
// strategy list.
type coordinator struct {
	o *Orchestrator

	mu sync.Mutex
	// exhausted latches agents whose fallback chain fully failed; they are
	// left in ERROR until Register or ResetRetries clears the latch.
	exhausted map[string]bool
	// escalating marks agents whose fallback chain is currently running, so
	// that errors raised by a fallback attempt do not re-enter recovery.
	escalating map[string]bool
}

func newCoordinator(o *Orchestrator) *coordinator {
	return &coordinator{
		o:          o,
		exhausted:  make(map[string]bool),
		escalating: make(map[string]bool),
	}
}

// handle processes one agent_error occurrence. It runs on its own
// goroutine; it may sleep for the backoff delay and re-enter the
// orchestrator's public operations.
func (c *coordinator) handle(ctx context.Context, agentID string, cause error) {
	if !c.o.reg.exists(agentID) {
		return
	}

	errorCount := c.o.reg.incError(agentID)

	desc, _ := c.o.reg.descriptor(agentID)
	pol := c.o.policies.Resolve(desc.Type)

	c.mu.Lock()
	if c.exhausted[agentID] {
		c.mu.Unlock()
		c.o.logger.Warn("agent requires manual intervention, recovery suppressed",
			log.String("agent", agentID),
			log.Err(cause),
		)
		return
	}
	if c.escalating[agentID] {
		c.mu.Unlock()
		c.o.logger.Debug("error during fallback escalation, not re-entering recovery",
			log.String("agent", agentID),
			log.Err(cause),
		)
		return
	}

	if !pol.Retryable(cause) {
		c.mu.Unlock()
		c.o.logger.Warn("error classified non-retryable, escalating to fallbacks",
			log.String("agent", agentID),
			log.Err(cause),
		)
		c.escalate(ctx, agentID)
		return
	}

	if c.o.reg.retryCount(agentID) >= pol.MaxRetries {
		c.mu.Unlock()
		c.o.logger.Warn("retry budget exhausted",
			log.String("agent", agentID),
			log.Int("maxRetries", pol.MaxRetries),
			log.Err(domain.ErrRetryExhausted),
		)
		c.escalate(ctx, agentID)
		return
	}

	attempt := c.o.reg.incRetry(agentID)
	c.mu.Unlock()

	delay := pol.Delay(attempt)
	c.o.logger.Info("scheduling recovery restart",
		log.String("agent", agentID),
		log.Int("attempt", attempt),
		log.Int("errorCount", errorCount),
		log.Duration("delay", delay),
	)

	select {
	case <-ctx.Done():
		return
	case <-c.o.clock.After(delay):
	}

	if err := c.o.Restart(ctx, agentID); err != nil {
		// A start failure inside Restart already raised agent_error and
		// will re-enter handle; anything else (agent unregistered, state
		// changed under us) just ends this attempt.
		c.o.logger.Warn("recovery restart attempt failed",
			log.String("agent", agentID),
			log.Int("attempt", attempt),
			log.Err(err),
		)
	}
}

// escalate runs the fallback strategy list in priority order, stopping at
// the first success. If every strategy fails the agent is latched as
// exhausted and left in ERROR.
func (c *coordinator) escalate(ctx context.Context, agentID string) {
	c.mu.Lock()
	if c.escalating[agentID] {
		c.mu.Unlock()
		return
	}
	c.escalating[agentID] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.escalating, agentID)
		c.mu.Unlock()
	}()

	for _, name := range c.o.cfg.Fallbacks {
		strat, ok := c.o.strategies[name]
		if !ok {
			c.o.logger.Error("unknown fallback strategy, skipping",
				log.String("agent", agentID),
				log.String("strategy", name),
			)
			continue
		}

		err := c.execute(ctx, strat, agentID)
		if err == nil {
			c.o.logger.Info("fallback strategy succeeded",
				log.String("agent", agentID),
				log.String("strategy", name),
			)
			return
		}
		c.o.logger.Warn("fallback strategy failed",
			log.String("agent", agentID),
			log.String("strategy", name),
			log.Err(err),
		)
	}

	c.mu.Lock()
	c.exhausted[agentID] = true
	c.mu.Unlock()

	c.o.logger.Error("all fallback strategies failed, manual intervention required",
		log.String("agent", agentID),
	)
	c.o.emit(Event{
		Kind:    EventAgentError,
		AgentID: agentID,
		Message: domain.ErrAllFallbacksFailed.Error(),
		Err:     domain.ErrAllFallbacksFailed,
	})
}

// execute runs one strategy, converting a panic into an error so a broken
// strategy cannot take down the coordinator.
func (c *coordinator) execute(ctx context.Context, strat Strategy, agentID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &strategyPanicError{strategy: strat.Name(), value: r}
		}
	}()
	return strat.Execute(ctx, agentID)
}

// suppressed reports whether the agent's fallback chain is currently
// running. Checked synchronously at the raise site: a failing restart
// fallback must not seed a fresh recovery sequence, which would only
// observe the escalating latch after escalate clears it and then re-run
// the failing fallback in a tight loop.
func (c *coordinator) suppressed(agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.escalating[agentID]
}

// reset clears the exhausted latch for an agent, re-arming automatic
// recovery. Called on Register, Unregister, and ResetRetries.
func (c *coordinator) reset(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.exhausted, agentID)
}

type strategyPanicError struct {
	strategy string
	value    interface{}
}

func (e *strategyPanicError) Error() string {
	return "strategy " + e.strategy + " panicked"
}
