package app

import (
	"context"
	"fmt"

	"github.com/bft-labs/agentd/pkg/lifecycle"
	"github.com/bft-labs/agentd/pkg/log"
)

const probeFailedIssue = "probe failed"

// monitor evaluates every operational agent on a fixed cadence,
// independently of in-flight lifecycle transitions.
type monitor struct {
	o *Orchestrator
}

// run loops until the context is canceled. One agent's probe failure never
// prevents the rest of the cycle.
func (m *monitor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.o.clock.After(m.o.cfg.HealthInterval):
			m.checkAll(ctx)
		}
	}
}

// checkAll probes every ACTIVE or IDLE agent and applies idle detection.
func (m *monitor) checkAll(ctx context.Context) {
	for id, state := range m.o.store.Snapshot() {
		if !state.Operational() {
			continue
		}
		m.checkAgent(ctx, id)

		if state == lifecycle.StateActive && m.o.cfg.IdleAfter > 0 {
			if last, ok := m.o.store.LastActivity(id); ok &&
				m.o.clock.Now().Sub(last) > m.o.cfg.IdleAfter {
				m.o.markIdle(id)
			}
		}
	}
}

// checkAgent runs one health probe and fully replaces the agent's health
// record. Also called synchronously from start.
func (m *monitor) checkAgent(ctx context.Context, id string) {
	desc, ok := m.o.reg.descriptor(id)
	if !ok {
		return
	}

	score, issues := m.probe(ctx, desc)

	status := HealthHealthy
	if score <= m.o.cfg.UnhealthyThreshold {
		status = HealthUnhealthy
		if len(issues) == 0 {
			issues = append(issues, fmt.Sprintf("health score %d at or below threshold %d",
				score, m.o.cfg.UnhealthyThreshold))
		}
	}

	rec := HealthRecord{
		Status:    status,
		Score:     score,
		LastCheck: m.o.clock.Now(),
		Issues:    issues,
	}
	streak := m.o.reg.setHealth(id, rec)

	// Optional clarified extension: a long enough healthy streak re-arms
	// the retry budget. Disabled (0) by default, preserving the original
	// never-reset behavior.
	if n := m.o.cfg.RetryResetHealthyCount; n > 0 && streak >= n && m.o.reg.retryCount(id) > 0 {
		m.o.reg.resetRetries(id)
		m.o.recovery.reset(id)
		m.o.logger.Info("retry budget reset after healthy streak",
			log.String("agent", id),
			log.Int("streak", streak),
		)
	}

	m.o.emit(Event{
		Kind:    EventHealthCheck,
		AgentID: id,
		Score:   score,
		Message: status,
	})
}

// probe executes the agent's health probe, or the default constant-cost
// probe when none is declared. Errors and panics become score 0 with a
// "probe failed" issue; they never crash the monitor.
func (m *monitor) probe(ctx context.Context, desc Descriptor) (score int, issues []string) {
	if desc.HealthProbe == nil {
		return 100, nil
	}

	defer func() {
		if r := recover(); r != nil {
			m.o.logger.Error("health probe panicked",
				log.String("agent", desc.ID),
				log.Any("panic", r),
			)
			score, issues = 0, []string{probeFailedIssue}
		}
	}()

	s, err := desc.HealthProbe(ctx)
	if err != nil {
		m.o.logger.Warn("health probe failed",
			log.String("agent", desc.ID),
			log.Err(err),
		)
		return 0, []string{probeFailedIssue}
	}
	return clampScore(s), nil
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
