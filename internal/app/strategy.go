package app

import (
	"context"
	"fmt"

	"github.com/bft-labs/agentd/internal/domain"
	"github.com/bft-labs/agentd/pkg/log"
)

// Strategy names for the built-in fallback strategies.
const (
	StrategyRestart             = "restart"
	StrategyGracefulDegradation = "graceful_degradation"
	StrategyAlternativeAgent    = "alternative_agent"
)

// Strategy is a pluggable recovery action attempted after an agent's retry
// budget is exhausted. Strategies run strictly in configured priority
// order; the first success stops the escalation.
type Strategy interface {
	// Name identifies the strategy in the fallback list.
	Name() string

	// Execute applies the strategy to the failing agent. A nil return
	// stops the escalation chain.
	Execute(ctx context.Context, agentID string) error
}

// restartStrategy makes one more start attempt outside the retry budget.
type restartStrategy struct {
	o *Orchestrator
}

func (s *restartStrategy) Name() string { return StrategyRestart }

func (s *restartStrategy) Execute(ctx context.Context, agentID string) error {
	return s.o.Start(ctx, agentID)
}

// degradeStrategy marks the agent as intentionally degraded without
// touching its hooks. The agent keeps its current state; the degraded flag
// shows up in status projections.
type degradeStrategy struct {
	o *Orchestrator
}

func (s *degradeStrategy) Name() string { return StrategyGracefulDegradation }

func (s *degradeStrategy) Execute(ctx context.Context, agentID string) error {
	if !s.o.reg.setDegraded(agentID, true) {
		return fmt.Errorf("%w: %q", domain.ErrAgentNotFound, agentID)
	}
	s.o.logger.Warn("agent degraded",
		log.String("agent", agentID),
		log.String("strategy", s.Name()),
	)
	return nil
}

// alternativeStrategy starts a configured substitute agent. With no
// substitute mapped it only logs, reporting failure so the next strategy
// in the list is attempted.
type alternativeStrategy struct {
	o          *Orchestrator
	alternates map[string]string
}

func (s *alternativeStrategy) Name() string { return StrategyAlternativeAgent }

func (s *alternativeStrategy) Execute(ctx context.Context, agentID string) error {
	alt, ok := s.alternates[agentID]
	if !ok {
		s.o.logger.Info("no alternative agent configured",
			log.String("agent", agentID),
		)
		return fmt.Errorf("no alternative agent configured for %q", agentID)
	}
	s.o.logger.Info("starting alternative agent",
		log.String("agent", agentID),
		log.String("alternative", alt),
	)
	return s.o.Start(ctx, alt)
}

// builtinStrategies assembles the default strategy table for an
// orchestrator instance.
func builtinStrategies(o *Orchestrator, alternates map[string]string) map[string]Strategy {
	return map[string]Strategy{
		StrategyRestart:             &restartStrategy{o: o},
		StrategyGracefulDegradation: &degradeStrategy{o: o},
		StrategyAlternativeAgent:    &alternativeStrategy{o: o, alternates: alternates},
	}
}
