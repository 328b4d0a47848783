package agentd

import (
	"context"
	"time"

	"github.com/bft-labs/agentd/pkg/log"
	"github.com/bft-labs/agentd/pkg/policy"
)

// Clock abstracts time for deterministic tests. The real clock is used
// when none is injected.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Strategy is a named fallback recovery action. Custom strategies extend
// or override the built-in table (restart, graceful_degradation,
// alternative_agent) and are selected by name through Config.Fallbacks.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, agentID string) error
}

// Built-in fallback strategy names.
const (
	StrategyRestart             = "restart"
	StrategyGracefulDegradation = "graceful_degradation"
	StrategyAlternativeAgent    = "alternative_agent"
)

// Option configures optional behavior of the orchestrator.
type Option func(*options)

type options struct {
	logger      log.Logger
	policies    *policy.Set
	clock       Clock
	strategies  []Strategy
	plugins     []Plugin
	subscribers []Subscriber
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPolicies sets the retry policy set governing recovery.
// If not provided, a set holding only the default policy is used.
func WithPolicies(set *policy.Set) Option {
	return func(o *options) {
		o.policies = set
	}
}

// WithClock injects a clock, primarily for tests.
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithStrategy registers a custom fallback strategy. A strategy with a
// built-in name replaces the built-in.
func WithStrategy(s Strategy) Option {
	return func(o *options) {
		o.strategies = append(o.strategies, s)
	}
}

// WithPlugin registers a plugin to be initialized when Run is called.
// Plugins are initialized in registration order and shut down in reverse
// order.
func WithPlugin(p Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, p)
	}
}

// WithSubscriber registers an event subscriber at construction time.
// Subscribers can also be added later with Subscribe.
func WithSubscriber(fn Subscriber) Option {
	return func(o *options) {
		o.subscribers = append(o.subscribers, fn)
	}
}
