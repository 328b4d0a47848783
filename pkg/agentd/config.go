package agentd

import (
	"fmt"
	"time"
)

// Default configuration values applied by SetDefaults.
const (
	DefaultHealthInterval     = 30 * time.Second
	DefaultUnhealthyThreshold = 50
	DefaultRestartSettleDelay = time.Second
	DefaultShutdownTimeout    = 30 * time.Second
)

// Config holds the orchestrator configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// HealthInterval is the health monitor cadence.
	HealthInterval time.Duration

	// UnhealthyThreshold marks health scores at or below it as unhealthy.
	// Must be in [0, 100]. Nil means DefaultUnhealthyThreshold; an
	// explicit zero flags only zero scores.
	UnhealthyThreshold *int

	// IdleAfter transitions an ACTIVE agent with no recent activity to
	// IDLE. Zero disables idle detection.
	IdleAfter time.Duration

	// RestartSettleDelay is the fixed wait between the stop and start
	// phases of a restart.
	RestartSettleDelay time.Duration

	// GracefulShutdown controls whether shutdown hooks are invoked and
	// awaited before an agent commits to STOPPED.
	GracefulShutdown bool

	// ShutdownTimeout bounds the wait for background recovery work when
	// the orchestrator is closed.
	ShutdownTimeout time.Duration

	// Fallbacks is the ordered list of fallback strategy names applied
	// after an agent's retry budget is exhausted.
	Fallbacks []string

	// RetryResetHealthyCount re-arms an agent's retry budget after this
	// many consecutive healthy checks. Zero means the budget is only ever
	// reset manually.
	RetryResetHealthyCount int

	// AlternativeAgents maps a failing agent id to the substitute agent
	// started by the alternative_agent fallback strategy.
	AlternativeAgents map[string]string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	threshold := DefaultUnhealthyThreshold
	return Config{
		HealthInterval:     DefaultHealthInterval,
		UnhealthyThreshold: &threshold,
		RestartSettleDelay: DefaultRestartSettleDelay,
		GracefulShutdown:   true,
		ShutdownTimeout:    DefaultShutdownTimeout,
		Fallbacks: []string{
			StrategyRestart,
			StrategyGracefulDegradation,
			StrategyAlternativeAgent,
		},
	}
}

// SetDefaults fills zero-valued duration and threshold fields. Boolean
// fields are left as-is; start from DefaultConfig() to get graceful
// shutdown enabled.
func (c *Config) SetDefaults() {
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.UnhealthyThreshold == nil {
		threshold := DefaultUnhealthyThreshold
		c.UnhealthyThreshold = &threshold
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.HealthInterval <= 0 {
		return fmt.Errorf("agentd: health interval must be positive, got %v", c.HealthInterval)
	}
	if c.UnhealthyThreshold != nil && (*c.UnhealthyThreshold < 0 || *c.UnhealthyThreshold > 100) {
		return fmt.Errorf("agentd: unhealthy threshold must be in [0,100], got %d", *c.UnhealthyThreshold)
	}
	if c.IdleAfter < 0 {
		return fmt.Errorf("agentd: idle-after must be >= 0, got %v", c.IdleAfter)
	}
	if c.RestartSettleDelay < 0 {
		return fmt.Errorf("agentd: restart settle delay must be >= 0, got %v", c.RestartSettleDelay)
	}
	if c.RetryResetHealthyCount < 0 {
		return fmt.Errorf("agentd: retry reset healthy count must be >= 0, got %d", c.RetryResetHealthyCount)
	}
	return nil
}
