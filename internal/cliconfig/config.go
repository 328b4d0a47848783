package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/agentd/pkg/policy"
)

// Config holds CLI configuration for the agentd supervisor.
type Config struct {
	HealthInterval         time.Duration
	UnhealthyThreshold     int
	IdleAfter              time.Duration
	RestartSettleDelay     time.Duration
	GracefulShutdown       bool
	ShutdownTimeout        time.Duration
	Fallbacks              []string
	RetryResetHealthyCount int
	AlternativeAgents      map[string]string

	// SummaryInterval is the cadence of the periodic health summary log.
	// Zero disables the summary.
	SummaryInterval time.Duration

	// PolicyFile is an optional retry-policy TOML file, hot reloaded by
	// the policy watcher plugin while the supervisor runs.
	PolicyFile string

	// HookTimeout bounds each exec-based agent hook.
	HookTimeout time.Duration

	// Policies holds the inline [policies] tables from the config file,
	// or nil when the file declares none.
	Policies *policy.Set

	// Agents are the supervised agent declarations from the config file.
	Agents []AgentConfig
}

// AgentConfig declares one supervised agent whose lifecycle hooks exec
// shell commands.
type AgentConfig struct {
	ID           string
	Type         string
	Dependencies []string
	StartCmd     string
	StopCmd      string
	ProbeCmd     string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		HealthInterval:     30 * time.Second,
		UnhealthyThreshold: 50,
		RestartSettleDelay: time.Second,
		GracefulShutdown:   true,
		ShutdownTimeout:    30 * time.Second,
		SummaryInterval:    time.Minute,
		HookTimeout:        30 * time.Second,
		Fallbacks: []string{
			"restart",
			"graceful_degradation",
			"alternative_agent",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.HealthInterval <= 0 {
		return fmt.Errorf("health interval must be positive")
	}
	if c.UnhealthyThreshold < 0 || c.UnhealthyThreshold > 100 {
		return fmt.Errorf("unhealthy threshold must be in [0,100]")
	}
	if c.HookTimeout <= 0 {
		return fmt.Errorf("hook timeout must be positive")
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("agents[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag
// precedence. It only applies values if the corresponding flag hasn't
// been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag
// not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setStringSlice sets a slice value if non-empty and flag not changed.
func (s *configSetter) setStringSlice(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

// setSliceFromString splits a comma-separated string into the destination.
// Used for environment variables that come as strings.
func (s *configSetter) setSliceFromString(flag, value string, dst *[]string) {
	if value == "" || s.changed[flag] {
		return
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
