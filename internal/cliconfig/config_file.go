package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/agentd/pkg/policy"
)

// FileConfig mirrors Config but uses strings for durations to make TOML
// friendly.
type FileConfig struct {
	Orchestrator OrchestratorFileConfig `toml:"orchestrator"`
	Policies     *policy.FileSet        `toml:"policies"`
	Agents       []AgentFileConfig      `toml:"agents"`
}

// OrchestratorFileConfig holds the [orchestrator] table.
type OrchestratorFileConfig struct {
	HealthInterval         string            `toml:"health_interval"`
	UnhealthyThreshold     int               `toml:"unhealthy_threshold"`
	IdleAfter              string            `toml:"idle_after"`
	RestartSettleDelay     string            `toml:"restart_settle_delay"`
	GracefulShutdown       *bool             `toml:"graceful_shutdown"`
	ShutdownTimeout        string            `toml:"shutdown_timeout"`
	Fallbacks              []string          `toml:"fallbacks"`
	RetryResetHealthyCount int               `toml:"retry_reset_healthy_count"`
	SummaryInterval        string            `toml:"summary_interval"`
	PolicyFile             string            `toml:"policy_file"`
	HookTimeout            string            `toml:"hook_timeout"`
	AlternativeAgents      map[string]string `toml:"alternative_agents"`
}

// AgentFileConfig holds one [[agents]] entry.
type AgentFileConfig struct {
	ID           string   `toml:"id"`
	Type         string   `toml:"type"`
	Dependencies []string `toml:"dependencies"`
	StartCmd     string   `toml:"start_cmd"`
	StopCmd      string   `toml:"stop_cmd"`
	ProbeCmd     string   `toml:"probe_cmd"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.agentd/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".agentd", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map). Agent
// declarations and inline policies are file-only and applied directly.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)
	orc := fc.Orchestrator

	if err := s.setDuration("health-interval", orc.HealthInterval, &cfg.HealthInterval); err != nil {
		return err
	}
	if err := s.setDuration("idle-after", orc.IdleAfter, &cfg.IdleAfter); err != nil {
		return err
	}
	if err := s.setDuration("settle-delay", orc.RestartSettleDelay, &cfg.RestartSettleDelay); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", orc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := s.setDuration("summary-interval", orc.SummaryInterval, &cfg.SummaryInterval); err != nil {
		return err
	}
	if err := s.setDuration("hook-timeout", orc.HookTimeout, &cfg.HookTimeout); err != nil {
		return err
	}

	s.setInt("unhealthy-threshold", orc.UnhealthyThreshold, &cfg.UnhealthyThreshold)
	s.setInt("retry-reset-healthy-count", orc.RetryResetHealthyCount, &cfg.RetryResetHealthyCount)
	s.setBool("graceful", orc.GracefulShutdown, &cfg.GracefulShutdown)
	s.setString("policy-file", orc.PolicyFile, &cfg.PolicyFile)
	s.setStringSlice("fallbacks", orc.Fallbacks, &cfg.Fallbacks)

	if len(orc.AlternativeAgents) > 0 {
		cfg.AlternativeAgents = orc.AlternativeAgents
	}

	if fc.Policies != nil {
		set, err := policy.FromFileSet(*fc.Policies)
		if err != nil {
			return err
		}
		cfg.Policies = set
	}

	for _, a := range fc.Agents {
		cfg.Agents = append(cfg.Agents, AgentConfig{
			ID:           a.ID,
			Type:         a.Type,
			Dependencies: a.Dependencies,
			StartCmd:     a.StartCmd,
			StopCmd:      a.StopCmd,
			ProbeCmd:     a.ProbeCmd,
		})
	}
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
