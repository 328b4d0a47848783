package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	t.Setenv("AGENTD_HEALTH_INTERVAL", "12s")
	t.Setenv("AGENTD_UNHEALTHY_THRESHOLD", "30")
	t.Setenv("AGENTD_GRACEFUL_SHUTDOWN", "false")
	t.Setenv("AGENTD_FALLBACKS", "restart, graceful_degradation")
	t.Setenv("AGENTD_POLICY_FILE", "/tmp/policies.toml")

	cfg := DefaultConfig()
	if err := ApplyEnvConfig(&cfg, map[string]bool{}); err != nil {
		t.Fatalf("ApplyEnvConfig() error = %v", err)
	}

	if cfg.HealthInterval != 12*time.Second {
		t.Errorf("HealthInterval = %v", cfg.HealthInterval)
	}
	if cfg.UnhealthyThreshold != 30 {
		t.Errorf("UnhealthyThreshold = %d", cfg.UnhealthyThreshold)
	}
	if cfg.GracefulShutdown {
		t.Error("GracefulShutdown not applied from env")
	}
	if len(cfg.Fallbacks) != 2 || cfg.Fallbacks[1] != "graceful_degradation" {
		t.Errorf("Fallbacks = %v", cfg.Fallbacks)
	}
	if cfg.PolicyFile != "/tmp/policies.toml" {
		t.Errorf("PolicyFile = %q", cfg.PolicyFile)
	}
}

func TestApplyEnvConfig_FlagsWin(t *testing.T) {
	t.Setenv("AGENTD_HEALTH_INTERVAL", "12s")

	cfg := DefaultConfig()
	cfg.HealthInterval = time.Minute
	changed := map[string]bool{"health-interval": true}

	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig() error = %v", err)
	}
	if cfg.HealthInterval != time.Minute {
		t.Errorf("HealthInterval = %v, want flag value kept", cfg.HealthInterval)
	}
}

func TestApplyEnvConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "AGENTD_HEALTH_INTERVAL", "soon"},
		{"bad int", "AGENTD_UNHEALTHY_THRESHOLD", "many"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			cfg := DefaultConfig()
			if err := ApplyEnvConfig(&cfg, map[string]bool{}); err == nil {
				t.Errorf("ApplyEnvConfig() accepted %s=%q", tc.key, tc.value)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"zero health interval", func(c *Config) { c.HealthInterval = 0 }, true},
		{"threshold out of range", func(c *Config) { c.UnhealthyThreshold = 120 }, true},
		{"zero hook timeout", func(c *Config) { c.HookTimeout = 0 }, true},
		{"agent without id", func(c *Config) {
			c.Agents = []AgentConfig{{StartCmd: "true"}}
		}, true},
		{"duplicate agent ids", func(c *Config) {
			c.Agents = []AgentConfig{{ID: "a"}, {ID: "a"}}
		}, true},
		{"valid agents", func(c *Config) {
			c.Agents = []AgentConfig{{ID: "a"}, {ID: "b"}}
		}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
