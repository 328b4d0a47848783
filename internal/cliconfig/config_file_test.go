package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	falseVal := false

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		check      func(t *testing.T, cfg Config)
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				Orchestrator: OrchestratorFileConfig{
					HealthInterval:         "10s",
					UnhealthyThreshold:     40,
					IdleAfter:              "5m",
					RestartSettleDelay:     "2s",
					GracefulShutdown:       &falseVal,
					ShutdownTimeout:        "20s",
					Fallbacks:              []string{"restart"},
					RetryResetHealthyCount: 3,
					SummaryInterval:        "30s",
					PolicyFile:             "/etc/agentd/policies.toml",
					HookTimeout:            "45s",
					AlternativeAgents:      map[string]string{"a": "b"},
				},
			},
			changed: map[string]bool{},
			initial: DefaultConfig(),
			check: func(t *testing.T, cfg Config) {
				if cfg.HealthInterval != 10*time.Second {
					t.Errorf("HealthInterval = %v", cfg.HealthInterval)
				}
				if cfg.UnhealthyThreshold != 40 {
					t.Errorf("UnhealthyThreshold = %d", cfg.UnhealthyThreshold)
				}
				if cfg.IdleAfter != 5*time.Minute {
					t.Errorf("IdleAfter = %v", cfg.IdleAfter)
				}
				if cfg.GracefulShutdown {
					t.Error("GracefulShutdown not applied")
				}
				if cfg.ShutdownTimeout != 20*time.Second {
					t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
				}
				if len(cfg.Fallbacks) != 1 || cfg.Fallbacks[0] != "restart" {
					t.Errorf("Fallbacks = %v", cfg.Fallbacks)
				}
				if cfg.RetryResetHealthyCount != 3 {
					t.Errorf("RetryResetHealthyCount = %d", cfg.RetryResetHealthyCount)
				}
				if cfg.SummaryInterval != 30*time.Second {
					t.Errorf("SummaryInterval = %v", cfg.SummaryInterval)
				}
				if cfg.PolicyFile != "/etc/agentd/policies.toml" {
					t.Errorf("PolicyFile = %q", cfg.PolicyFile)
				}
				if cfg.HookTimeout != 45*time.Second {
					t.Errorf("HookTimeout = %v", cfg.HookTimeout)
				}
				if cfg.AlternativeAgents["a"] != "b" {
					t.Errorf("AlternativeAgents = %v", cfg.AlternativeAgents)
				}
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				Orchestrator: OrchestratorFileConfig{
					HealthInterval:     "10s",
					UnhealthyThreshold: 40,
				},
			},
			changed: map[string]bool{"health-interval": true},
			initial: Config{
				HealthInterval:     time.Minute,
				UnhealthyThreshold: 50,
				HookTimeout:        30 * time.Second,
			},
			check: func(t *testing.T, cfg Config) {
				if cfg.HealthInterval != time.Minute {
					t.Errorf("HealthInterval = %v, want flag value kept", cfg.HealthInterval)
				}
				if cfg.UnhealthyThreshold != 40 {
					t.Errorf("UnhealthyThreshold = %d, want file value", cfg.UnhealthyThreshold)
				}
			},
		},
		{
			name: "invalid duration",
			fileConfig: FileConfig{
				Orchestrator: OrchestratorFileConfig{HealthInterval: "not-a-duration"},
			},
			changed: map[string]bool{},
			initial: DefaultConfig(),
			wantErr: true,
		},
		{
			name: "agent entries appended",
			fileConfig: FileConfig{
				Agents: []AgentFileConfig{
					{
						ID:           "db",
						Type:         "storage",
						StartCmd:     "systemctl start db",
						StopCmd:      "systemctl stop db",
						ProbeCmd:     "pg_isready",
						Dependencies: nil,
					},
					{
						ID:           "api",
						Type:         "worker",
						Dependencies: []string{"db"},
						StartCmd:     "systemctl start api",
					},
				},
			},
			changed: map[string]bool{},
			initial: DefaultConfig(),
			check: func(t *testing.T, cfg Config) {
				if len(cfg.Agents) != 2 {
					t.Fatalf("Agents = %d, want 2", len(cfg.Agents))
				}
				if cfg.Agents[0].ID != "db" || cfg.Agents[0].ProbeCmd != "pg_isready" {
					t.Errorf("Agents[0] = %+v", cfg.Agents[0])
				}
				if len(cfg.Agents[1].Dependencies) != 1 || cfg.Agents[1].Dependencies[0] != "db" {
					t.Errorf("Agents[1].Dependencies = %v", cfg.Agents[1].Dependencies)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.initial
			err := ApplyFileConfig(&cfg, tc.fileConfig, tc.changed)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ApplyFileConfig() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.check != nil {
				tc.check(t, cfg)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	content := `
[orchestrator]
health_interval = "15s"
unhealthy_threshold = 35
fallbacks = ["restart", "graceful_degradation"]

[orchestrator.alternative_agents]
primary = "backup"

[policies.default]
max_retries = 4
base_delay = "500ms"

[policies.types.worker]
max_retries = 1

[[agents]]
id = "db"
type = "storage"
start_cmd = "true"

[[agents]]
id = "api"
type = "worker"
dependencies = ["db"]
start_cmd = "true"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err != nil {
		t.Fatalf("ApplyFileConfig() error = %v", err)
	}

	if cfg.HealthInterval != 15*time.Second {
		t.Errorf("HealthInterval = %v", cfg.HealthInterval)
	}
	if cfg.UnhealthyThreshold != 35 {
		t.Errorf("UnhealthyThreshold = %d", cfg.UnhealthyThreshold)
	}
	if cfg.AlternativeAgents["primary"] != "backup" {
		t.Errorf("AlternativeAgents = %v", cfg.AlternativeAgents)
	}

	if cfg.Policies == nil {
		t.Fatal("Policies not parsed")
	}
	if def := cfg.Policies.DefaultPolicy(); def.MaxRetries != 4 || def.BaseDelay != 500*time.Millisecond {
		t.Errorf("default policy = %+v", def)
	}
	if worker := cfg.Policies.Resolve("worker"); worker.MaxRetries != 1 {
		t.Errorf("worker policy = %+v", worker)
	}

	if len(cfg.Agents) != 2 || cfg.Agents[1].ID != "api" {
		t.Errorf("Agents = %+v", cfg.Agents)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFileConfig_MissingFile(t *testing.T) {
	if _, err := LoadFileConfig("/nonexistent/config.toml"); err == nil {
		t.Fatal("LoadFileConfig() succeeded for missing file")
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exists.toml")
	if FileExists(path) {
		t.Error("FileExists() = true for missing file")
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Error("FileExists() = false for existing file")
	}
}
