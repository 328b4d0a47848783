package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/agentd/internal/cliconfig"
	"github.com/bft-labs/agentd/pkg/agentd"
	"github.com/bft-labs/agentd/pkg/log"
	"github.com/bft-labs/agentd/plugins/policywatcher"
)

const helpDescription = `
Supervise a set of local agents: validated lifecycle transitions,
dependency-ordered startup, periodic health probes, and automatic
recovery with bounded backoff retries and fallback strategies.

Agents are declared in a TOML config file; their start/stop/probe hooks
exec shell commands. Retry policies can be hot reloaded from a separate
policy file while the supervisor runs.
`

var exampleUsage = strings.TrimSpace(`
  agentd --config /etc/agentd/config.toml
  agentd --config ./agentd.toml --health-interval 10s
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	zl := cliconfig.Logger()

	root := &cobra.Command{
		Use:     "agentd",
		Short:   "Supervise local agents with health monitoring and fault recovery",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			// Build set of changed flags
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Apply environment variables (AGENTD_*)
			// These override file config but are overridden by flags (checked via changed map)
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			zl.Info().
				Dur("health_interval", cfg.HealthInterval).
				Int("unhealthy_threshold", cfg.UnhealthyThreshold).
				Int("agents", len(cfg.Agents)).
				Str("policy_file", cfg.PolicyFile).
				Msg("configuration loaded")

			return run(cmd.Context(), cfg, zl)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.agentd/config.toml)")
	root.Flags().DurationVar(&cfg.HealthInterval, "health-interval", cfg.HealthInterval, "health monitor cadence")
	root.Flags().IntVar(&cfg.UnhealthyThreshold, "unhealthy-threshold", cfg.UnhealthyThreshold, "health score at or below which an agent is unhealthy")
	root.Flags().DurationVar(&cfg.IdleAfter, "idle-after", cfg.IdleAfter, "inactivity period before an agent is marked idle (0 disables)")
	root.Flags().DurationVar(&cfg.RestartSettleDelay, "settle-delay", cfg.RestartSettleDelay, "fixed wait between the stop and start phases of a restart")
	root.Flags().BoolVar(&cfg.GracefulShutdown, "graceful", cfg.GracefulShutdown, "run shutdown hooks before stopping agents")
	root.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "wait bound for background work on shutdown")
	root.Flags().StringSliceVar(&cfg.Fallbacks, "fallbacks", cfg.Fallbacks, "ordered fallback strategies after retry exhaustion")
	root.Flags().IntVar(&cfg.RetryResetHealthyCount, "retry-reset-healthy-count", cfg.RetryResetHealthyCount, "healthy checks that re-arm the retry budget (0 = never)")
	root.Flags().DurationVar(&cfg.SummaryInterval, "summary-interval", cfg.SummaryInterval, "health summary log cadence (0 disables)")
	root.Flags().StringVar(&cfg.PolicyFile, "policy-file", cfg.PolicyFile, "retry-policy TOML file, hot reloaded on change")
	root.Flags().DurationVar(&cfg.HookTimeout, "hook-timeout", cfg.HookTimeout, "timeout for exec-based agent hooks")

	if err := root.Execute(); err != nil {
		zl.Error().Err(err).Msg("agentd")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg cliconfig.Config, zl zerolog.Logger) error {
	logger := log.NewZerologAdapterWithLogger(zl)

	orcCfg := agentd.Config{
		HealthInterval:         cfg.HealthInterval,
		UnhealthyThreshold:     &cfg.UnhealthyThreshold,
		IdleAfter:              cfg.IdleAfter,
		RestartSettleDelay:     cfg.RestartSettleDelay,
		GracefulShutdown:       cfg.GracefulShutdown,
		ShutdownTimeout:        cfg.ShutdownTimeout,
		Fallbacks:              cfg.Fallbacks,
		RetryResetHealthyCount: cfg.RetryResetHealthyCount,
		AlternativeAgents:      cfg.AlternativeAgents,
	}

	opts := []agentd.Option{agentd.WithLogger(logger)}
	if cfg.Policies != nil {
		opts = append(opts, agentd.WithPolicies(cfg.Policies))
	}
	if cfg.PolicyFile != "" {
		opts = append(opts, policywatcher.WithPolicyWatcher(policywatcher.Config{
			Path: cfg.PolicyFile,
		}))
	}

	orc, err := agentd.New(orcCfg, opts...)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := orc.Run(runCtx); err != nil {
		return fmt.Errorf("run orchestrator: %w", err)
	}

	for _, a := range cfg.Agents {
		res := orc.Register(descriptorFor(a, cfg.HookTimeout))
		if !res.Success {
			orc.Close()
			return fmt.Errorf("register agent %s: %s", a.ID, res.Message)
		}
	}

	for _, id := range startOrder(cfg.Agents) {
		if res := orc.Start(runCtx, id); !res.Success {
			// Start failures are recovered automatically; the supervisor
			// keeps running.
			zl.Warn().Str("agent", id).Str("error", res.Message).Msg("agent start failed")
		}
	}

	var summaryCh <-chan time.Time
	if cfg.SummaryInterval > 0 {
		ticker := time.NewTicker(cfg.SummaryInterval)
		defer ticker.Stop()
		summaryCh = ticker.C
	}

	for {
		select {
		case <-sigCh:
			zl.Info().Msg("received signal, stopping...")
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			orc.StopAll(stopCtx)
			stopCancel()
			return orc.Close()

		case <-runCtx.Done():
			orc.StopAll(context.Background())
			return orc.Close()

		case <-summaryCh:
			s := orc.GetSystemHealthSummary()
			zl.Info().
				Int("total", s.TotalAgents).
				Int("active", s.ActiveAgents).
				Int("error", s.ErrorAgents).
				Int("stopped", s.StoppedAgents).
				Float64("avg_score", s.AvgHealthScore).
				Str("system_health", s.SystemHealth).
				Msg("health summary")
		}
	}
}

// descriptorFor turns a config agent entry into a descriptor whose hooks
// exec shell commands.
func descriptorFor(a cliconfig.AgentConfig, timeout time.Duration) agentd.Descriptor {
	desc := agentd.Descriptor{
		ID:           a.ID,
		Type:         a.Type,
		Dependencies: a.Dependencies,
	}
	if a.StartCmd != "" {
		desc.Startup = execHook(a.StartCmd, timeout)
	}
	if a.StopCmd != "" {
		desc.Shutdown = execHook(a.StopCmd, timeout)
	}
	if a.ProbeCmd != "" {
		desc.HealthProbe = execProbe(a.ProbeCmd, timeout)
	}
	return desc
}

func execHook(command string, timeout time.Duration) agentd.Hook {
	return func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(cctx, "sh", "-c", command)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s: %w: %s", command, err, strings.TrimSpace(string(out)))
		}
		return nil
	}
}

// execProbe reports full health when the probe command exits zero.
func execProbe(command string, timeout time.Duration) agentd.Probe {
	return func(ctx context.Context) (int, error) {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(cctx, "sh", "-c", command)
		if err := cmd.Run(); err != nil {
			return 0, fmt.Errorf("%s: %w", command, err)
		}
		return 100, nil
	}
}

// startOrder sorts agents so that dependencies start before dependents.
// Registration already rejected cycles; ids with unresolved dependencies
// are appended last and left to the dependency gate.
func startOrder(agents []cliconfig.AgentConfig) []string {
	deps := make(map[string][]string, len(agents))
	for _, a := range agents {
		deps[a.ID] = a.Dependencies
	}

	order := make([]string, 0, len(agents))
	placed := make(map[string]bool, len(agents))

	for len(order) < len(agents) {
		progressed := false
		for _, a := range agents {
			if placed[a.ID] {
				continue
			}
			ready := true
			for _, d := range a.Dependencies {
				if _, known := deps[d]; known && !placed[d] {
					ready = false
					break
				}
			}
			if ready {
				order = append(order, a.ID)
				placed[a.ID] = true
				progressed = true
			}
		}
		if !progressed {
			for _, a := range agents {
				if !placed[a.ID] {
					order = append(order, a.ID)
					placed[a.ID] = true
				}
			}
		}
	}
	return order
}
