package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables
// (AGENTD_*). It respects flags that have been explicitly set (changed
// map). Returns an error if any environment variable has an invalid
// format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	if err := s.setDuration("health-interval", os.Getenv("AGENTD_HEALTH_INTERVAL"), &cfg.HealthInterval); err != nil {
		return err
	}
	if err := s.setDuration("idle-after", os.Getenv("AGENTD_IDLE_AFTER"), &cfg.IdleAfter); err != nil {
		return err
	}
	if err := s.setDuration("settle-delay", os.Getenv("AGENTD_RESTART_SETTLE_DELAY"), &cfg.RestartSettleDelay); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", os.Getenv("AGENTD_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := s.setDuration("summary-interval", os.Getenv("AGENTD_SUMMARY_INTERVAL"), &cfg.SummaryInterval); err != nil {
		return err
	}
	if err := s.setDuration("hook-timeout", os.Getenv("AGENTD_HOOK_TIMEOUT"), &cfg.HookTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("unhealthy-threshold", os.Getenv("AGENTD_UNHEALTHY_THRESHOLD"), &cfg.UnhealthyThreshold); err != nil {
		return err
	}
	if err := s.setIntFromString("retry-reset-healthy-count", os.Getenv("AGENTD_RETRY_RESET_HEALTHY_COUNT"), &cfg.RetryResetHealthyCount); err != nil {
		return err
	}

	s.setString("policy-file", os.Getenv("AGENTD_POLICY_FILE"), &cfg.PolicyFile)
	s.setBoolFromString("graceful", os.Getenv("AGENTD_GRACEFUL_SHUTDOWN"), &cfg.GracefulShutdown)
	s.setSliceFromString("fallbacks", os.Getenv("AGENTD_FALLBACKS"), &cfg.Fallbacks)

	return nil
}
