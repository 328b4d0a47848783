package policywatcher

import "github.com/bft-labs/agentd/pkg/agentd"

// WithPolicyWatcher returns an agentd Option that enables retry-policy
// hot reload from the given TOML file.
//
// Usage:
//
//	orc, err := agentd.New(cfg,
//	    policywatcher.WithPolicyWatcher(policywatcher.Config{
//	        Path: "/etc/agentd/policies.toml",
//	    }),
//	)
func WithPolicyWatcher(cfg Config) agentd.Option {
	plugin := New(cfg)
	return agentd.WithPlugin(plugin)
}
