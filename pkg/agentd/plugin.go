package agentd

import (
	"context"

	"github.com/bft-labs/agentd/pkg/log"
	"github.com/bft-labs/agentd/pkg/policy"
)

// Plugin extends the orchestrator with optional functionality.
// Plugins are initialized in registration order when Run is called and
// shut down in reverse order on Close.
type Plugin interface {
	// Name returns the plugin identifier, used in logs.
	Name() string

	// Initialize sets up the plugin. A returned error aborts Run; plugins
	// initialized before the failing one are shut down again.
	Initialize(ctx context.Context, pctx PluginContext) error

	// Shutdown stops the plugin and releases its resources.
	Shutdown(ctx context.Context) error
}

// PluginContext is handed to plugins at initialization.
type PluginContext struct {
	// Logger is the orchestrator's logger.
	Logger log.Logger

	// SetPolicies validates and atomically swaps the orchestrator's retry
	// policy set. In-flight recovery attempts keep the policy they
	// resolved.
	SetPolicies func(*policy.Set) error
}
