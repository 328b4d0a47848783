// Package agentd provides an embeddable agent lifecycle orchestrator.
//
// The orchestrator supervises a set of registered agents: it validates
// lifecycle state transitions, gates startup on declared dependencies,
// monitors health on a fixed cadence, and recovers failed agents with
// bounded backoff retries followed by configurable fallback strategies.
//
// # Basic Usage
//
//	cfg := agentd.DefaultConfig()
//
//	orc, err := agentd.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	if err := orc.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	orc.Register(agentd.Descriptor{
//	    ID:   "ingest",
//	    Type: "worker",
//	    Startup: func(ctx context.Context) error {
//	        // bring the agent up
//	        return nil
//	    },
//	})
//	orc.Start(ctx, "ingest")
//
//	// ... run until shutdown signal ...
//
//	orc.StopAll(ctx)
//	if err := orc.Close(); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// # Events
//
// Every lifecycle operation emits a typed [Event] with a unique ID.
// Register observers with [Orchestrator.Subscribe]; subscribers are
// invoked synchronously and a panicking subscriber is contained and
// logged, never propagated into the orchestrator.
//
// # Retry Policies
//
// Recovery behavior is governed by a [policy.Set]: a default retry policy
// plus per-agent-type overrides, injectable via [WithPolicies] and hot
// swappable at runtime (see the policywatcher plugin).
//
// # Plugins
//
// Optional functionality attaches through the [Plugin] interface,
// registered with [WithPlugin]. Plugins are initialized in registration
// order when Run is called and shut down in reverse order on Close.
package agentd
