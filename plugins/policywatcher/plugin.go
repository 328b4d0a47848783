// Package policywatcher provides retry-policy hot reload for agentd.
// When enabled, it watches a policy TOML file for changes and swaps the
// orchestrator's policy set when the file is rewritten.
package policywatcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/agentd/pkg/agentd"
	"github.com/bft-labs/agentd/pkg/log"
	"github.com/bft-labs/agentd/pkg/policy"
)

// Plugin watches a policy file and reloads it into the running
// orchestrator. A file that fails to parse or validate is logged and
// skipped; the previous policies stay in effect.
type Plugin struct {
	mu sync.Mutex

	path          string
	debounceDelay time.Duration

	logger      log.Logger
	setPolicies func(*policy.Set) error
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	debounce    *time.Timer
}

// Config holds configuration options for the policy watcher plugin.
type Config struct {
	// Path is the policy TOML file to watch. Required.
	Path string

	// DebounceDelay is the delay to wait after a file change before
	// reloading, coalescing editor write bursts.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults. Path must still
// be set.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a policy watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		path:          cfg.Path,
		debounceDelay: cfg.DebounceDelay,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "policywatcher"
}

// Initialize loads the policy file once, then starts the watcher loop.
func (p *Plugin) Initialize(ctx context.Context, pctx agentd.PluginContext) error {
	p.mu.Lock()
	p.logger = pctx.Logger
	p.setPolicies = pctx.SetPolicies
	p.mu.Unlock()

	if p.path == "" {
		return errors.New("policywatcher: path not configured")
	}

	// The initial load is strict: a broken file at startup is a
	// configuration error, not a transient edit.
	if err := p.reload(); err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("policy watcher initialized", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx)
	return nil
}

// Shutdown stops the watcher loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

// watchLoop watches the policy file's directory. Watching the directory
// instead of the file keeps the watch alive across rename-based atomic
// writes.
func (p *Plugin) watchLoop(ctx context.Context) {
	defer p.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Error("policy watcher: failed to create watcher", log.Err(err))
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		p.logger.Error("policy watcher: failed to watch directory",
			log.String("dir", dir),
			log.Err(err),
		)
		return
	}

	base := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("policy watcher: watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if err := p.reload(); err != nil {
			p.logger.Warn("policy watcher: reload skipped, keeping previous policies",
				log.String("path", p.path),
				log.Err(err),
			)
		}
	})
}

// reload parses the policy file and swaps it into the orchestrator.
func (p *Plugin) reload() error {
	set, err := policy.LoadFile(p.path)
	if err != nil {
		return err
	}
	if err := p.setPolicies(set); err != nil {
		return err
	}
	p.logger.Info("retry policies reloaded", log.String("path", p.path))
	return nil
}

// Ensure Plugin implements agentd.Plugin.
var _ agentd.Plugin = (*Plugin)(nil)
