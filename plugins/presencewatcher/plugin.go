// Package presencewatcher keeps the bot presence in sync with a file.
// When enabled, it watches a TOML presence file and broadcasts a presence
// update to every shard whenever the file changes.
package presencewatcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/shardline/pkg/gate"
	"github.com/bft-labs/shardline/pkg/log"
	"github.com/bft-labs/shardline/pkg/shardline"
)

// Plugin implements presence file watching.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	path          string
	debounceDelay time.Duration

	// Runtime state
	logger   log.Logger
	commands shardline.Broadcaster
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// Config holds configuration options for the presence watcher plugin.
type Config struct {
	// Path is the presence file. An empty path disables the plugin.
	Path string

	// DebounceDelay is the delay to wait after a file change before sending.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new presence watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		path:          cfg.Path,
		debounceDelay: cfg.DebounceDelay,
		logger:        log.NoopLogger{},
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "presencewatcher"
}

// Initialize starts the watcher. The first update is sent once every
// shard is Ready.
func (p *Plugin) Initialize(ctx context.Context, cfg shardline.PluginConfig) error {
	p.mu.Lock()
	if cfg.Logger != nil {
		p.logger = log.With(cfg.Logger, log.String("plugin", p.Name()))
	}
	p.commands = cfg.Commands
	p.mu.Unlock()

	if p.path == "" || p.commands == nil {
		p.logger.Warn("presence watcher disabled: no presence file configured")
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("presence watcher initialized", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, cfg.Ready)
	return nil
}

// Shutdown stops the watcher.
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

func (p *Plugin) watchLoop(ctx context.Context, ready <-chan struct{}) {
	defer p.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Error("presence watcher: failed to create watcher", log.Err(err))
		return
	}
	defer watcher.Close()

	// Editors often replace the file, so the directory is watched.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		p.logger.Error("presence watcher: failed to watch directory", log.Err(err))
		return
	}

	if ready != nil {
		select {
		case <-ready:
		case <-ctx.Done():
			return
		}
	}
	p.apply(ctx)

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceApply(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("presence watcher: watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceApply(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		p.apply(ctx)
	})
}

// apply loads the presence file and broadcasts it. Rejected commands are
// logged and not retried; the next file change sends again.
func (p *Plugin) apply(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	presence, err := LoadPresence(p.path)
	if err != nil {
		p.logger.Error("presence watcher: invalid presence file", log.Err(err))
		return
	}

	err = p.commands.Broadcast(ctx, presence)
	switch {
	case err == nil:
		p.logger.Info("presence updated",
			log.String("status", string(presence.Status)),
			log.Int("activities", len(presence.Activities)))
	case errors.Is(err, gate.ErrBackpressure):
		p.logger.Warn("presence watcher: command queue full", log.Err(err))
	default:
		p.logger.Error("presence watcher: broadcast failed", log.Err(err))
	}
}

// Ensure Plugin implements shardline.Plugin.
var _ shardline.Plugin = (*Plugin)(nil)
