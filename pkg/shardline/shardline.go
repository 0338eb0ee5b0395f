package shardline

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/bft-labs/shardline/pkg/cluster"
	"github.com/bft-labs/shardline/pkg/gate"
	"github.com/bft-labs/shardline/pkg/lifecycle"
	"github.com/bft-labs/shardline/pkg/log"
	"github.com/bft-labs/shardline/pkg/metrics"
	"github.com/bft-labs/shardline/pkg/rest"
	"github.com/bft-labs/shardline/pkg/session"
	"github.com/bft-labs/shardline/pkg/shard"
)

// Shardline keeps the gateway shards of one application connected. Use
// New to create an instance, then Start to connect.
type Shardline struct {
	config    Config
	opts      options
	lifecycle *lifecycle.DefaultManager
	emitter   *eventEmitterWrapper
	logger    log.Logger
	recorder  metrics.Recorder
	plugins   []Plugin

	mu      sync.RWMutex
	cluster *cluster.Cluster
	cancel  context.CancelFunc
}

// New creates a new Shardline instance with the given configuration.
// The instance is created in StateStopped; call Start to connect.
func New(cfg Config, opts ...Option) (*Shardline, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	o := options{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	var recorder metrics.Recorder = metrics.Noop{}
	if o.registerer != nil {
		recorder = metrics.NewPrometheus(metrics.WithRegistry(o.registerer))
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler}
	return &Shardline{
		config:    cfg,
		opts:      o,
		lifecycle: lifecycle.NewManager(o.logger, emitter),
		emitter:   emitter,
		logger:    o.logger,
		recorder:  recorder,
		plugins:   o.plugins,
	}, nil
}

// Start resolves the shard layout and connects the shards in the
// background. It returns once the shards are launched.
func (s *Shardline) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.CanStart() {
		return ErrAlreadyRunning
	}
	if err := s.lifecycle.TransitionTo(StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.lifecycle.SetCancel(cancel)

	c, err := cluster.New(runCtx, s.clusterConfig(), s.clusterOptions()...)
	if err != nil {
		s.logger.Error("cluster setup failed", log.Err(err))
		cancel()
		_ = s.lifecycle.TransitionTo(StateCrashed, "cluster setup failed: "+err.Error())
		return err
	}
	s.cluster = c

	pluginCfg := PluginConfig{
		Logger:   s.logger,
		Commands: c,
		Ready:    c.Ready(),
	}
	for _, p := range s.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			s.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			cancel()
			_ = s.lifecycle.TransitionTo(StateCrashed, "plugin init failed: "+p.Name())
			return err
		}
		s.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	s.lifecycle.AddWorker()
	go func() {
		defer s.lifecycle.WorkerDone()

		if err := s.lifecycle.TransitionTo(StateRunning, "shards starting"); err != nil {
			s.logger.Error("failed to transition to running", log.Err(err))
			return
		}

		if err := c.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("cluster error", log.Err(err))
			_ = s.lifecycle.TransitionTo(StateCrashed, err.Error())
		}
	}()

	return nil
}

// Stop closes every shard, discarding their sessions, and waits up to
// lifecycle.ShutdownTimeout. Returns ErrShutdownTimeout if forced.
func (s *Shardline) Stop() error {
	return s.stop(nil)
}

// StopResumable closes every shard so that the sessions stay resumable and
// returns them. Pass them as Config.ResumeSessions to resume.
func (s *Shardline) StopResumable() (map[uint64]session.Session, error) {
	var sessions map[uint64]session.Session
	err := s.stop(func(c *cluster.Cluster) {
		sessions = c.DownResumable()
	})
	return sessions, err
}

func (s *Shardline) stop(down func(*cluster.Cluster)) error {
	s.mu.Lock()
	if !s.lifecycle.CanStop() {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if err := s.lifecycle.TransitionTo(StateStopping, "Stop() called"); err != nil {
		s.mu.Unlock()
		return err
	}
	c, cancel := s.cluster, s.cancel
	s.mu.Unlock()

	if down != nil && c != nil {
		down(c)
	}
	if cancel != nil {
		cancel()
	}

	err := s.lifecycle.WaitWithTimeout(lifecycle.ShutdownTimeout)

	shutdownCtx := context.Background()
	for i := len(s.plugins) - 1; i >= 0; i-- {
		p := s.plugins[i]
		if shutdownErr := p.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(shutdownErr))
		} else {
			s.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
		}
	}

	if err != nil {
		_ = s.lifecycle.TransitionTo(StateCrashed, "shutdown timeout")
	} else {
		_ = s.lifecycle.TransitionTo(StateStopped, "graceful shutdown")
	}
	return err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (s *Shardline) Status() State {
	return s.lifecycle.State()
}

// Cluster returns the running cluster, or nil before Start.
func (s *Shardline) Cluster() *cluster.Cluster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cluster
}

// Events returns the merged event stream, or nil before Start. The
// channel is closed once the shards are stopped.
func (s *Shardline) Events() <-chan shard.Event {
	if c := s.Cluster(); c != nil {
		return c.Events()
	}
	return nil
}

// Info returns a snapshot of every shard.
func (s *Shardline) Info() []shard.Info {
	if c := s.Cluster(); c != nil {
		return c.Info()
	}
	return nil
}

// Recorder returns the metrics recorder in use.
func (s *Shardline) Recorder() metrics.Recorder {
	return s.recorder
}

func (s *Shardline) clusterConfig() cluster.Config {
	cfg := s.config
	return cluster.Config{
		Token:            cfg.Token,
		ShardCount:       cfg.ShardCount,
		ShardFrom:        cfg.ShardFrom,
		ShardTo:          cfg.ShardTo,
		Concurrency:      cfg.ShardConcurrency,
		IdentifyInterval: cfg.IdentifyInterval,
		GatewayURL:       cfg.GatewayURL,
		PerShardEvents:   cfg.PerShardEvents,
		EventBuffer:      cfg.EventBuffer,
		ResumeSessions:   cfg.ResumeSessions,
		Shard: shard.Config{
			Compression:          cfg.Compression,
			Intents:              cfg.Intents,
			LargeThreshold:       cfg.LargeThreshold,
			Presence:             cfg.Presence,
			HeartbeatJitter:      cfg.HeartbeatJitter,
			HelloTimeout:         cfg.HelloTimeout,
			BackoffFloor:         cfg.BackoffFloor,
			BackoffCap:           cfg.BackoffCap,
			BackoffStableAfter:   cfg.BackoffStableAfter,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
			Gate: gate.Config{
				Capacity:      cfg.CommandBudget,
				Window:        cfg.CommandWindow,
				QueueCapacity: cfg.CommandQueueCapacity,
			},
		},
	}
}

func (s *Shardline) clusterOptions() []cluster.Option {
	opts := []cluster.Option{
		cluster.WithLogger(s.logger),
		cluster.WithRecorder(s.recorder),
		cluster.WithStatusHandler(s.emitter.onShardStatus),
		cluster.WithErrorHandler(s.emitter.onShardError),
	}

	gateway := s.opts.gateway
	if gateway == nil {
		restOpts := []rest.Option{rest.WithHTTPClient(s.opts.httpClient), rest.WithLogger(s.logger)}
		if s.config.APIURL != "" {
			restOpts = append(restOpts, rest.WithAPIURL(s.config.APIURL))
		}
		gateway = rest.NewClient(s.config.Token, restOpts...)
	}
	opts = append(opts, cluster.WithGateway(gateway))

	if s.opts.dialer != nil {
		opts = append(opts, cluster.WithDialer(s.opts.dialer))
	}
	if s.opts.queue != nil {
		opts = append(opts, cluster.WithQueue(s.opts.queue))
	}
	return opts
}
