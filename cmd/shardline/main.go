package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/shardline/internal/cliconfig"
	"github.com/bft-labs/shardline/internal/httpapi"
	"github.com/bft-labs/shardline/pkg/log"
	"github.com/bft-labs/shardline/pkg/rest"
	"github.com/bft-labs/shardline/pkg/shard"
	"github.com/bft-labs/shardline/pkg/shardline"
	"github.com/bft-labs/shardline/plugins/presencewatcher"
)

const longHelp = `Run a sharded gateway session for a bot.

Highlights:
  - Fetches the recommended shard count and identify concurrency from the API.
  - Identifies shards under the session start limit and resumes dropped sessions.
  - Rate limits outbound commands per shard and queues the overflow.
  - Serves health, shard status and Prometheus metrics over HTTP with --listen.
  - Broadcasts the presence in --presence-file whenever the file changes.

Configure via $HOME/.shardline/config.toml, SHARDLINE_* environment variables, or flags.`

var exampleUsage = strings.TrimSpace(`
  shardline --token <bot-token> --listen :9090
  shardline --config ./shardline.toml --shards 16 --shard-from 0 --shard-to 7
  shardline gateway --token <bot-token>
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// loadConfig layers the config file, then the environment, beneath the flags.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	} else if cfgPath != "" {
		return fmt.Errorf("config file %s not found", cfgPath)
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

// logHandler logs instance and shard notifications.
type logHandler struct {
	shardline.BaseEventHandler
	log zerolog.Logger
}

func (h logHandler) OnStateChange(e shardline.StateChangeEvent) {
	h.log.Info().Str("from", e.Previous.String()).Str("to", e.Current.String()).Str("reason", e.Reason).Msg("state changed")
}

func (h logHandler) OnShardStatus(e shardline.ShardStatusEvent) {
	ev := h.log.Info()
	if e.Err != nil {
		ev = h.log.Warn().Err(e.Err)
	}
	ev.Uint64("shard", e.Shard.Index).Str("phase", e.Phase.String()).Msg("shard phase")
}

func (h logHandler) OnShardError(e shardline.ShardErrorEvent) {
	h.log.Error().Err(e.Err).Uint64("shard", e.Shard.Index).Str("kind", e.Kind.String()).Msg("shard stopped")
}

func run(cmd *cobra.Command, cfg cliconfig.Config, logger zerolog.Logger) error {
	logger.Info().Interface("config", cfg.Masked()).Msg("configuration")

	libCfg := cfg.Library()
	if cfg.PresenceFile != "" && cliconfig.FileExists(cfg.PresenceFile) {
		p, err := presencewatcher.LoadPresence(cfg.PresenceFile)
		if err != nil {
			return fmt.Errorf("load presence: %w", err)
		}
		libCfg.Presence = &p
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sl, err := shardline.New(libCfg,
		shardline.WithLogger(log.NewZerologAdapterWithLogger(logger)),
		shardline.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		shardline.WithRegisterer(reg),
		shardline.WithEventHandler(logHandler{log: logger}),
		presencewatcher.WithPresenceWatcher(presencewatcher.Config{Path: cfg.PresenceFile}),
	)
	if err != nil {
		return fmt.Errorf("create shardline: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sl.Start(ctx); err != nil {
		return fmt.Errorf("start shardline: %w", err)
	}

	apiErr := make(chan error, 1)
	if cfg.Listen != "" {
		srv := httpapi.NewServer(cfg.Listen, httpapi.Router(sl, reg), log.NewZerologAdapterWithLogger(logger))
		go func() { apiErr <- srv.Run(ctx) }()
	}

	done := sl.Cluster().Done()
	events := sl.Events()
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			logEvent(logger, ev)
		case err := <-apiErr:
			if err != nil {
				logger.Error().Err(err).Msg("http api failed")
				events = nil
			}
		case <-done:
			events = nil
		case <-ctx.Done():
			logger.Info().Msg("received signal, stopping...")
			events = nil
		}
	}

	if sl.Status() == shardline.StateCrashed {
		logger.Error().Msg("shardline crashed")
	}
	if err := sl.Stop(); err != nil && !errors.Is(err, shardline.ErrNotRunning) {
		return fmt.Errorf("stop shardline: %w", err)
	}
	return nil
}

func logEvent(logger zerolog.Logger, ev shard.Event) {
	switch {
	case ev.Kind.Has(shard.EventDispatch):
		logger.Debug().Uint64("shard", ev.Shard.Index).Int64("seq", ev.Sequence).Str("event", ev.Name).Int("bytes", len(ev.Data)).Msg("dispatch")
	case ev.Kind.Has(shard.EventUnknown):
		logger.Debug().Uint64("shard", ev.Shard.Index).Int("op", int(ev.Op)).Msg("unknown opcode")
	}
}

func gatewayCommand(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Print the recommended shard count and session start limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfg, *cfgPath); err != nil {
				return err
			}
			opts := []rest.Option{rest.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout})}
			if cfg.APIURL != "" {
				opts = append(opts, rest.WithAPIURL(cfg.APIURL))
			}
			gb, err := rest.NewClient(cfg.Token, opts...).GatewayBot(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(gb)
		},
	}
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	logger := cliconfig.Logger("info")

	root := &cobra.Command{
		Use:     "shardline",
		Short:   "Run a sharded gateway session for a bot",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, &cfg, cfgPath); err != nil {
				return err
			}
			logger = cliconfig.Logger(cfg.LogLevel)
			return run(cmd, cfg, logger)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.shardline/config.toml)")
	pf.StringVar(&cfg.Token, "token", cfg.Token, "bot token")
	pf.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "REST API base URL")
	if err := pf.MarkHidden("api-url"); err != nil {
		logger.Info().Err(err).Msg("failed to hide api-url flag")
	}
	pf.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (trace, debug, info, warn, error)")

	f := root.Flags()
	f.StringVar(&cfg.GatewayURL, "gateway-url", cfg.GatewayURL, "gateway URL (default: from the API)")
	f.Uint64Var(&cfg.ShardCount, "shards", cfg.ShardCount, "total shard count (default: recommended by the API)")
	f.Uint64Var(&cfg.ShardFrom, "shard-from", cfg.ShardFrom, "first shard run by this process")
	f.Uint64Var(&cfg.ShardTo, "shard-to", cfg.ShardTo, "last shard run by this process (default: last shard)")
	f.Uint64Var(&cfg.ShardConcurrency, "concurrency", cfg.ShardConcurrency, "identify concurrency (default: from the API)")
	f.DurationVar(&cfg.IdentifyInterval, "identify-interval", cfg.IdentifyInterval, "interval between identifies of one concurrency bucket")

	f.Uint64Var(&cfg.Intents, "intents", cfg.Intents, "gateway intents bitmask")
	f.StringVar(&cfg.Compression, "compression", cfg.Compression, "transport compression (none, payload, zlib-stream)")
	f.IntVar(&cfg.LargeThreshold, "large-threshold", cfg.LargeThreshold, "member count above which guilds are large (50-250)")

	f.BoolVar(&cfg.HeartbeatJitter, "heartbeat-jitter", cfg.HeartbeatJitter, "delay the first heartbeat by a random fraction of the interval")
	f.DurationVar(&cfg.HelloTimeout, "hello-timeout", cfg.HelloTimeout, "time to wait for Hello after connecting")
	f.DurationVar(&cfg.BackoffFloor, "backoff-floor", cfg.BackoffFloor, "minimum reconnect delay")
	f.DurationVar(&cfg.BackoffCap, "backoff-cap", cfg.BackoffCap, "maximum reconnect delay")
	f.DurationVar(&cfg.BackoffStableAfter, "backoff-stable", cfg.BackoffStableAfter, "connection age that resets the reconnect delay")
	f.IntVar(&cfg.MaxReconnectAttempts, "max-reconnects", cfg.MaxReconnectAttempts, "reconnect attempts before a shard restarts (0: unlimited)")

	f.IntVar(&cfg.CommandBudget, "command-budget", cfg.CommandBudget, "commands per window per shard")
	f.DurationVar(&cfg.CommandWindow, "command-window", cfg.CommandWindow, "command rate limit window")
	f.IntVar(&cfg.CommandQueueCapacity, "command-queue", cfg.CommandQueueCapacity, "commands queued beyond the budget")

	f.StringVar(&cfg.PresenceFile, "presence-file", cfg.PresenceFile, "TOML presence file to broadcast on change")
	f.StringVar(&cfg.Listen, "listen", cfg.Listen, "address for the health, shards and metrics API")

	root.AddCommand(gatewayCommand(&cfg, &cfgPath))

	if err := root.Execute(); err != nil {
		logger.Error().Err(err).Msg("shardline")
		os.Exit(1)
	}
}
