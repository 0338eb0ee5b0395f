package cliconfig

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by the CLI.
const EnvPrefix = "SHARDLINE_"

// EnvConfig holds the SHARDLINE_* environment variables. Unset variables
// stay nil.
type EnvConfig struct {
	Token                *string        `env:"TOKEN"`
	APIURL               *string        `env:"API_URL"`
	GatewayURL           *string        `env:"GATEWAY_URL"`
	ShardCount           *uint64        `env:"SHARD_COUNT"`
	ShardFrom            *uint64        `env:"SHARD_FROM"`
	ShardTo              *uint64        `env:"SHARD_TO"`
	ShardConcurrency     *uint64        `env:"SHARD_CONCURRENCY"`
	IdentifyInterval     *time.Duration `env:"IDENTIFY_INTERVAL"`
	Intents              *uint64        `env:"INTENTS"`
	Compression          *string        `env:"COMPRESSION"`
	LargeThreshold       *int           `env:"LARGE_THRESHOLD"`
	HeartbeatJitter      *bool          `env:"HEARTBEAT_JITTER"`
	HelloTimeout         *time.Duration `env:"HELLO_TIMEOUT"`
	BackoffFloor         *time.Duration `env:"BACKOFF_FLOOR"`
	BackoffCap           *time.Duration `env:"BACKOFF_CAP"`
	BackoffStableAfter   *time.Duration `env:"BACKOFF_STABLE_AFTER"`
	MaxReconnectAttempts *int           `env:"MAX_RECONNECT_ATTEMPTS"`
	CommandBudget        *int           `env:"COMMAND_BUDGET"`
	CommandWindow        *time.Duration `env:"COMMAND_WINDOW"`
	CommandQueueCapacity *int           `env:"COMMAND_QUEUE_CAPACITY"`
	HTTPTimeout          *time.Duration `env:"HTTP_TIMEOUT"`
	PresenceFile         *string        `env:"PRESENCE_FILE"`
	Listen               *string        `env:"LISTEN"`
	LogLevel             *string        `env:"LOG_LEVEL"`
}

// LoadEnvConfig parses the SHARDLINE_* environment variables.
func LoadEnvConfig() (EnvConfig, error) {
	var ec EnvConfig
	if err := env.ParseWithOptions(&ec, env.Options{Prefix: EnvPrefix}); err != nil {
		return ec, fmt.Errorf("parse env: %w", err)
	}
	return ec, nil
}

// ApplyEnvConfig applies environment variables to the Config struct.
// Environment overrides file values but never explicitly set flags.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	ec, err := LoadEnvConfig()
	if err != nil {
		return err
	}
	s := newConfigSetter(changed)

	setPtr(s, "token", ec.Token, &cfg.Token)
	setPtr(s, "api-url", ec.APIURL, &cfg.APIURL)
	setPtr(s, "gateway-url", ec.GatewayURL, &cfg.GatewayURL)
	setPtr(s, "shards", ec.ShardCount, &cfg.ShardCount)
	setPtr(s, "shard-from", ec.ShardFrom, &cfg.ShardFrom)
	setPtr(s, "shard-to", ec.ShardTo, &cfg.ShardTo)
	setPtr(s, "concurrency", ec.ShardConcurrency, &cfg.ShardConcurrency)
	setPtr(s, "identify-interval", ec.IdentifyInterval, &cfg.IdentifyInterval)
	setPtr(s, "intents", ec.Intents, &cfg.Intents)
	setPtr(s, "compression", ec.Compression, &cfg.Compression)
	setPtr(s, "large-threshold", ec.LargeThreshold, &cfg.LargeThreshold)
	setPtr(s, "heartbeat-jitter", ec.HeartbeatJitter, &cfg.HeartbeatJitter)
	setPtr(s, "hello-timeout", ec.HelloTimeout, &cfg.HelloTimeout)
	setPtr(s, "backoff-floor", ec.BackoffFloor, &cfg.BackoffFloor)
	setPtr(s, "backoff-cap", ec.BackoffCap, &cfg.BackoffCap)
	setPtr(s, "backoff-stable", ec.BackoffStableAfter, &cfg.BackoffStableAfter)
	setPtr(s, "max-reconnects", ec.MaxReconnectAttempts, &cfg.MaxReconnectAttempts)
	setPtr(s, "command-budget", ec.CommandBudget, &cfg.CommandBudget)
	setPtr(s, "command-window", ec.CommandWindow, &cfg.CommandWindow)
	setPtr(s, "command-queue", ec.CommandQueueCapacity, &cfg.CommandQueueCapacity)
	setPtr(s, "timeout", ec.HTTPTimeout, &cfg.HTTPTimeout)
	setPtr(s, "presence-file", ec.PresenceFile, &cfg.PresenceFile)
	setPtr(s, "listen", ec.Listen, &cfg.Listen)
	setPtr(s, "log-level", ec.LogLevel, &cfg.LogLevel)
	return nil
}
