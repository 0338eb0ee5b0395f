package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Token                string `toml:"token"`
	APIURL               string `toml:"api_url"`
	GatewayURL           string `toml:"gateway_url"`
	ShardCount           uint64 `toml:"shard_count"`
	ShardFrom            uint64 `toml:"shard_from"`
	ShardTo              uint64 `toml:"shard_to"`
	ShardConcurrency     uint64 `toml:"shard_concurrency"`
	IdentifyInterval     string `toml:"identify_interval"`
	Intents              uint64 `toml:"intents"`
	Compression          string `toml:"compression"`
	LargeThreshold       int    `toml:"large_threshold"`
	HeartbeatJitter      *bool  `toml:"heartbeat_jitter"`
	HelloTimeout         string `toml:"hello_timeout"`
	BackoffFloor         string `toml:"backoff_floor"`
	BackoffCap           string `toml:"backoff_cap"`
	BackoffStableAfter   string `toml:"backoff_stable_after"`
	MaxReconnectAttempts int    `toml:"max_reconnect_attempts"`
	CommandBudget        int    `toml:"command_budget"`
	CommandWindow        string `toml:"command_window"`
	CommandQueueCapacity int    `toml:"command_queue_capacity"`
	HTTPTimeout          string `toml:"http_timeout"`
	PresenceFile         string `toml:"presence_file"`
	Listen               string `toml:"listen"`
	LogLevel             string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.shardline/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".shardline", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("token", fc.Token, &cfg.Token)
	s.setString("api-url", fc.APIURL, &cfg.APIURL)
	s.setString("gateway-url", fc.GatewayURL, &cfg.GatewayURL)
	s.setString("compression", fc.Compression, &cfg.Compression)
	s.setString("presence-file", fc.PresenceFile, &cfg.PresenceFile)
	s.setString("listen", fc.Listen, &cfg.Listen)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setUint64("shards", fc.ShardCount, &cfg.ShardCount)
	s.setUint64("shard-from", fc.ShardFrom, &cfg.ShardFrom)
	s.setUint64("shard-to", fc.ShardTo, &cfg.ShardTo)
	s.setUint64("concurrency", fc.ShardConcurrency, &cfg.ShardConcurrency)
	s.setUint64("intents", fc.Intents, &cfg.Intents)

	s.setInt("large-threshold", fc.LargeThreshold, &cfg.LargeThreshold)
	s.setInt("max-reconnects", fc.MaxReconnectAttempts, &cfg.MaxReconnectAttempts)
	s.setInt("command-budget", fc.CommandBudget, &cfg.CommandBudget)
	s.setInt("command-queue", fc.CommandQueueCapacity, &cfg.CommandQueueCapacity)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"identify-interval", fc.IdentifyInterval, &cfg.IdentifyInterval},
		{"hello-timeout", fc.HelloTimeout, &cfg.HelloTimeout},
		{"backoff-floor", fc.BackoffFloor, &cfg.BackoffFloor},
		{"backoff-cap", fc.BackoffCap, &cfg.BackoffCap},
		{"backoff-stable", fc.BackoffStableAfter, &cfg.BackoffStableAfter},
		{"command-window", fc.CommandWindow, &cfg.CommandWindow},
		{"timeout", fc.HTTPTimeout, &cfg.HTTPTimeout},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setBool("heartbeat-jitter", fc.HeartbeatJitter, &cfg.HeartbeatJitter)
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
