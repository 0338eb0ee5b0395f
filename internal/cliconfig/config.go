package cliconfig

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/shardline/pkg/protocol"
	"github.com/bft-labs/shardline/pkg/shardline"
)

// DefaultIntents are the non-privileged intents used when none are set.
const DefaultIntents = protocol.IntentGuilds | protocol.IntentGuildMessages

// Config holds CLI configuration for shardline.
type Config struct {
	Token      string
	APIURL     string
	GatewayURL string

	ShardCount       uint64
	ShardFrom        uint64
	ShardTo          uint64
	ShardConcurrency uint64
	IdentifyInterval time.Duration

	Intents        uint64
	Compression    string
	LargeThreshold int

	HeartbeatJitter      bool
	HelloTimeout         time.Duration
	BackoffFloor         time.Duration
	BackoffCap           time.Duration
	BackoffStableAfter   time.Duration
	MaxReconnectAttempts int

	CommandBudget        int
	CommandWindow        time.Duration
	CommandQueueCapacity int

	HTTPTimeout  time.Duration
	PresenceFile string
	Listen       string
	LogLevel     string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Intents:              uint64(DefaultIntents),
		Compression:          protocol.CompressionZlibStream.String(),
		LargeThreshold:       50,
		IdentifyInterval:     5 * time.Second,
		HeartbeatJitter:      true,
		HelloTimeout:         20 * time.Second,
		BackoffFloor:         time.Second,
		BackoffCap:           2 * time.Minute,
		BackoffStableAfter:   time.Minute,
		CommandBudget:        118,
		CommandWindow:        time.Minute,
		CommandQueueCapacity: 64,
		HTTPTimeout:          10 * time.Second,
		LogLevel:             "info",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}
	if _, err := protocol.ParseCompression(c.Compression); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.LargeThreshold < 50 || c.LargeThreshold > 250 {
		return fmt.Errorf("large threshold must be between 50 and 250")
	}
	if c.BackoffFloor <= 0 || c.BackoffCap < c.BackoffFloor {
		return fmt.Errorf("backoff must satisfy 0 < floor <= cap")
	}
	if c.HelloTimeout <= 0 || c.CommandWindow <= 0 || c.HTTPTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.ShardTo != 0 && c.ShardTo < c.ShardFrom {
		return fmt.Errorf("shard-to must not be below shard-from")
	}
	return nil
}

// Library converts the CLI configuration into a shardline.Config. Validate
// must have succeeded.
func (c *Config) Library() shardline.Config {
	compression, _ := protocol.ParseCompression(c.Compression)
	return shardline.Config{
		Token:                c.Token,
		ShardCount:           c.ShardCount,
		ShardFrom:            c.ShardFrom,
		ShardTo:              c.ShardTo,
		ShardConcurrency:     c.ShardConcurrency,
		IdentifyInterval:     c.IdentifyInterval,
		GatewayURL:           c.GatewayURL,
		APIURL:               c.APIURL,
		HTTPTimeout:          c.HTTPTimeout,
		Intents:              protocol.Intents(c.Intents),
		Compression:          compression,
		LargeThreshold:       c.LargeThreshold,
		HeartbeatJitter:      c.HeartbeatJitter,
		HelloTimeout:         c.HelloTimeout,
		BackoffFloor:         c.BackoffFloor,
		BackoffCap:           c.BackoffCap,
		BackoffStableAfter:   c.BackoffStableAfter,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		CommandBudget:        c.CommandBudget,
		CommandWindow:        c.CommandWindow,
		CommandQueueCapacity: c.CommandQueueCapacity,
	}
}

// Masked returns a copy that is safe to log.
func (c Config) Masked() Config {
	if c.Token != "" {
		c.Token = "*****"
	}
	return c
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setUint64 sets a uint64 value if positive and flag not changed.
func (s *configSetter) setUint64(flag string, value uint64, dst *uint64) {
	if value == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setPtr sets any value from a pointer if not nil and flag not changed.
// Used for environment variables, which are typed by the env parser.
func setPtr[T any](s *configSetter, flag string, value *T, dst *T) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}
