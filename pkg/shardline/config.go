package shardline

import (
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/shardline/pkg/protocol"
	"github.com/bft-labs/shardline/pkg/session"
)

var (
	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DefaultHTTPTimeout bounds the gateway/bot request.
const DefaultHTTPTimeout = 10 * time.Second

// Config configures a Shardline instance. Zero values fall back to the
// defaults of the shard and cluster packages.
type Config struct {
	// Token is the bot token. Required.
	Token string

	// ShardCount is the total shard count. Zero asks the API.
	ShardCount uint64
	// ShardFrom and ShardTo limit this process to a range of shards.
	ShardFrom uint64
	ShardTo   uint64
	// ShardConcurrency is the identify concurrency. Zero asks the API.
	ShardConcurrency uint64
	IdentifyInterval time.Duration

	// GatewayURL overrides the url returned by the API.
	GatewayURL  string
	APIURL      string
	HTTPTimeout time.Duration

	Intents        protocol.Intents
	Compression    protocol.Compression
	LargeThreshold int
	Presence       *protocol.PresenceUpdate

	HeartbeatJitter      bool
	HelloTimeout         time.Duration
	BackoffFloor         time.Duration
	BackoffCap           time.Duration
	BackoffStableAfter   time.Duration
	MaxReconnectAttempts int

	// CommandBudget commands may be sent per CommandWindow. Commands beyond
	// the budget wait in a queue of CommandQueueCapacity.
	CommandBudget        int
	CommandWindow        time.Duration
	CommandQueueCapacity int

	EventBuffer    int
	PerShardEvents bool

	// ResumeSessions resumes sessions saved by StopResumable.
	ResumeSessions map[uint64]session.Session
}

// SetDefaults fills zero values owned by the facade.
func (c *Config) SetDefaults() {
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidConfig)
	}
	if c.LargeThreshold != 0 && (c.LargeThreshold < 50 || c.LargeThreshold > 250) {
		return fmt.Errorf("%w: large threshold %d not in 50..=250", ErrInvalidConfig, c.LargeThreshold)
	}
	if c.BackoffFloor < 0 || c.BackoffCap < 0 {
		return fmt.Errorf("%w: negative backoff", ErrInvalidConfig)
	}
	if c.BackoffCap != 0 && c.BackoffCap < c.BackoffFloor {
		return fmt.Errorf("%w: backoff cap %s below floor %s", ErrInvalidConfig, c.BackoffCap, c.BackoffFloor)
	}
	if c.CommandBudget < 0 {
		return fmt.Errorf("%w: negative command budget", ErrInvalidConfig)
	}
	if c.ShardCount != 0 && c.ShardFrom >= c.ShardCount {
		return fmt.Errorf("%w: shard_from %d not below shard_count %d", ErrInvalidConfig, c.ShardFrom, c.ShardCount)
	}
	if c.ShardTo != 0 && c.ShardTo < c.ShardFrom {
		return fmt.Errorf("%w: shard_to %d below shard_from %d", ErrInvalidConfig, c.ShardTo, c.ShardFrom)
	}
	return nil
}
