package shard

import (
	"fmt"
	"runtime"
	"time"

	"github.com/bft-labs/shardline/pkg/gate"
	"github.com/bft-labs/shardline/pkg/lifecycle"
	"github.com/bft-labs/shardline/pkg/protocol"
	"github.com/bft-labs/shardline/pkg/session"
)

// Defaults for Config.
const (
	DefaultLargeThreshold         = 50
	DefaultHelloTimeout           = 20 * time.Second
	DefaultBackoffFloor           = time.Second
	DefaultBackoffCap             = 2 * time.Minute
	DefaultInvalidSessionDelayMin = time.Second
	DefaultInvalidSessionDelayMax = 5 * time.Second
	DefaultEventBuffer            = 256
)

// ClosedDeliveryTimeout bounds how long the Closed phase event and status
// wait for a slow consumer after Run's context has ended.
const ClosedDeliveryTimeout = time.Second

// Config configures a shard.
type Config struct {
	// Token authenticates the shard. A "Bot " prefix is stripped.
	Token string

	ID protocol.ShardID

	// GatewayURL is the base URL for fresh identifies. Resumes use the
	// resume URL learned from Ready.
	GatewayURL  string
	Compression protocol.Compression

	Intents        protocol.Intents
	LargeThreshold int
	Presence       *protocol.PresenceUpdate
	Properties     protocol.IdentifyProperties

	// HeartbeatJitter delays the first heartbeat by a random fraction of
	// the interval.
	HeartbeatJitter bool
	HelloTimeout    time.Duration

	BackoffFloor       time.Duration
	BackoffCap         time.Duration
	BackoffStableAfter time.Duration

	// MaxReconnectAttempts ends Run after this many consecutive failed
	// connections. Zero means unlimited.
	MaxReconnectAttempts int

	// InvalidSessionDelayMin and Max bound the random wait before
	// identifying after a non-resumable InvalidSession.
	InvalidSessionDelayMin time.Duration
	InvalidSessionDelayMax time.Duration

	Gate gate.Config

	// EventTypes selects the events delivered. Zero means AllEvents.
	EventTypes  EventKind
	EventBuffer int

	// Session resumes an earlier session instead of identifying.
	Session *session.Session
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.LargeThreshold == 0 {
		c.LargeThreshold = DefaultLargeThreshold
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = DefaultHelloTimeout
	}
	if c.BackoffFloor <= 0 {
		c.BackoffFloor = DefaultBackoffFloor
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.BackoffStableAfter <= 0 {
		c.BackoffStableAfter = lifecycle.DefaultStableAfter
	}
	if c.InvalidSessionDelayMin <= 0 {
		c.InvalidSessionDelayMin = DefaultInvalidSessionDelayMin
	}
	if c.InvalidSessionDelayMax <= 0 {
		c.InvalidSessionDelayMax = DefaultInvalidSessionDelayMax
	}
	if c.Properties.OS == "" {
		c.Properties.OS = runtime.GOOS
	}
	if c.Properties.Browser == "" {
		c.Properties.Browser = "shardline"
	}
	if c.Properties.Device == "" {
		c.Properties.Device = "shardline"
	}
	if c.EventTypes == 0 {
		c.EventTypes = AllEvents
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	c.Gate.SetDefaults()
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidConfig)
	}
	if c.GatewayURL == "" {
		return fmt.Errorf("%w: gateway url is required", ErrInvalidConfig)
	}
	if err := c.ID.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.LargeThreshold < 50 || c.LargeThreshold > 250 {
		return fmt.Errorf("%w: large threshold %d not in 50..=250", ErrInvalidConfig, c.LargeThreshold)
	}
	if c.BackoffCap < c.BackoffFloor {
		return fmt.Errorf("%w: backoff cap %s below floor %s", ErrInvalidConfig, c.BackoffCap, c.BackoffFloor)
	}
	if c.InvalidSessionDelayMax < c.InvalidSessionDelayMin {
		return fmt.Errorf("%w: invalid session delay max below min", ErrInvalidConfig)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: negative max reconnect attempts", ErrInvalidConfig)
	}
	return nil
}
