package cluster

import (
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/shardline/pkg/queue"
	"github.com/bft-labs/shardline/pkg/session"
	"github.com/bft-labs/shardline/pkg/shard"
)

// Defaults.
const (
	DefaultRestartFloor = time.Second
	DefaultRestartCap   = 30 * time.Second
	DefaultEventBuffer  = 1024
)

var (
	// ErrInvalidConfig is returned for a configuration that cannot run.
	ErrInvalidConfig = errors.New("invalid cluster config")

	// ErrSessionStartLimit is returned when the remaining session starts
	// do not cover the shards to start.
	ErrSessionStartLimit = errors.New("session start limit exhausted")
)

// Config configures a Cluster.
type Config struct {
	Token string

	// ShardCount is the total number of shards. Zero uses the recommended
	// count from the gateway/bot endpoint.
	ShardCount uint64

	// ShardFrom and ShardTo are the inclusive range of shard indexes run by
	// this process. A zero ShardTo means the last shard.
	ShardFrom uint64
	ShardTo   uint64

	// Concurrency is the number of identify buckets. Zero uses
	// max_concurrency from the gateway/bot endpoint.
	Concurrency uint64

	// IdentifyInterval spaces identifies within one bucket.
	IdentifyInterval time.Duration

	// GatewayURL overrides the url returned by the gateway/bot endpoint.
	GatewayURL string

	// Shard is the template for every shard. Token, ID, GatewayURL and
	// Session are set by the cluster.
	Shard shard.Config

	// PerShardEvents gives every shard its own event channel.
	PerShardEvents bool
	EventBuffer    int

	// RestartFloor and RestartCap bound the delay before a stopped shard is
	// replaced.
	RestartFloor time.Duration
	RestartCap   time.Duration

	// ResumeSessions seeds shards with sessions saved by DownResumable.
	ResumeSessions map[uint64]session.Session
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.IdentifyInterval == 0 {
		c.IdentifyInterval = queue.DefaultInterval
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.RestartFloor == 0 {
		c.RestartFloor = DefaultRestartFloor
	}
	if c.RestartCap == 0 {
		c.RestartCap = DefaultRestartCap
	}
}

// needsGateway reports whether the gateway/bot endpoint must be queried.
func (c *Config) needsGateway() bool {
	return c.ShardCount == 0 || c.Concurrency == 0 || c.GatewayURL == ""
}

// indexes returns the shard indexes to run for total shards.
func (c *Config) indexes(total uint64) ([]uint64, error) {
	to := c.ShardTo
	if to == 0 {
		to = total - 1
	}
	if c.ShardFrom > to || to >= total {
		return nil, fmt.Errorf("%w: shard range %d..%d outside 0..%d", ErrInvalidConfig, c.ShardFrom, to, total-1)
	}
	out := make([]uint64, 0, to-c.ShardFrom+1)
	for i := c.ShardFrom; i <= to; i++ {
		out = append(out, i)
	}
	return out, nil
}

// Validate checks fields that do not depend on the gateway/bot response.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidConfig)
	}
	if c.RestartCap < c.RestartFloor {
		return fmt.Errorf("%w: restart cap %s below floor %s", ErrInvalidConfig, c.RestartCap, c.RestartFloor)
	}
	if c.EventBuffer < 0 {
		return fmt.Errorf("%w: negative event buffer", ErrInvalidConfig)
	}
	return nil
}
