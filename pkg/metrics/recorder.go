package metrics

import (
	"time"

	"github.com/bft-labs/shardline/pkg/lifecycle"
	"github.com/bft-labs/shardline/pkg/protocol"
)

// Recorder receives gateway measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	FrameReceived(shard uint64, op protocol.Opcode)
	DispatchReceived(shard uint64, event string)
	PhaseChanged(shard uint64, phase lifecycle.Phase)
	Reconnect(shard uint64, reason string)
	HeartbeatLatency(shard uint64, d time.Duration)
	CommandSent(shard uint64)
	CommandRejected(shard uint64, reason string)
	QueueDepth(shard uint64, depth int)
	ShardRestarted(shard uint64)
}

// Noop discards all measurements.
type Noop struct{}

func (Noop) FrameReceived(uint64, protocol.Opcode)  {}
func (Noop) DispatchReceived(uint64, string)        {}
func (Noop) PhaseChanged(uint64, lifecycle.Phase)   {}
func (Noop) Reconnect(uint64, string)               {}
func (Noop) HeartbeatLatency(uint64, time.Duration) {}
func (Noop) CommandSent(uint64)                     {}
func (Noop) CommandRejected(uint64, string)         {}
func (Noop) QueueDepth(uint64, int)                 {}
func (Noop) ShardRestarted(uint64)                  {}
