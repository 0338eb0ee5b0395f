package shardline

import (
	"github.com/bft-labs/shardline/pkg/lifecycle"
	"github.com/bft-labs/shardline/pkg/protocol"
	"github.com/bft-labs/shardline/pkg/shard"
)

// EventHandler receives notifications about the instance and its shards.
// Methods are called synchronously and should return quickly.
type EventHandler interface {
	// OnStateChange is called on every lifecycle state change.
	OnStateChange(event StateChangeEvent)

	// OnShardStatus is called on every shard phase change.
	OnShardStatus(event ShardStatusEvent)

	// OnShardError is called when a shard stops on a fatal error.
	OnShardError(event ShardErrorEvent)
}

// StateChangeEvent describes a lifecycle state change.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// ShardStatusEvent describes a shard phase change.
type ShardStatusEvent struct {
	Shard protocol.ShardID
	Phase lifecycle.Phase
	// Err is the cause of a Reconnecting or Closed phase.
	Err error
}

// ShardErrorEvent describes a fatal shard error.
type ShardErrorEvent struct {
	Shard protocol.ShardID
	Kind  shard.Kind
	Err   error
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// implement only some methods.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnShardStatus(ShardStatusEvent) {}
func (BaseEventHandler) OnShardError(ShardErrorEvent)   {}

// eventEmitterWrapper adapts EventHandler to the lifecycle and cluster
// callbacks.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current lifecycle.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: previous,
		Current:  current,
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) onShardStatus(st shard.Status) {
	if e.handler == nil {
		return
	}
	e.handler.OnShardStatus(ShardStatusEvent{Shard: st.Shard, Phase: st.Phase, Err: st.Err})
}

func (e *eventEmitterWrapper) onShardError(id protocol.ShardID, err error) {
	if e.handler == nil {
		return
	}
	e.handler.OnShardError(ShardErrorEvent{Shard: id, Kind: shard.KindOf(err), Err: err})
}
