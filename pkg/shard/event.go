package shard

import (
	"encoding/json"
	"strings"

	"github.com/bft-labs/shardline/pkg/lifecycle"
	"github.com/bft-labs/shardline/pkg/protocol"
)

// EventKind is the kind of an Event. Kinds are bit flags so a set of
// kinds can be used as a filter.
type EventKind uint8

const (
	// EventDispatch is a dispatched server event.
	EventDispatch EventKind = 1 << iota
	// EventUnknown is a frame with an opcode this package does not know,
	// passed through untouched.
	EventUnknown
	// EventPhase is a connection phase change.
	EventPhase

	// AllEvents selects every kind.
	AllEvents = EventDispatch | EventUnknown | EventPhase
)

// Has reports whether all kinds in other are set.
func (k EventKind) Has(other EventKind) bool {
	return k&other == other
}

// String returns a human-readable representation of the kind set.
func (k EventKind) String() string {
	var parts []string
	if k.Has(EventDispatch) {
		parts = append(parts, "dispatch")
	}
	if k.Has(EventUnknown) {
		parts = append(parts, "unknown")
	}
	if k.Has(EventPhase) {
		parts = append(parts, "phase")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Event is one item of a shard's event stream.
type Event struct {
	Kind  EventKind
	Shard protocol.ShardID

	// Op, Sequence, Name and Data are set for dispatch and unknown events.
	Op          protocol.Opcode
	Sequence    int64
	HasSequence bool
	Name        string
	Data        json.RawMessage

	// Phase is set for phase events.
	Phase lifecycle.Phase
}

// Status reports a shard's phase to its coordinator.
type Status struct {
	Shard protocol.ShardID
	Phase lifecycle.Phase
	// Err is the cause for Reconnecting and Closed, nil otherwise.
	Err error
}
