package shard

import (
	"errors"
	"fmt"

	"github.com/bft-labs/shardline/pkg/gate"
	"github.com/bft-labs/shardline/pkg/heartbeat"
	"github.com/bft-labs/shardline/pkg/protocol"
	"github.com/bft-labs/shardline/pkg/session"
	"github.com/bft-labs/shardline/pkg/transport"
)

var (
	ErrAlreadyRunning = errors.New("shard already running")
	ErrClosed         = errors.New("shard closed")
	ErrNotConnected   = errors.New("shard not ready")
	ErrInvalidConfig  = errors.New("invalid shard config")
	ErrHelloTimeout   = errors.New("no hello received")
	ErrMaxReconnects  = errors.New("too many reconnect attempts")

	// ErrReconnectRequested is the cause when the server sends Reconnect.
	ErrReconnectRequested = errors.New("server requested reconnect")
	// ErrSessionInvalidated marks causes after which the session must not
	// be resumed.
	ErrSessionInvalidated = errors.New("session invalidated")
	// ErrResumableInvalidSession is the cause for InvalidSession(true).
	ErrResumableInvalidSession = errors.New("invalid session, resumable")
)

// Kind classifies errors.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransport is a dropped or failed connection.
	KindTransport
	// KindProtocolViolation is a malformed frame or out-of-order sequence.
	KindProtocolViolation
	// KindAuthFailure is a rejected token.
	KindAuthFailure
	// KindBackpressure is a full command queue.
	KindBackpressure
	// KindHeartbeatTimeout is a missed heartbeat ack.
	KindHeartbeatTimeout
	// KindConfig is a configuration the server will never accept.
	KindConfig
	// KindReconnect is a server-requested reconnect or session invalidation.
	KindReconnect
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindAuthFailure:
		return "auth_failure"
	case KindBackpressure:
		return "backpressure"
	case KindHeartbeatTimeout:
		return "heartbeat_timeout"
	case KindConfig:
		return "config"
	case KindReconnect:
		return "reconnect"
	default:
		return "unknown"
	}
}

// Fatal reports whether the kind ends the shard instead of reconnecting.
func (k Kind) Fatal() bool {
	return k == KindAuthFailure || k == KindConfig
}

// Error is a classified shard error.
type Error struct {
	Kind  Kind
	Shard protocol.ShardID
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("shard %s: %s: %v", e.Shard, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, gate.ErrBackpressure):
		return KindBackpressure
	case errors.Is(err, heartbeat.ErrMissedAck):
		return KindHeartbeatTimeout
	case errors.Is(err, session.ErrSequenceRegression), errors.Is(err, protocol.ErrMalformedFrame):
		return KindProtocolViolation
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, protocol.ErrInvalidShard):
		return KindConfig
	}
	if code, ok := transport.CloseCode(err); ok {
		switch protocol.CloseCode(code).Action() {
		case protocol.CloseActionAuthFailure:
			return KindAuthFailure
		case protocol.CloseActionConfigFailure:
			return KindConfig
		case protocol.CloseActionReidentify:
			return KindReconnect
		}
	}
	return KindTransport
}

// Invalidates reports whether a connection ending with err must not be
// resumed.
func Invalidates(err error) bool {
	return KindOf(err) == KindProtocolViolation || errors.Is(err, ErrSessionInvalidated)
}
