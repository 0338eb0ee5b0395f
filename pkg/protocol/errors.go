package protocol

import "errors"

var (
	// ErrMalformedFrame is returned when a message is not a valid envelope.
	ErrMalformedFrame = errors.New("protocol: malformed frame")

	// ErrCorruptStream is returned when compressed transport data cannot be
	// inflated. The connection that produced it must be dropped.
	ErrCorruptStream = errors.New("protocol: corrupt compressed stream")

	// ErrInvalidShard is returned when a shard index is not below its total.
	ErrInvalidShard = errors.New("protocol: invalid shard id")
)
