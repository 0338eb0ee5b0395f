// Package protocol implements the gateway wire format.
//
// Every message on the wire is an envelope carrying an opcode, an optional
// sequence number, an optional event name and an opaque payload:
//
//	{"op": 0, "s": 42, "t": "MESSAGE_CREATE", "d": {...}}
//
// [Decode] and [Encode] convert between envelopes and [Frame] values.
// Unknown opcodes and event names are never an error: they decode into a
// Frame whose Data is left untouched so callers can pass it through.
//
// A [Decoder] is bound to one connection and undoes transport compression
// before decoding. With [CompressionZlibStream] the whole connection shares a
// single zlib context, so a Decoder must never be reused across connections.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package protocol
