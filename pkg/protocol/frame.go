package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Well-known dispatch event names.
const (
	EventReady   = "READY"
	EventResumed = "RESUMED"
)

// Frame is a decoded gateway envelope. It only lives between decode and
// dispatch.
type Frame struct {
	Op Opcode

	// Sequence is meaningful only when HasSequence is set.
	Sequence    int64
	HasSequence bool

	// Event is the dispatch event name. Empty for non-dispatch frames.
	Event string

	// Data is the raw payload, passed through untouched.
	Data json.RawMessage
}

// envelope is the JSON shape of a frame on the wire.
type envelope struct {
	Op   Opcode          `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  *int64          `json:"s,omitempty"`
	Type *string         `json:"t,omitempty"`
}

// Decode parses a single envelope.
func Decode(b []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	f := Frame{Op: env.Op, Data: env.Data}
	if env.Seq != nil {
		f.Sequence = *env.Seq
		f.HasSequence = true
	}
	if env.Type != nil {
		f.Event = *env.Type
	}
	if len(bytes.TrimSpace(f.Data)) == 0 {
		f.Data = json.RawMessage("null")
	}
	return f, nil
}

// Encode builds an outbound envelope. Outbound frames never carry a
// sequence or event name.
func Encode(op Opcode, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", op, err)
	}
	return json.Marshal(envelope{Op: op, Data: raw})
}

// Unmarshal decodes the frame payload into v.
func (f Frame) Unmarshal(v interface{}) error {
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, f.Op, err)
	}
	return nil
}

// Heartbeat encodes a heartbeat carrying the last received sequence, or
// null when no dispatch has been seen yet.
func Heartbeat(seq int64, hasSeq bool) []byte {
	var b []byte
	if hasSeq {
		b, _ = Encode(OpHeartbeat, seq)
	} else {
		b, _ = Encode(OpHeartbeat, nil)
	}
	return b
}
