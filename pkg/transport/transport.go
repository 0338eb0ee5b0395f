package transport

import (
	"context"
	"errors"
	"fmt"
)

// MessageType distinguishes text from binary messages.
type MessageType int

// Message types match the websocket opcodes.
const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
)

// Conn is one established connection. ReadMessage is called from a single
// goroutine; WriteMessage may be called concurrently.
type Conn interface {
	ReadMessage() (MessageType, []byte, error)
	WriteMessage(ctx context.Context, mt MessageType, data []byte) error
	// Close sends a close frame with code and reason, then releases the
	// connection. It unblocks a pending ReadMessage.
	Close(code int, reason string) error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// ErrClosed is returned by operations on a connection closed locally.
var ErrClosed = errors.New("connection closed")

// CloseError is returned by ReadMessage when the peer closed the
// connection with a close frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed with code %d", e.Code)
	}
	return fmt.Sprintf("connection closed with code %d: %s", e.Code, e.Reason)
}

// CloseCode extracts the peer's close code from err.
func CloseCode(err error) (int, bool) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}
