// Package transporttest provides an in-memory transport for tests.
//
// A Dialer hands out Conns whose server side is driven by the test: frames
// are pushed to the client with Send, frames written by the client are read
// with Recv, and a server-initiated close is simulated with CloseWith.
package transporttest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/shardline/pkg/protocol"
	"github.com/bft-labs/shardline/pkg/transport"
)

// ErrTimeout is returned by Accept and Recv when nothing arrives in time.
var ErrTimeout = errors.New("transporttest: timeout")

type message struct {
	mt   transport.MessageType
	data []byte
	err  error
}

// Conn is one fake connection.
type Conn struct {
	// URL is the address the client dialed.
	URL string

	in     chan message
	out    chan []byte
	closed chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once
	code      int
	reason    string
}

func newConn(url string) *Conn {
	return &Conn{
		URL:    url,
		in:     make(chan message, 64),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

// ReadMessage implements transport.Conn.
func (c *Conn) ReadMessage() (transport.MessageType, []byte, error) {
	select {
	case m := <-c.in:
		if m.err != nil {
			return 0, nil, m.err
		}
		return m.mt, m.data, nil
	case <-c.closed:
		return 0, nil, transport.ErrClosed
	}
}

// WriteMessage implements transport.Conn.
func (c *Conn) WriteMessage(ctx context.Context, _ transport.MessageType, data []byte) error {
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}
	select {
	case c.out <- append([]byte(nil), data...):
		return nil
	case <-c.closed:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements transport.Conn.
func (c *Conn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.code, c.reason = code, reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

// Send pushes a raw text frame to the client.
func (c *Conn) Send(frame string) {
	c.in <- message{mt: transport.TextMessage, data: []byte(frame)}
}

// SendBinary pushes a raw binary message to the client.
func (c *Conn) SendBinary(data []byte) {
	c.in <- message{mt: transport.BinaryMessage, data: data}
}

// SendFrame encodes and pushes a server frame. seq < 0 omits the sequence.
func (c *Conn) SendFrame(op protocol.Opcode, seq int64, event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	env := map[string]interface{}{"op": int(op), "d": json.RawMessage(raw)}
	if seq >= 0 {
		env["s"] = seq
	}
	if event != "" {
		env["t"] = event
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.Send(string(b))
	return nil
}

// Hello sends a Hello frame with the given interval.
func (c *Conn) Hello(interval time.Duration) error {
	return c.SendFrame(protocol.OpHello, -1, "", protocol.Hello{HeartbeatInterval: interval.Milliseconds()})
}

// Dispatch sends a dispatch frame.
func (c *Conn) Dispatch(seq int64, event string, data interface{}) error {
	return c.SendFrame(protocol.OpDispatch, seq, event, data)
}

// CloseWith simulates the server closing the connection with a close code.
func (c *Conn) CloseWith(code int, reason string) {
	c.in <- message{err: &transport.CloseError{Code: code, Reason: reason}}
}

// Fail makes the client's next read fail with err.
func (c *Conn) Fail(err error) {
	c.in <- message{err: err}
}

// Recv returns the next frame written by the client.
func (c *Conn) Recv(timeout time.Duration) (protocol.Frame, error) {
	select {
	case b := <-c.out:
		return protocol.Decode(b)
	case <-time.After(timeout):
		return protocol.Frame{}, ErrTimeout
	}
}

// RecvOp returns the next client frame with opcode op, skipping others
// such as heartbeats.
func (c *Conn) RecvOp(op protocol.Opcode, timeout time.Duration) (protocol.Frame, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return protocol.Frame{}, fmt.Errorf("%w waiting for %s", ErrTimeout, op)
		}
		f, err := c.Recv(remaining)
		if err != nil {
			return protocol.Frame{}, fmt.Errorf("%w waiting for %s", err, op)
		}
		if f.Op == op {
			return f, nil
		}
	}
}

// Closed is closed once the client closed the connection.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// CloseCode returns the code the client closed with.
func (c *Conn) CloseCode() (int, bool) {
	select {
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.code, true
	default:
		return 0, false
	}
}

// WaitClosed waits for the client to close and returns the close code.
func (c *Conn) WaitClosed(timeout time.Duration) (int, error) {
	select {
	case <-c.closed:
		code, _ := c.CloseCode()
		return code, nil
	case <-time.After(timeout):
		return 0, ErrTimeout
	}
}

// Dialer hands out fake connections.
type Dialer struct {
	conns chan *Conn

	mu       sync.Mutex
	failures []error
	dials    int
}

// NewDialer creates a Dialer.
func NewDialer() *Dialer {
	return &Dialer{conns: make(chan *Conn, 64)}
}

// FailNext makes the next len(errs) dials fail with the given errors.
func (d *Dialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, errs...)
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.dials++
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	c := newConn(url)
	select {
	case d.conns <- c:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dials returns the number of dial attempts, including failed ones.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Accept returns the next connection dialed by the client.
func (d *Dialer) Accept(timeout time.Duration) (*Conn, error) {
	select {
	case c := <-d.conns:
		return c, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}
