package shard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bft-labs/shardline/pkg/heartbeat"
	"github.com/bft-labs/shardline/pkg/lifecycle"
	"github.com/bft-labs/shardline/pkg/log"
	"github.com/bft-labs/shardline/pkg/protocol"
	"github.com/bft-labs/shardline/pkg/transport"
)

type inbound struct {
	frame protocol.Frame
	err   error
}

// connection is the state of one transport connection. It lives for a
// single call to connect.
type connection struct {
	shard *Shard
	conn  transport.Conn

	frames     chan inbound
	hbErr      chan error
	granted    chan error
	reidentify <-chan time.Time
	readySince time.Time

	wg sync.WaitGroup
}

// connect runs one connection until it ends. It returns when the shard
// reached Ready on it (zero if never) and the cause of the end.
func (s *Shard) connect(parent context.Context, attempt int) (readySince time.Time, err error) {
	base := s.baseURL()
	url, err := protocol.ConnectURL(base, s.cfg.Compression)
	if err != nil {
		return time.Time{}, s.fail(KindConfig, err)
	}

	ctx, span := s.tracer.Start(parent, "shard.connection", trace.WithAttributes(
		attribute.Int64("shard.index", int64(s.id.Index)),
		attribute.Int64("shard.total", int64(s.id.Total)),
		attribute.Int("attempt", attempt),
		attribute.Bool("resume", s.Session().Resumable()),
	))
	s.span = span
	defer func() {
		if err != nil && parent.Err() == nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, KindOf(err).String())
		}
		span.End()
		s.span = nil
	}()

	s.logger.Debug("dialing", log.String("url", url), log.Int("attempt", attempt))
	conn, err := s.dialer.Dial(ctx, url)
	if err != nil {
		return time.Time{}, s.fail(KindTransport, err)
	}

	c := &connection{
		shard:  s,
		conn:   conn,
		frames: make(chan inbound, 16),
		hbErr:  make(chan error, 1),
	}
	return c.run(ctx)
}

func (c *connection) run(parent context.Context) (readySince time.Time, err error) {
	s := c.shard
	ctx, cancel := context.WithCancel(parent)
	dec := protocol.NewDecoder(s.cfg.Compression)
	defer func() {
		cancel()
		s.setConn(nil)
		_ = c.conn.Close(s.closeCode(parent.Err() != nil, err), "")
		c.wg.Wait()
		dec.Close()
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.read(ctx, dec)
	}()

	hello, err := c.awaitHello(ctx)
	if err != nil {
		return time.Time{}, err
	}
	s.setConn(c.conn)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.hbErr <- s.heartbeater.Run(ctx, hello.Interval(), c.heartbeat)
	}()

	if sess := s.Session(); sess.Resumable() {
		resume := protocol.Resume{Token: s.token, SessionID: sess.ID, Seq: sess.Sequence}
		if err := s.machine.Transition(lifecycle.Resuming{Resume: resume}); err != nil {
			return time.Time{}, err
		}
		if err := c.write(ctx, protocol.OpResume, resume); err != nil {
			return time.Time{}, err
		}
		s.logger.Info("resuming session", log.Int64("seq", sess.Sequence))
	} else {
		c.requestIdentify(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return c.readySince, ctx.Err()

		case in := <-c.frames:
			if in.err != nil {
				return c.readySince, in.err
			}
			if err := c.handle(ctx, in.frame); err != nil {
				return c.readySince, err
			}

		case err := <-c.hbErr:
			if ctx.Err() != nil {
				return c.readySince, ctx.Err()
			}
			if errors.Is(err, heartbeat.ErrMissedAck) {
				return c.readySince, s.fail(KindHeartbeatTimeout, err)
			}
			return c.readySince, s.fail(KindTransport, err)

		case err := <-c.granted:
			c.granted = nil
			if err != nil {
				return c.readySince, err
			}
			if err := c.identify(ctx); err != nil {
				return c.readySince, err
			}

		case <-c.reidentify:
			c.reidentify = nil
			c.requestIdentify(ctx)
		}
	}
}

// read decodes inbound messages until the connection fails.
func (c *connection) read(ctx context.Context, dec *protocol.Decoder) {
	s := c.shard
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			c.deliver(ctx, inbound{err: s.readError(err)})
			return
		}
		f, ok, err := dec.Decode(mt == transport.BinaryMessage, data)
		if err != nil {
			kind := KindProtocolViolation
			if errors.Is(err, protocol.ErrCorruptStream) {
				kind = KindTransport
			}
			c.deliver(ctx, inbound{err: s.fail(kind, err)})
			return
		}
		if !ok {
			continue
		}
		s.recorder.FrameReceived(s.id.Index, f.Op)
		if !c.deliver(ctx, inbound{frame: f}) {
			return
		}
	}
}

func (c *connection) deliver(ctx context.Context, in inbound) bool {
	select {
	case c.frames <- in:
		return true
	case <-ctx.Done():
		return false
	}
}

// readError classifies a read failure by the server's close code.
func (s *Shard) readError(err error) error {
	if code, ok := transport.CloseCode(err); ok {
		switch protocol.CloseCode(code).Action() {
		case protocol.CloseActionAuthFailure:
			return s.fail(KindAuthFailure, err)
		case protocol.CloseActionConfigFailure:
			return s.fail(KindConfig, err)
		case protocol.CloseActionReidentify:
			return s.fail(KindReconnect, fmt.Errorf("%w: %w", ErrSessionInvalidated, err))
		}
	}
	return s.fail(KindTransport, err)
}

func (c *connection) awaitHello(ctx context.Context) (protocol.Hello, error) {
	s := c.shard
	select {
	case in := <-c.frames:
		if in.err != nil {
			return protocol.Hello{}, in.err
		}
		if in.frame.Op != protocol.OpHello {
			return protocol.Hello{}, s.fail(KindTransport, fmt.Errorf("expected %s, got %s", protocol.OpHello, in.frame.Op))
		}
		var h protocol.Hello
		if err := in.frame.Unmarshal(&h); err != nil {
			return protocol.Hello{}, s.fail(KindProtocolViolation, err)
		}
		if h.HeartbeatInterval <= 0 {
			return protocol.Hello{}, s.fail(KindProtocolViolation, fmt.Errorf("%w: heartbeat interval %d", protocol.ErrMalformedFrame, h.HeartbeatInterval))
		}
		s.logger.Debug("hello", log.Duration("heartbeat_interval", h.Interval()))
		return h, nil
	case <-s.clock.After(s.cfg.HelloTimeout):
		return protocol.Hello{}, s.fail(KindTransport, ErrHelloTimeout)
	case <-ctx.Done():
		return protocol.Hello{}, ctx.Err()
	}
}

// requestIdentify asks the identify queue for a slot. The answer arrives on
// c.granted so frames keep being processed while waiting.
func (c *connection) requestIdentify(ctx context.Context) {
	ch := make(chan error, 1)
	c.granted = ch
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ch <- c.shard.queue.Request(ctx, c.shard.id)
	}()
}

func (c *connection) identify(ctx context.Context) error {
	s := c.shard
	id := protocol.Identify{
		Token:          s.token,
		Properties:     s.cfg.Properties,
		Compress:       s.cfg.Compression == protocol.CompressionPayload,
		LargeThreshold: s.cfg.LargeThreshold,
		Shard:          s.id.Array(),
		Presence:       s.cfg.Presence,
		Intents:        s.cfg.Intents,
	}
	if err := s.machine.Transition(lifecycle.Identifying{Identify: id}); err != nil {
		return err
	}
	if err := c.write(ctx, protocol.OpIdentify, id); err != nil {
		return err
	}
	s.logger.Info("identified", log.Uint64("intents", uint64(s.cfg.Intents)))
	return nil
}

func (c *connection) heartbeat(ctx context.Context) error {
	s := c.shard
	s.mu.RLock()
	seq, has := s.session.Sequence, s.session.HasSequence
	s.mu.RUnlock()
	return c.conn.WriteMessage(ctx, transport.TextMessage, protocol.Heartbeat(seq, has))
}

func (c *connection) write(ctx context.Context, op protocol.Opcode, data interface{}) error {
	b, err := protocol.Encode(op, data)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(ctx, transport.TextMessage, b); err != nil {
		return c.shard.fail(KindTransport, err)
	}
	return nil
}

func (c *connection) handle(ctx context.Context, f protocol.Frame) error {
	s := c.shard
	switch f.Op {
	case protocol.OpDispatch:
		return c.dispatch(ctx, f)
	case protocol.OpHeartbeat:
		s.heartbeater.Beat()
	case protocol.OpHeartbeatAck:
		s.heartbeater.Ack()
		s.recorder.HeartbeatLatency(s.id.Index, s.heartbeater.Latency())
	case protocol.OpReconnect:
		return s.fail(KindReconnect, ErrReconnectRequested)
	case protocol.OpInvalidSession:
		return c.invalidSession(f)
	default:
		if !f.Op.Known() {
			return s.emit(ctx, Event{
				Kind:        EventUnknown,
				Shard:       s.id,
				Op:          f.Op,
				Sequence:    f.Sequence,
				HasSequence: f.HasSequence,
				Name:        f.Event,
				Data:        f.Data,
			})
		}
		s.logger.Debug("ignoring frame", log.String("op", f.Op.String()))
	}
	return nil
}

func (c *connection) dispatch(ctx context.Context, f protocol.Frame) error {
	s := c.shard
	if f.HasSequence {
		s.mu.Lock()
		err := s.session.Advance(f.Sequence)
		s.mu.Unlock()
		if err != nil {
			return s.fail(KindProtocolViolation, err)
		}
	}
	s.recorder.DispatchReceived(s.id.Index, f.Event)

	switch f.Event {
	case protocol.EventReady:
		if p := s.Phase(); p != lifecycle.PhaseIdentifying {
			return s.fail(KindProtocolViolation, fmt.Errorf("%s while %s", f.Event, p))
		}
		var r protocol.Ready
		if err := f.Unmarshal(&r); err != nil {
			return s.fail(KindProtocolViolation, err)
		}
		s.mu.Lock()
		s.session.Start(r.SessionID, r.ResumeGatewayURL)
		s.mu.Unlock()
		c.readySince = s.clock.Now()
		if err := s.machine.Transition(lifecycle.Ready{SessionID: r.SessionID, Since: c.readySince}); err != nil {
			return s.fail(KindProtocolViolation, err)
		}
	case protocol.EventResumed:
		if p := s.Phase(); p != lifecycle.PhaseResuming {
			return s.fail(KindProtocolViolation, fmt.Errorf("%s while %s", f.Event, p))
		}
		c.readySince = s.clock.Now()
		ready := lifecycle.Ready{SessionID: s.Session().ID, Since: c.readySince, Resumed: true}
		if err := s.machine.Transition(ready); err != nil {
			return s.fail(KindProtocolViolation, err)
		}
		s.logger.Info("session resumed", log.Int64("seq", f.Sequence))
	}

	return s.emit(ctx, Event{
		Kind:        EventDispatch,
		Shard:       s.id,
		Op:          f.Op,
		Sequence:    f.Sequence,
		HasSequence: f.HasSequence,
		Name:        f.Event,
		Data:        f.Data,
	})
}

func (c *connection) invalidSession(f protocol.Frame) error {
	s := c.shard
	resumable, err := protocol.ParseInvalidSession(f)
	if err != nil {
		return s.fail(KindProtocolViolation, err)
	}
	if resumable {
		return s.fail(KindReconnect, ErrResumableInvalidSession)
	}
	if s.Phase() != lifecycle.PhaseResuming {
		return s.fail(KindReconnect, ErrSessionInvalidated)
	}

	// The resume was refused: identify afresh on the same connection.
	s.mu.Lock()
	s.session.Invalidate()
	s.mu.Unlock()
	delay := s.randomDelay(s.cfg.InvalidSessionDelayMin, s.cfg.InvalidSessionDelayMax)
	s.logger.Info("session not resumable, identifying", log.Duration("delay", delay))
	c.reidentify = s.clock.After(delay)
	return nil
}
