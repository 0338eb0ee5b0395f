package shard

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bft-labs/shardline/pkg/gate"
	"github.com/bft-labs/shardline/pkg/heartbeat"
	"github.com/bft-labs/shardline/pkg/lifecycle"
	"github.com/bft-labs/shardline/pkg/log"
	"github.com/bft-labs/shardline/pkg/metrics"
	"github.com/bft-labs/shardline/pkg/protocol"
	"github.com/bft-labs/shardline/pkg/queue"
	"github.com/bft-labs/shardline/pkg/session"
	"github.com/bft-labs/shardline/pkg/transport"
)

// TracerName is the OpenTelemetry tracer used for connection spans.
const TracerName = "shardline/shard"

// Option configures a Shard.
type Option func(*Shard)

// WithDialer sets the transport dialer. Default: transport.WebsocketDialer.
func WithDialer(d transport.Dialer) Option {
	return func(s *Shard) { s.dialer = d }
}

// WithQueue sets the identify queue. Default: queue.NoOp.
func WithQueue(q queue.Queue) Option {
	return func(s *Shard) { s.queue = q }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Shard) { s.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Shard) { s.recorder = r }
}

// WithClock sets the clock for heartbeats, backoff and the command gate.
func WithClock(c clockwork.Clock) Option {
	return func(s *Shard) { s.clock = c }
}

// WithRand sets the jitter source. It must return values in [0, 1).
func WithRand(r func() float64) Option {
	return func(s *Shard) { s.rand = r }
}

// WithTracer sets the tracer for connection spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Shard) { s.tracer = t }
}

// WithEvents delivers events to ch instead of a channel owned by the shard.
// The channel is never closed by the shard.
func WithEvents(ch chan Event) Option {
	return func(s *Shard) { s.events = ch }
}

// WithStatus reports phase changes on ch.
func WithStatus(ch chan<- Status) Option {
	return func(s *Shard) { s.status = ch }
}

// Shard manages one gateway connection.
type Shard struct {
	cfg   Config
	id    protocol.ShardID
	token string

	dialer   transport.Dialer
	queue    queue.Queue
	logger   log.Logger
	recorder metrics.Recorder
	clock    clockwork.Clock
	rand     func() float64
	tracer   trace.Tracer

	machine     *lifecycle.Machine
	heartbeater *heartbeat.Heartbeater
	backoff     *lifecycle.Backoff
	gate        *gate.Gate

	events chan Event
	status chan<- Status
	done   chan struct{}

	// runCtx is only touched by the goroutine executing Run.
	runCtx context.Context
	span   trace.Span

	mu          sync.RWMutex
	session     session.Session
	conn        transport.Conn
	started     bool
	stopping    bool
	keepSession bool
	cancel      context.CancelFunc
}

// New creates a shard. Run must be called to connect.
func New(cfg Config, opts ...Option) (*Shard, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Shard{
		cfg:      cfg,
		id:       cfg.ID,
		token:    strings.TrimPrefix(strings.TrimSpace(cfg.Token), "Bot "),
		dialer:   &transport.WebsocketDialer{},
		queue:    queue.NoOp{},
		logger:   log.NoopLogger{},
		recorder: metrics.Noop{},
		clock:    clockwork.NewRealClock(),
		rand:     rand.Float64,
		tracer:   otel.Tracer(TracerName),
		done:     make(chan struct{}),
		runCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = make(chan Event, cfg.EventBuffer)
	}
	if cfg.Session != nil {
		s.session = cfg.Session.Clone()
	}

	s.logger = log.With(s.logger, log.String("shard", s.id.String()))
	s.machine = lifecycle.NewMachine(s.onPhase)

	hbOpts := []heartbeat.Option{heartbeat.WithClock(s.clock)}
	if cfg.HeartbeatJitter {
		hbOpts = append(hbOpts, heartbeat.WithJitter(s.rand))
	}
	s.heartbeater = heartbeat.New(hbOpts...)
	s.backoff = lifecycle.NewBackoff(cfg.BackoffFloor, cfg.BackoffCap,
		lifecycle.WithBackoffClock(s.clock),
		lifecycle.WithBackoffRand(s.rand),
		lifecycle.WithStableAfter(cfg.BackoffStableAfter),
	)
	s.gate = gate.New(s.writeCommand, cfg.Gate, gate.WithClock(s.clock))
	return s, nil
}

// ID returns the shard id.
func (s *Shard) ID() protocol.ShardID {
	return s.id
}

// Phase returns the current connection phase.
func (s *Shard) Phase() lifecycle.Phase {
	return s.machine.Phase()
}

// Session returns a copy of the current session.
func (s *Shard) Session() session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// Latency returns the last heartbeat round trip.
func (s *Shard) Latency() time.Duration {
	return s.heartbeater.Latency()
}

// Events returns the shard's event stream.
func (s *Shard) Events() <-chan Event {
	return s.events
}

// Done is closed when Run has returned.
func (s *Shard) Done() <-chan struct{} {
	return s.done
}

// Info is a snapshot of a shard.
type Info struct {
	ID              protocol.ShardID `json:"-"`
	Index           uint64           `json:"index"`
	Total           uint64           `json:"total"`
	Phase           string           `json:"phase"`
	SessionID       string           `json:"session_id,omitempty"`
	Sequence        int64            `json:"sequence"`
	Resumable       bool             `json:"resumable"`
	Latency         time.Duration    `json:"latency_ns"`
	PendingCommands int              `json:"pending_commands"`
}

// Info returns a snapshot of the shard.
func (s *Shard) Info() Info {
	sess := s.Session()
	return Info{
		ID:              s.id,
		Index:           s.id.Index,
		Total:           s.id.Total,
		Phase:           s.Phase().String(),
		SessionID:       sess.ID,
		Sequence:        sess.Sequence,
		Resumable:       sess.Resumable(),
		Latency:         s.Latency(),
		PendingCommands: s.gate.Pending(),
	}
}

// Command encodes and sends a command through the command gate.
func (s *Shard) Command(ctx context.Context, cmd protocol.Command) error {
	payload, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return s.Send(ctx, payload)
}

// Send sends a raw frame through the command gate. It fails with
// ErrNotConnected unless the shard is Ready, and with a KindBackpressure
// *Error when the gate queue is full.
func (s *Shard) Send(ctx context.Context, payload []byte) error {
	switch s.Phase() {
	case lifecycle.PhaseClosed:
		return ErrClosed
	case lifecycle.PhaseReady:
	default:
		return ErrNotConnected
	}

	err := s.gate.Submit(ctx, payload)
	s.recorder.QueueDepth(s.id.Index, s.gate.Pending())
	switch {
	case err == nil:
		s.recorder.CommandSent(s.id.Index)
		return nil
	case errors.Is(err, gate.ErrBackpressure):
		s.recorder.CommandRejected(s.id.Index, KindBackpressure.String())
		return s.fail(KindBackpressure, err)
	case errors.Is(err, gate.ErrClosed):
		return ErrClosed
	default:
		s.recorder.CommandRejected(s.id.Index, KindOf(err).String())
		return err
	}
}

func (s *Shard) writeCommand(ctx context.Context, payload []byte) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil || s.Phase() != lifecycle.PhaseReady {
		return ErrNotConnected
	}
	return conn.WriteMessage(ctx, transport.TextMessage, payload)
}

// Shutdown closes the connection with a normal close and discards the
// session. It waits for Run to return.
func (s *Shard) Shutdown() {
	s.shutdown(false)
}

// ShutdownResumable closes the connection so that the server keeps the
// session and returns the session for a later resume.
func (s *Shard) ShutdownResumable() (session.Session, bool) {
	s.shutdown(true)
	sess := s.Session()
	return sess, sess.Resumable()
}

func (s *Shard) shutdown(keep bool) {
	s.mu.Lock()
	s.stopping = true
	s.keepSession = keep
	cancel, started := s.cancel, s.started
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-s.done
	}
}

// Run connects and keeps the shard connected until ctx is done, Shutdown
// is called, or a fatal error occurs. It returns nil on shutdown, a fatal
// *Error, or an error wrapping ErrMaxReconnects.
func (s *Shard) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if s.stopping {
		cancel()
	}
	s.mu.Unlock()

	s.runCtx = ctx
	defer close(s.done)
	defer cancel()
	defer s.gate.Close()

	err := s.loop(ctx)

	// A shard that gave up reconnecting keeps its session so a restart
	// can resume it.
	s.mu.Lock()
	if (err == nil && !s.keepSession) || KindOf(err).Fatal() {
		s.session.Invalidate()
	}
	s.mu.Unlock()
	return err
}

func (s *Shard) loop(ctx context.Context) error {
	failures := 0
	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			if err := s.machine.Transition(lifecycle.Connecting{Attempt: attempt, URL: s.baseURL()}); err != nil {
				return s.close(err)
			}
		}

		readySince, cause := s.connect(ctx, attempt)
		if ctx.Err() != nil {
			s.close(nil)
			return nil
		}

		if !readySince.IsZero() {
			failures = 0
			if s.backoff.ResetIfStable(s.clock.Since(readySince)) {
				s.logger.Debug("backoff reset after stable session")
			}
		}

		kind := KindOf(cause)
		if kind.Fatal() {
			s.logger.Error("shard stopped", log.Err(cause), log.String("kind", kind.String()))
			return s.close(cause)
		}

		invalidate := Invalidates(cause)
		if invalidate {
			s.mu.Lock()
			s.session.Invalidate()
			s.mu.Unlock()
		}
		s.recorder.Reconnect(s.id.Index, kind.String())
		s.logger.Warn("connection lost",
			log.Err(cause),
			log.String("kind", kind.String()),
			log.Bool("resumable", s.Session().Resumable()),
		)
		if err := s.machine.Transition(lifecycle.Reconnecting{Cause: cause, Invalidate: invalidate}); err != nil {
			return s.close(err)
		}

		failures++
		if limit := s.cfg.MaxReconnectAttempts; limit > 0 && failures > limit {
			err := fmt.Errorf("%w (%d): %w", ErrMaxReconnects, failures, cause)
			return s.close(err)
		}

		if err := s.backoff.Wait(ctx); err != nil {
			s.close(nil)
			return nil
		}
	}
}

// close moves to Closed and returns err.
func (s *Shard) close(err error) error {
	if terr := s.machine.Transition(lifecycle.Closed{Err: err}); terr != nil {
		s.logger.Warn("close transition rejected", log.Err(terr))
	}
	return err
}

// baseURL returns the endpoint for the next connection.
func (s *Shard) baseURL() string {
	sess := s.Session()
	if sess.Resumable() && sess.ResumeURL != "" {
		return sess.ResumeURL
	}
	return s.cfg.GatewayURL
}

func (s *Shard) fail(kind Kind, err error) error {
	return &Error{Kind: kind, Shard: s.id, Err: err}
}

func (s *Shard) setConn(c transport.Conn) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

// closeCode picks the close code for a connection ending with cause.
// 1000 tells the server to drop the session; 4000 keeps it resumable.
func (s *Shard) closeCode(shuttingDown bool, cause error) int {
	s.mu.RLock()
	keep := s.keepSession
	s.mu.RUnlock()
	switch {
	case shuttingDown && !keep:
		return int(protocol.CloseNormal)
	case !shuttingDown && Invalidates(cause):
		return int(protocol.CloseNormal)
	default:
		return int(protocol.CloseUnknownError)
	}
}

func (s *Shard) onPhase(prev, cur lifecycle.PhaseState) {
	var cause error
	switch p := cur.(type) {
	case lifecycle.Reconnecting:
		cause = p.Cause
	case lifecycle.Closed:
		cause = p.Err
	}

	s.logger.Info("phase transition",
		log.String("from", prev.Phase().String()),
		log.String("to", cur.Phase().String()),
	)
	s.recorder.PhaseChanged(s.id.Index, cur.Phase())
	if s.span != nil {
		s.span.AddEvent("phase " + cur.Phase().String())
	}

	ctx := s.runCtx
	if _, closed := cur.(lifecycle.Closed); closed {
		// Run's context is usually cancelled by now; the terminal phase
		// still gets a bounded chance to reach the consumer.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), ClosedDeliveryTimeout)
		defer cancel()
	}

	_ = s.emit(ctx, Event{Kind: EventPhase, Shard: s.id, Phase: cur.Phase()})
	if s.status != nil {
		st := Status{Shard: s.id, Phase: cur.Phase(), Err: cause}
		select {
		case s.status <- st:
		default:
			select {
			case s.status <- st:
			case <-ctx.Done():
			}
		}
	}
}

// emit delivers ev unless its kind is filtered out. It blocks while the
// consumer is behind and returns ctx.Err() if ctx ends first.
func (s *Shard) emit(ctx context.Context, ev Event) error {
	if !s.cfg.EventTypes.Has(ev.Kind) {
		return nil
	}
	select {
	case s.events <- ev:
		return nil
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// randomDelay returns a duration in [lo, hi].
func (s *Shard) randomDelay(lo, hi time.Duration) time.Duration {
	return lo + time.Duration(s.rand()*float64(hi-lo))
}
