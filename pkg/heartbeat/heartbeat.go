package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrMissedAck is returned by Run when a beat was not acknowledged
	// before the next tick.
	ErrMissedAck = errors.New("heartbeat not acknowledged")

	// ErrInvalidInterval is returned by Run for a non-positive interval.
	ErrInvalidInterval = errors.New("invalid heartbeat interval")
)

// SendFunc writes one heartbeat frame.
type SendFunc func(ctx context.Context) error

// Option configures a Heartbeater.
type Option func(*Heartbeater)

// WithClock sets the clock used for ticks and latency.
func WithClock(c clockwork.Clock) Option {
	return func(h *Heartbeater) {
		h.clock = c
	}
}

// WithJitter delays the first beat by interval*jitter(). jitter must
// return a value in [0, 1). A nil func disables jitter.
func WithJitter(jitter func() float64) Option {
	return func(h *Heartbeater) {
		h.jitter = jitter
	}
}

// WithRandomJitter enables jitter from math/rand.
func WithRandomJitter() Option {
	return WithJitter(rand.Float64)
}

// Heartbeater tracks heartbeats of one connection at a time.
type Heartbeater struct {
	clock  clockwork.Clock
	jitter func() float64
	beat   chan struct{}

	mu       sync.Mutex
	pending  bool
	lastSent time.Time
	lastAck  time.Time
	latency  time.Duration
}

// New creates a Heartbeater. Without options it uses the real clock and
// no jitter.
func New(opts ...Option) *Heartbeater {
	h := &Heartbeater{
		clock: clockwork.NewRealClock(),
		beat:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run beats every interval until ctx is done, a send fails, or a beat goes
// unacknowledged. It never returns nil.
func (h *Heartbeater) Run(ctx context.Context, interval time.Duration, send SendFunc) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	h.mu.Lock()
	h.pending = false
	h.mu.Unlock()
	// A beat requested for a previous connection is stale.
	select {
	case <-h.beat:
	default:
	}

	first := interval
	if h.jitter != nil {
		first = time.Duration(float64(interval) * h.jitter())
	}
	timer := h.clock.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.Chan():
			h.mu.Lock()
			missed := h.pending
			h.mu.Unlock()
			if missed {
				return ErrMissedAck
			}
			if err := h.send(ctx, send); err != nil {
				return err
			}
			timer.Reset(interval)
		case <-h.beat:
			if err := h.send(ctx, send); err != nil {
				return err
			}
		}
	}
}

// send marks the beat pending before writing it, so an ack racing the
// write is never lost.
func (h *Heartbeater) send(ctx context.Context, send SendFunc) error {
	h.mu.Lock()
	h.pending = true
	h.lastSent = h.clock.Now()
	h.mu.Unlock()
	if err := send(ctx); err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	return nil
}

// Beat requests an immediate heartbeat from the running loop, as asked for
// when the server sends a Heartbeat frame. Requests made while one is
// already queued are merged.
func (h *Heartbeater) Beat() {
	select {
	case h.beat <- struct{}{}:
	default:
	}
}

// Ack records a HeartbeatAck.
func (h *Heartbeater) Ack() {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.clock.Now()
	if h.pending {
		h.latency = now.Sub(h.lastSent)
	}
	h.pending = false
	h.lastAck = now
}

// Latency returns the round trip of the last acknowledged beat, or zero if
// none has been acknowledged yet.
func (h *Heartbeater) Latency() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latency
}

// LastAck returns the time of the last HeartbeatAck.
func (h *Heartbeater) LastAck() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastAck
}

// Pending reports whether a sent beat awaits its ack.
func (h *Heartbeater) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending
}
