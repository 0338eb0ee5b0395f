package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrBackpressure is returned when the queue is full.
	ErrBackpressure = errors.New("command queue full")

	// ErrClosed is returned for submissions to, or waiting on, a closed gate.
	ErrClosed = errors.New("gate closed")
)

// Default budget. The server allows 120 commands per 60 seconds; two are
// left for heartbeats.
const (
	DefaultCapacity      = 118
	DefaultWindow        = 60 * time.Second
	DefaultQueueCapacity = 64
)

// SendFunc writes one payload to the connection.
type SendFunc func(ctx context.Context, payload []byte) error

// Config sets the budget and queue bound.
type Config struct {
	Capacity int
	Window   time.Duration
	// QueueCapacity bounds the queue. Zero selects DefaultQueueCapacity;
	// a negative value disables queueing so an exhausted budget rejects
	// at once.
	QueueCapacity int
}

// SetDefaults fills zero fields. It may be applied more than once.
func (c *Config) SetDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
}

// queueBound is the number of submissions that may wait.
func (c Config) queueBound() int {
	return max(c.QueueCapacity, 0)
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock sets the clock used for the budget window.
func WithClock(c clockwork.Clock) Option {
	return func(g *Gate) { g.clock = c }
}

type waiter struct {
	ctx     context.Context
	payload []byte
	done    chan error
	taken   bool
}

// Gate serializes and rate-limits commands for one shard.
type Gate struct {
	send     SendFunc
	capacity int
	window   time.Duration
	queueCap int
	clock    clockwork.Clock

	// sendMu is acquired while holding mu so sends leave in the order
	// they were admitted.
	sendMu sync.Mutex

	mu          sync.Mutex
	used        int
	windowStart time.Time
	open        bool
	queue       []*waiter
	flushing    bool
	closed      bool
	closedCh    chan struct{}
}

// New creates a Gate that sends through send.
func New(send SendFunc, cfg Config, opts ...Option) *Gate {
	cfg.SetDefaults()
	g := &Gate{
		send:     send,
		capacity: cfg.Capacity,
		window:   cfg.Window,
		queueCap: cfg.queueBound(),
		clock:    clockwork.NewRealClock(),
		closedCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit sends payload now if the budget allows and nothing is queued,
// otherwise it waits in the queue for the next window. It returns the
// result of the send.
func (g *Gate) Submit(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	now := g.clock.Now()
	g.roll(now)

	if len(g.queue) == 0 && g.used < g.capacity {
		g.take(now)
		g.sendMu.Lock()
		g.mu.Unlock()
		defer g.sendMu.Unlock()
		return g.send(ctx, payload)
	}

	if len(g.queue) >= g.queueCap {
		depth := len(g.queue)
		g.mu.Unlock()
		return fmt.Errorf("%w: %d pending", ErrBackpressure, depth)
	}

	w := &waiter{ctx: ctx, payload: payload, done: make(chan error, 1)}
	g.queue = append(g.queue, w)
	if !g.flushing {
		g.flushing = true
		go g.flush()
	}
	g.mu.Unlock()

	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
	}

	g.mu.Lock()
	if !w.taken {
		g.remove(w)
		g.mu.Unlock()
		return ctx.Err()
	}
	g.mu.Unlock()
	// Already handed to the sender; its result is authoritative.
	return <-w.done
}

// flush drains the queue as the budget allows. Only one flush runs at a time.
func (g *Gate) flush() {
	for {
		g.mu.Lock()
		if g.closed || len(g.queue) == 0 {
			g.flushing = false
			g.mu.Unlock()
			return
		}
		now := g.clock.Now()
		g.roll(now)

		if g.used >= g.capacity {
			wait := g.windowStart.Add(g.window).Sub(now)
			g.mu.Unlock()
			select {
			case <-g.clock.After(wait):
			case <-g.closedCh:
			}
			continue
		}

		w := g.queue[0]
		g.queue[0] = nil
		g.queue = g.queue[1:]
		w.taken = true
		if err := w.ctx.Err(); err != nil {
			g.mu.Unlock()
			w.done <- err
			continue
		}
		g.take(now)
		g.sendMu.Lock()
		g.mu.Unlock()

		w.done <- g.send(w.ctx, w.payload)
		g.sendMu.Unlock()
	}
}

// roll resets the budget if the window has elapsed. Callers hold mu.
func (g *Gate) roll(now time.Time) {
	if g.open && !now.Before(g.windowStart.Add(g.window)) {
		g.open = false
		g.used = 0
	}
}

// take spends one unit of budget. Callers hold mu.
func (g *Gate) take(now time.Time) {
	if !g.open {
		g.open = true
		g.windowStart = now
	}
	g.used++
}

func (g *Gate) remove(w *waiter) {
	for i, q := range g.queue {
		if q == w {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			return
		}
	}
}

// Pending returns the number of queued submissions.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Remaining returns the unspent budget of the current window.
func (g *Gate) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roll(g.clock.Now())
	return g.capacity - g.used
}

// Close fails every queued submission with ErrClosed and rejects new ones.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	close(g.closedCh)
	for _, w := range g.queue {
		w.taken = true
		w.done <- ErrClosed
	}
	g.queue = nil
}
