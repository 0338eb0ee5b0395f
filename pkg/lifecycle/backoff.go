package lifecycle

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultStableAfter is how long Ready must last before the backoff resets.
const DefaultStableAfter = 60 * time.Second

// BackoffOption configures a Backoff.
type BackoffOption func(*Backoff)

// WithBackoffClock sets the clock used by Wait.
func WithBackoffClock(c clockwork.Clock) BackoffOption {
	return func(b *Backoff) { b.clock = c }
}

// WithBackoffRand sets the jitter source. It must return values in [0, 1).
func WithBackoffRand(r func() float64) BackoffOption {
	return func(b *Backoff) { b.rand = r }
}

// WithStableAfter sets how long Ready must last to reset the backoff.
func WithStableAfter(d time.Duration) BackoffOption {
	return func(b *Backoff) { b.stableAfter = d }
}

// Backoff implements capped exponential backoff with jitter. The n-th
// consecutive delay is drawn uniformly from [floor, min(cap, floor*2^n)],
// so the first delay after a reset is exactly floor.
type Backoff struct {
	floor       time.Duration
	cap         time.Duration
	stableAfter time.Duration
	clock       clockwork.Clock
	rand        func() float64

	mu      sync.Mutex
	attempt int
}

// NewBackoff creates a backoff between floor and cap.
func NewBackoff(floor, cap time.Duration, opts ...BackoffOption) *Backoff {
	if cap < floor {
		cap = floor
	}
	b := &Backoff{
		floor:       floor,
		cap:         cap,
		stableAfter: DefaultStableAfter,
		clock:       clockwork.NewRealClock(),
		rand:        rand.Float64,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ceiling returns the upper bound of the next delay.
func (b *Backoff) Ceiling() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ceiling()
}

func (b *Backoff) ceiling() time.Duration {
	c := b.floor
	for i := 0; i < b.attempt && c < b.cap; i++ {
		c *= 2
	}
	if c > b.cap {
		c = b.cap
	}
	return c
}

// Next returns the next delay and advances the attempt counter.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.ceiling()
	d := b.floor + time.Duration(b.rand()*float64(c-b.floor))
	b.attempt++
	return d
}

// Wait sleeps for the next delay or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	d := b.Next()
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.clock.After(d):
		return nil
	}
}

// Reset returns the backoff to the floor.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// ResetIfStable resets the backoff when Ready lasted at least the stable
// threshold. It reports whether it reset.
func (b *Backoff) ResetIfStable(readyFor time.Duration) bool {
	if readyFor < b.stableAfter {
		return false
	}
	b.Reset()
	return true
}

// Attempt returns the number of delays handed out since the last reset.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
