package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/bft-labs/shardline/pkg/protocol"
)

// DefaultInterval is the identify spacing within one bucket.
const DefaultInterval = 5 * time.Second

// Queue grants permission to identify.
type Queue interface {
	// Request blocks until shard may send Identify or ctx is done.
	Request(ctx context.Context, shard protocol.ShardID) error
}

// NoOp grants every request immediately.
type NoOp struct{}

// Request implements Queue.
func (NoOp) Request(ctx context.Context, _ protocol.ShardID) error {
	return ctx.Err()
}

// Option configures a LocalQueue.
type Option func(*LocalQueue)

// WithClock sets the clock used for delays.
func WithClock(c clockwork.Clock) Option {
	return func(q *LocalQueue) { q.clock = c }
}

// LocalQueue rate-limits identifies per bucket in one process.
type LocalQueue struct {
	clock   clockwork.Clock
	buckets []*rate.Limiter
}

// NewLocalQueue creates a queue with concurrency buckets, each allowing one
// identify per interval.
func NewLocalQueue(concurrency uint64, interval time.Duration, opts ...Option) *LocalQueue {
	if concurrency == 0 {
		concurrency = 1
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	q := &LocalQueue{
		clock:   clockwork.NewRealClock(),
		buckets: make([]*rate.Limiter, concurrency),
	}
	for i := range q.buckets {
		q.buckets[i] = rate.NewLimiter(rate.Every(interval), 1)
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Concurrency returns the number of buckets.
func (q *LocalQueue) Concurrency() uint64 {
	return uint64(len(q.buckets))
}

// Request implements Queue.
func (q *LocalQueue) Request(ctx context.Context, shard protocol.ShardID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lim := q.buckets[shard.Bucket(q.Concurrency())]
	now := q.clock.Now()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("identify queue: reservation for shard %s refused", shard)
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		r.CancelAt(q.clock.Now())
		return ctx.Err()
	case <-q.clock.After(delay):
		return nil
	}
}
