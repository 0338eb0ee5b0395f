package queue

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/shardline/pkg/protocol"
)

func shard(i uint64) protocol.ShardID { return protocol.ShardID{Index: i, Total: 4} }

func TestLocalQueue_FirstWaveIsImmediate(t *testing.T) {
	fc := clockwork.NewFakeClock()
	q := NewLocalQueue(2, 5*time.Second, WithClock(fc))
	ctx := context.Background()

	require.NoError(t, q.Request(ctx, shard(0)))
	require.NoError(t, q.Request(ctx, shard(1)))
}

func TestLocalQueue_SameBucketWaitsInterval(t *testing.T) {
	fc := clockwork.NewFakeClock()
	q := NewLocalQueue(2, 5*time.Second, WithClock(fc))
	ctx := context.Background()

	require.NoError(t, q.Request(ctx, shard(0)))

	done := make(chan error, 1)
	go func() { done <- q.Request(ctx, shard(2)) }()

	fc.BlockUntil(1)
	select {
	case <-done:
		t.Fatal("second identify in bucket 0 must wait")
	default:
	}

	fc.Advance(5 * time.Second)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("request not granted after interval")
	}
}

func TestLocalQueue_Cancel(t *testing.T) {
	fc := clockwork.NewFakeClock()
	q := NewLocalQueue(1, 5*time.Second, WithClock(fc))

	require.NoError(t, q.Request(context.Background(), shard(0)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Request(ctx, shard(1)) }()
	fc.BlockUntil(1)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestNewLocalQueue_Defaults(t *testing.T) {
	q := NewLocalQueue(0, 0)
	assert.Equal(t, uint64(1), q.Concurrency())
}

func TestNoOp(t *testing.T) {
	assert.NoError(t, NoOp{}.Request(context.Background(), shard(0)))
}
