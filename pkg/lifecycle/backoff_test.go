package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_IncreasesToCap(t *testing.T) {
	b := NewBackoff(time.Second, 10*time.Second, WithBackoffRand(func() float64 { return 0.999 }))

	var prev time.Duration
	for i := 0; i < 3; i++ {
		d := b.Next()
		assert.Greater(t, d, prev, "delay %d", i)
		prev = d
	}

	for i := 0; i < 10; i++ {
		assert.LessOrEqual(t, b.Next(), 10*time.Second)
	}
	assert.Equal(t, 10*time.Second, b.Ceiling())
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second)
	for i := 0; i < 20; i++ {
		ceiling := b.Ceiling()
		d := b.Next()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, ceiling)
	}
}

func TestBackoff_CeilingDoubles(t *testing.T) {
	b := NewBackoff(500*time.Millisecond, 4*time.Second, WithBackoffRand(func() float64 { return 0 }))
	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		4 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.Ceiling(), "attempt %d", i)
		assert.Equal(t, 500*time.Millisecond, b.Next())
	}
}

func TestBackoff_ResetIfStable(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute,
		WithStableAfter(30*time.Second),
		WithBackoffRand(func() float64 { return 0.5 }),
	)
	for i := 0; i < 3; i++ {
		b.Next()
	}
	require.Equal(t, 3, b.Attempt())

	assert.False(t, b.ResetIfStable(5*time.Second))
	assert.Equal(t, 3, b.Attempt())

	assert.True(t, b.ResetIfStable(45*time.Second))
	assert.Equal(t, time.Second, b.Next(), "first delay after reset is the floor")
}

func TestBackoff_WaitUsesClock(t *testing.T) {
	fc := clockwork.NewFakeClock()
	b := NewBackoff(time.Second, time.Minute,
		WithBackoffClock(fc),
		WithBackoffRand(func() float64 { return 0 }),
	)

	done := make(chan error, 1)
	go func() { done <- b.Wait(context.Background()) }()

	fc.BlockUntil(1)
	fc.Advance(time.Second)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the delay elapsed")
	}
}

func TestBackoff_WaitCancelled(t *testing.T) {
	b := NewBackoff(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.Canceled)
}
