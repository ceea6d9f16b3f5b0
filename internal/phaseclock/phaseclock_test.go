package phaseclock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemaining(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, nil)

	c.Reset(fc.Now(), 90)
	assert.Equal(t, 90, c.Remaining())

	fc.Advance(30 * time.Second)
	assert.Equal(t, 60, c.Remaining())

	fc.Advance(59 * time.Second)
	assert.Equal(t, 1, c.Remaining())

	// never negative, no matter how late the evaluation happens
	fc.Advance(5 * time.Minute)
	assert.Equal(t, 0, c.Remaining())
}

func TestRemainingBeforeReset(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, nil)
	assert.Equal(t, 0, c.Remaining())
}

func TestFiresExactlyOncePerPhase(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var fired atomic.Int32
	c := New(fc, func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Reset(fc.Now(), 3)
	c.Start(ctx)
	fc.BlockUntil(1) // ticker registered

	for i := 0; i < 3; i++ {
		fc.Advance(time.Second)
	}
	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, time.Second, time.Millisecond)

	// ticks keep coming while the confirming push is in flight; the
	// callback must not fire again
	for i := 0; i < 5; i++ {
		fc.Advance(time.Second)
	}
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())

	c.Stop()
}

func TestResetRearmsForNewPhase(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var fired atomic.Int32
	c := New(fc, func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Reset(fc.Now(), 2)
	c.Start(ctx)
	fc.BlockUntil(1)

	fc.Advance(time.Second)
	fc.Advance(time.Second)
	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, time.Second, time.Millisecond)

	// new phase: the fired flag clears and the countdown runs fresh
	c.Reset(fc.Now(), 2)
	assert.Equal(t, 2, c.Remaining())

	fc.Advance(time.Second)
	fc.Advance(time.Second)
	require.Eventually(t, func() bool {
		return fired.Load() == 2
	}, time.Second, time.Millisecond)

	c.Stop()
}

// A fresh phase-change push arriving before expiry replaces the countdown
// without firing for the old phase.
func TestResetBeforeExpiry(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var fired atomic.Int32
	c := New(fc, func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Reset(fc.Now(), 10)
	c.Start(ctx)
	fc.BlockUntil(1)

	fc.Advance(5 * time.Second)
	c.Reset(fc.Now(), 10)
	fc.Advance(5 * time.Second)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 5, c.Remaining())

	c.Stop()
}

func TestStopIsIdempotentAndHaltsTicking(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var fired atomic.Int32
	c := New(fc, func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Reset(fc.Now(), 1)
	c.Start(ctx)
	fc.BlockUntil(1)

	c.Stop()
	c.Stop()
}
