// Package phaseclock implements the local phase countdown. The clock is a
// trigger only: it never mutates session state, it just signals expiry once
// per phase so the dispatcher can request a phase advance. The server's
// confirming push is the sole authority on what phase follows.
package phaseclock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock counts a phase down from (phaseStartTime, phaseDurationSeconds) on
// a one second cadence.
type Clock struct {
	clock    clockwork.Clock
	onExpire func()

	mu       sync.Mutex
	start    time.Time
	duration int
	fired    bool
	armed    bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a stopped clock. onExpire fires exactly once per phase, from
// the ticking goroutine.
func New(clock clockwork.Clock, onExpire func()) *Clock {
	return &Clock{
		clock:    clock,
		onExpire: onExpire,
		stopCh:   make(chan struct{}),
	}
}

// Start begins ticking until ctx is cancelled or Stop is called.
func (c *Clock) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Clock) run(ctx context.Context) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.Chan():
			c.evaluate()
		}
	}
}

// Reset arms the clock for a new phase and clears the fired flag. Called on
// every phase change, including replacement of a phase that never expired.
func (c *Clock) Reset(start time.Time, durationSeconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = start
	c.duration = durationSeconds
	c.fired = false
	c.armed = true
}

// Remaining returns the seconds left in the current phase:
// max(0, duration - floor(elapsed)).
func (c *Clock) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

func (c *Clock) remainingLocked() int {
	if !c.armed {
		return 0
	}
	elapsed := int(c.clock.Now().Sub(c.start) / time.Second)
	remaining := c.duration - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// evaluate fires the expiry callback on the first tick that reaches zero.
// Ticks keep arriving after expiry while the server's confirming push is in
// flight; the fired flag keeps those from re-triggering.
func (c *Clock) evaluate() {
	c.mu.Lock()
	if !c.armed || c.fired || c.remainingLocked() > 0 {
		c.mu.Unlock()
		return
	}
	c.fired = true
	duration := c.duration
	c.mu.Unlock()

	log.Debug().Int("phase_duration_sec", duration).Msg("phase countdown expired")
	if c.onExpire != nil {
		c.onExpire()
	}
}

// Stop tears the clock down. Safe to call more than once; no timers are
// left dangling.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}
