package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Five consecutive failures must back off 1s, 2s, 4s, 8s, then hit the
// 10s cap.
func TestReconnectDelaySequence(t *testing.T) {
	base := time.Second
	cap := 10 * time.Second

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
	}
	for i, expected := range want {
		assert.Equal(t, expected, reconnectDelay(i+1, base, cap), "attempt %d", i+1)
	}
}

func TestReconnectDelayNeverExceedsCap(t *testing.T) {
	base := time.Second
	cap := 10 * time.Second

	for attempt := 1; attempt <= 64; attempt++ {
		delay := reconnectDelay(attempt, base, cap)
		assert.LessOrEqual(t, delay, cap, "attempt %d", attempt)
		assert.Positive(t, delay, "attempt %d", attempt)
	}
}
