package channel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// State describes one channel connection's lifecycle stage.
type State string

const (
	StateConnecting   State = "CONNECTING"
	StateOpen         State = "OPEN"
	StateReconnecting State = "RECONNECTING"
	// StateFailed means the retry budget is exhausted. No further automatic
	// attempts happen until the caller re-invokes Connect.
	StateFailed State = "FAILED"
	StateClosed State = "CLOSED"
)

// reconnectDelay computes the backoff before reconnect attempt n (1-based):
// min(base * 2^(n-1), cap).
func reconnectDelay(attempt int, base, cap time.Duration) time.Duration {
	delay := base << (attempt - 1)
	if delay > cap || delay <= 0 {
		return cap
	}
	return delay
}

// connection is one logical channel's websocket plus its private reconnect
// state machine. Each connection retries independently of its siblings.
type connection struct {
	id     string
	name   string
	url    string
	dialer *websocket.Dialer
	clock  clockwork.Clock
	opts   Options

	onFrame func(name string, raw []byte)
	onState func(name string, state State)

	mu       sync.Mutex
	ws       *websocket.Conn
	state    State
	attempts int
	manual   bool

	// closed when Close is called, to abort a backoff wait in progress
	done chan struct{}
}

func newConnection(name, url string, opts Options, clock clockwork.Clock, onFrame func(string, []byte), onState func(string, State)) *connection {
	return &connection{
		id:   uuid.New().String()[:8],
		name: name,
		url:  url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.DialTimeout,
		},
		clock:   clock,
		opts:    opts,
		onFrame: onFrame,
		onState: onState,
		state:   StateConnecting,
		done:    make(chan struct{}),
	}
}

// run drives the connect / read / reconnect loop until the connection is
// manually closed, fails permanently, or ctx is cancelled.
func (c *connection) run(ctx context.Context) {
	for {
		if c.isManual() || ctx.Err() != nil {
			c.setState(StateClosed)
			return
		}

		c.setState(StateConnecting)
		ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if c.isManual() || ctx.Err() != nil {
				c.setState(StateClosed)
				return
			}
			log.Warn().
				Err(err).
				Str("connection_id", c.id).
				Str("channel", c.name).
				Msg("channel dial failed")
			if !c.waitForRetry(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		// close() may have landed while the dial was in flight, before ws
		// existed to tear down. The fresh socket must not go live.
		if c.manual || ctx.Err() != nil {
			c.mu.Unlock()
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			ws.Close()
			c.setState(StateClosed)
			return
		}
		c.ws = ws
		c.attempts = 0
		c.mu.Unlock()
		c.setState(StateOpen)

		log.Info().
			Str("connection_id", c.id).
			Str("channel", c.name).
			Msg("channel connected")

		c.readLoop(ws)

		if c.isManual() || ctx.Err() != nil {
			c.setState(StateClosed)
			return
		}
		if !c.waitForRetry(ctx) {
			return
		}
	}
}

// readLoop pumps inbound frames into the shared router until the socket
// errors or closes.
func (c *connection) readLoop(ws *websocket.Conn) {
	ws.SetReadLimit(c.opts.MaxMessageSize)
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if !c.isManual() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.id).
					Str("channel", c.name).
					Msg("channel closed unexpectedly")
			}
			return
		}
		c.onFrame(c.name, raw)
	}
}

// waitForRetry consumes one retry attempt and sleeps out the backoff.
// Returns false when the budget is exhausted or the wait is aborted, in
// which case the run loop must exit.
func (c *connection) waitForRetry(ctx context.Context) bool {
	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	if attempt > c.opts.MaxAttempts {
		log.Error().
			Str("connection_id", c.id).
			Str("channel", c.name).
			Int("attempts", c.opts.MaxAttempts).
			Msg("channel reconnect attempts exhausted")
		c.setState(StateFailed)
		return false
	}

	delay := reconnectDelay(attempt, c.opts.BaseDelay, c.opts.MaxDelay)
	log.Info().
		Str("connection_id", c.id).
		Str("channel", c.name).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("scheduling channel reconnect")
	c.setState(StateReconnecting)

	timer := c.clock.NewTimer(delay)
	defer stopAndDrainTimer(timer)

	select {
	case <-timer.Chan():
		return true
	case <-c.done:
		c.setState(StateClosed)
		return false
	case <-ctx.Done():
		c.setState(StateClosed)
		return false
	}
}

// close flags a manual close before tearing down the socket so the read
// loop does not schedule a reconnect.
func (c *connection) close() {
	c.mu.Lock()
	if c.manual {
		c.mu.Unlock()
		return
	}
	c.manual = true
	ws := c.ws
	c.mu.Unlock()

	close(c.done)
	if ws != nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.Close()
	}
}

func (c *connection) isManual() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manual
}

func (c *connection) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *connection) setState(state State) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()
	if c.onState != nil {
		c.onState(c.name, state)
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent
// goroutine leaks, per the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
