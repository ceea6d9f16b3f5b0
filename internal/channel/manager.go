package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Options holds connection tuning for every channel the manager opens.
type Options struct {
	DialTimeout    time.Duration
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxAttempts    int
	MaxMessageSize int64
}

// DefaultOptions returns the production defaults: 1s backoff base, 10s cap,
// five reconnect attempts per channel.
func DefaultOptions() Options {
	return Options{
		DialTimeout:    10 * time.Second,
		BaseDelay:      time.Second,
		MaxDelay:       10 * time.Second,
		MaxAttempts:    5,
		MaxMessageSize: 4096,
	}
}

// Manager maintains one independent push connection per required logical
// channel name. All inbound frames funnel through one shared Router.
type Manager struct {
	baseURL   string // ws(s)://host
	sessionID string
	opts      Options
	clock     clockwork.Clock
	router    *Router
	onState   func(name string, state State)

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	conns  map[string]*connection
	closed bool
}

// NewManager creates a manager for one session's channels. onState may be
// nil; when set it observes every per-channel state transition (for the
// "connection lost" surface).
func NewManager(baseURL, sessionID string, opts Options, clock clockwork.Clock, router *Router, onState func(name string, state State)) *Manager {
	return &Manager{
		baseURL:   baseURL,
		sessionID: sessionID,
		opts:      opts,
		clock:     clock,
		router:    router,
		onState:   onState,
		conns:     make(map[string]*connection),
	}
}

// Start binds the manager to ctx. Connections opened afterwards stop when
// ctx is cancelled or Close is called.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	log.Info().Str("session_id", m.sessionID).Msg("channel manager started")
}

// SetChannels reconciles the open connection set against the required names:
// channels no longer required are torn down, newly required ones are opened,
// and channels still required are left undisturbed.
func (m *Manager) SetChannels(names []string) {
	required := make(map[string]struct{}, len(names))
	for _, name := range names {
		required[name] = struct{}{}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	var drop []*connection
	for name, conn := range m.conns {
		if _, ok := required[name]; !ok {
			drop = append(drop, conn)
			delete(m.conns, name)
		}
	}
	m.mu.Unlock()

	for _, conn := range drop {
		log.Info().Str("channel", conn.name).Msg("closing channel no longer required")
		conn.close()
	}
	for _, name := range names {
		m.Connect(name)
	}
}

// Connect opens the named channel. Calling it while the channel is already
// OPEN, CONNECTING or RECONNECTING is a no-op; on a FAILED channel it
// restarts the connection with a fresh retry budget.
func (m *Manager) Connect(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.ctx == nil {
		return
	}
	if existing, ok := m.conns[name]; ok {
		switch existing.currentState() {
		case StateFailed, StateClosed:
			// fall through and replace
		default:
			return
		}
	}

	url := fmt.Sprintf("%s/channels/%s/%s", m.baseURL, m.sessionID, name)
	conn := newConnection(name, url, m.opts, m.clock, m.router.Dispatch, m.onState)
	m.conns[name] = conn
	go conn.run(m.ctx)
}

// States reports the current per-channel connection states.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[string]State, len(m.conns))
	for name, conn := range m.conns {
		states[name] = conn.currentState()
	}
	return states
}

// Close tears down every channel with the manual-close flag set, so no
// reconnects are scheduled. The manager cannot be reused afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conns := make([]*connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.conns = make(map[string]*connection)
	cancel := m.cancel
	m.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
	if cancel != nil {
		cancel()
	}
	log.Info().Str("session_id", m.sessionID).Msg("channel manager closed")
}
