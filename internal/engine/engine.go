// Package engine wires the synchronization core together: one engine per
// active session owns the reconciler, the phase clock, the channel manager
// and the action dispatcher, and exposes the surface the UI renders from.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/danpark-dev/mafiasync/internal/channel"
	"github.com/danpark-dev/mafiasync/internal/config"
	"github.com/danpark-dev/mafiasync/internal/dispatch"
	"github.com/danpark-dev/mafiasync/internal/game"
	"github.com/danpark-dev/mafiasync/internal/game/events"
	"github.com/danpark-dev/mafiasync/internal/gameclient"
	"github.com/danpark-dev/mafiasync/internal/notes"
	"github.com/danpark-dev/mafiasync/internal/phaseclock"
	"github.com/danpark-dev/mafiasync/internal/reconcile"
)

// ErrNoteLocked means the targeted slot holds an investigation result,
// which cannot be edited locally.
var ErrNoteLocked = errors.New("investigation results are locked")

// Callbacks let the UI subscribe to engine-side changes. All callbacks may
// be nil and fire from engine goroutines.
type Callbacks struct {
	OnPhaseChange     func(game.Session)
	OnRosterChange    func()
	OnChat            func(game.ChatMessage)
	OnEvent           func(reconcile.Event)
	OnEnded           func(winnerTeam string)
	OnConnectionState func(channelName string, state channel.State)
}

// Engine is the client-side mirror of one game session.
type Engine struct {
	cfg       *config.Config
	client    *gameclient.Client
	store     notes.Store
	sessionID string
	localID   string
	clock     clockwork.Clock
	callbacks Callbacks

	reconciler *reconcile.Reconciler
	phaseClock *phaseclock.Clock
	dispatcher *dispatch.Dispatcher
	manager    *channel.Manager

	mu       sync.RWMutex
	role     game.Role
	alive    bool
	chat     []game.ChatMessage
	chatSeen map[string]struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New assembles an engine for one session. Nothing runs until Start.
func New(cfg *config.Config, client *gameclient.Client, store notes.Store, sessionID, localID string, clock clockwork.Clock, callbacks Callbacks) *Engine {
	e := &Engine{
		cfg:       cfg,
		client:    client,
		store:     store,
		sessionID: sessionID,
		localID:   localID,
		clock:     clock,
		callbacks: callbacks,
		alive:     true,
		chatSeen:  make(map[string]struct{}),
	}

	e.reconciler = reconcile.New(localID, clock, reconcile.Callbacks{
		OnPhaseChange:  e.handlePhaseChanged,
		OnRosterChange: func() { e.invoke(callbacks.OnRosterChange) },
		OnEvent: func(ev reconcile.Event) {
			if callbacks.OnEvent != nil {
				callbacks.OnEvent(ev)
			}
		},
		OnLocalDeath: e.handleLocalDeath,
		OnEnded:      e.handleEnded,
	})

	e.phaseClock = phaseclock.New(clock, e.handleClockExpired)
	e.dispatcher = dispatch.New(client, e.reconciler, sessionID, localID, e.localStatus)

	router := channel.NewRouter(channel.Handlers{
		OnPhaseChange: func(next game.NextPhase) {
			e.reconciler.ApplyPhaseChange(next)
		},
		OnPlayerUpdate: func(p game.Participant) {
			e.reconciler.ApplyPlayerUpdate(p)
		},
		OnPlayersRemoved: func(payload events.PlayersRemovedPayload) {
			e.reconciler.ApplyPlayersRemoved(payload.ParticipantIDs)
		},
		OnChat: e.handleChatPushed,
		OnVoteUpdate: func(events.VoteUpdatePayload) {
			e.refreshVoteTally()
		},
		OnSessionEnded: func(payload events.SessionEndedPayload) {
			e.reconciler.ApplySessionEnded(payload.WinnerTeam, payload.FinishedAt)
		},
	})
	e.manager = channel.NewManager(cfg.Server.WebsocketURL, sessionID, cfg.ChannelOptions(), clock, router, func(name string, state channel.State) {
		if callbacks.OnConnectionState != nil {
			callbacks.OnConnectionState(name, state)
		}
	})

	return e
}

// Start performs the initial load (session state, own role, roster fetched
// concurrently, plus the tally when the phase is VOTE), then brings up the
// countdown and the push channels.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	var (
		wg      sync.WaitGroup
		session *game.Session
		role    *game.RoleInfo
		roster  []game.Participant
		errs    [3]error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		session, errs[0] = e.client.FetchSessionState(e.ctx, e.sessionID)
	}()
	go func() {
		defer wg.Done()
		role, errs[1] = e.client.FetchRole(e.ctx, e.sessionID, e.localID)
	}()
	go func() {
		defer wg.Done()
		roster, errs[2] = e.client.FetchRoster(e.ctx, e.sessionID)
	}()
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("failed to load initial session state: %w", err)
		}
	}

	e.mu.Lock()
	e.role = role.Role
	e.alive = role.IsAlive
	e.mu.Unlock()

	session.SessionID = e.sessionID
	e.reconciler.Init(*session, roster)
	if err := e.store.Set(e.sessionID, "session_id", e.sessionID); err != nil {
		log.Warn().Err(err).Msg("failed to persist session id")
	}

	e.phaseClock.Reset(session.PhaseStartTime, session.PhaseDurationSeconds)
	e.phaseClock.Start(e.ctx)

	e.manager.Start(e.ctx)
	e.manager.SetChannels(channel.RequiredChannels(role.Role, role.IsAlive))

	if session.CurrentPhase == game.PhaseVote {
		e.refreshVoteTally()
	}
	if role.Role == game.RoleInvestigator {
		go e.loadInvestigations()
	}
	go e.loadChatHistory()

	log.Info().
		Str("session_id", e.sessionID).
		Str("phase", string(session.CurrentPhase)).
		Int("day", session.DayCount).
		Msg("session engine started")
	return nil
}

// Close tears the session view down: the countdown stops, reconnect timers
// die and every channel is closed with the manual flag set.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.phaseClock.Stop()
		e.manager.Close()
		if e.cancel != nil {
			e.cancel()
		}
		log.Info().Str("session_id", e.sessionID).Msg("session engine closed")
	})
}

// localStatus reports the local participant's role and vitality to the
// dispatcher.
func (e *Engine) localStatus() (game.Role, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.role, e.alive
}

// handleClockExpired fires when the local countdown reaches zero: exactly
// one phase advance request per phase. The server's push is what actually
// moves the session forward.
func (e *Engine) handleClockExpired() {
	go func() {
		if err := e.dispatcher.RequestPhaseAdvance(e.ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, dispatch.ErrSessionOver) {
				return
			}
			log.Warn().Err(err).Msg("phase advance request failed")
		}
	}()
}

// handlePhaseChanged reacts to every accepted phase transition, regardless
// of whether a push or the dispatcher's own response carried it.
func (e *Engine) handlePhaseChanged(session game.Session) {
	e.phaseClock.Reset(session.PhaseStartTime, session.PhaseDurationSeconds)
	if session.CurrentPhase == game.PhaseVote {
		e.refreshVoteTally()
	}
	if e.callbacks.OnPhaseChange != nil {
		e.callbacks.OnPhaseChange(session)
	}
}

// handleLocalDeath re-derives what a dead local participant may see and
// hear: role info is re-fetched, the channel set gains the post-mortem
// channel and loses the faction one, and chat history for the new scope is
// loaded.
func (e *Engine) handleLocalDeath() {
	e.mu.Lock()
	e.alive = false
	e.mu.Unlock()

	go func() {
		if info, err := e.client.FetchRole(e.ctx, e.sessionID, e.localID); err == nil {
			e.mu.Lock()
			e.role = info.Role
			e.alive = info.IsAlive
			e.mu.Unlock()
		} else if e.ctx.Err() == nil {
			log.Warn().Err(err).Msg("failed to refresh role after death")
		}

		role, alive := e.localStatus()
		e.manager.SetChannels(channel.RequiredChannels(role, alive))
		e.loadChatHistory()
	}()
}

func (e *Engine) handleEnded(winnerTeam string) {
	e.phaseClock.Stop()
	if e.callbacks.OnEnded != nil {
		e.callbacks.OnEnded(winnerTeam)
	}
}

// handleChatPushed appends a pushed chat line, deduplicating against
// history fetches that may overlap after a reconnect.
func (e *Engine) handleChatPushed(msg game.ChatMessage) {
	if !e.appendChat(msg) {
		return
	}
	if e.callbacks.OnChat != nil {
		e.callbacks.OnChat(msg)
	}
}

func (e *Engine) appendChat(msg game.ChatMessage) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if msg.ID != "" {
		if _, seen := e.chatSeen[msg.ID]; seen {
			return false
		}
		e.chatSeen[msg.ID] = struct{}{}
	}
	e.chat = append(e.chat, msg)
	return true
}

// refreshVoteTally pulls the authoritative tally for the current day. The
// day count is captured before the request so a result that raced a phase
// change is rejected by the reconciler instead of clobbering a newer day.
func (e *Engine) refreshVoteTally() {
	day := e.reconciler.Session().DayCount
	go func() {
		tally, err := e.client.FetchVoteTally(e.ctx, e.sessionID, day)
		if err != nil {
			if e.ctx.Err() == nil {
				log.Warn().Err(err).Int("day", day).Msg("failed to fetch vote tally")
			}
			return
		}
		e.reconciler.ApplyVoteTally(tally)
	}()
}

func (e *Engine) loadInvestigations() {
	records, err := e.client.FetchInvestigationResults(e.ctx, e.sessionID, e.localID)
	if err != nil {
		if e.ctx.Err() == nil {
			log.Warn().Err(err).Msg("failed to load investigation results")
		}
		return
	}
	for _, rec := range records {
		e.reconciler.RecordInvestigation(rec)
	}
}

// loadChatHistory fetches history for the currently permitted scope.
func (e *Engine) loadChatHistory() {
	perm := e.Permission()
	if !perm.CanChat {
		return
	}
	messages, err := e.client.FetchChatHistory(e.ctx, e.sessionID, perm.Channel, e.localID)
	if err != nil {
		if e.ctx.Err() == nil {
			log.Warn().Err(err).Str("channel", string(perm.Channel)).Msg("failed to load chat history")
		}
		return
	}
	for _, msg := range messages {
		e.appendChat(msg)
	}
	if len(messages) > 0 && e.callbacks.OnRosterChange != nil {
		e.invoke(e.callbacks.OnRosterChange)
	}
}

func (e *Engine) invoke(fn func()) {
	if fn != nil {
		fn()
	}
}
