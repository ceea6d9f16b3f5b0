package engine

import (
	"context"

	"github.com/danpark-dev/mafiasync/internal/channel"
	"github.com/danpark-dev/mafiasync/internal/dispatch"
	"github.com/danpark-dev/mafiasync/internal/game"
	"github.com/danpark-dev/mafiasync/internal/reconcile"
)

// Session returns the current session view.
func (e *Engine) Session() game.Session {
	return e.reconciler.Session()
}

// Roster returns the participants in seat order with vote counts.
func (e *Engine) Roster() []reconcile.RosterEntry {
	return e.reconciler.Roster()
}

// Permission resolves the local participant's current chat scope.
func (e *Engine) Permission() game.Permission {
	role, alive := e.localStatus()
	return game.ResolvePermission(role, alive, e.reconciler.Session().CurrentPhase)
}

// RemainingSeconds returns the local countdown value for the current phase.
func (e *Engine) RemainingSeconds() int {
	return e.phaseClock.Remaining()
}

// PendingAction returns the action outstanding this phase, if any.
func (e *Engine) PendingAction() *game.PendingAction {
	return e.reconciler.PendingAction()
}

// Events returns the session feed.
func (e *Engine) Events() []reconcile.Event {
	return e.reconciler.Events()
}

// Investigations returns the local investigator's accumulated results.
func (e *Engine) Investigations() []game.InvestigationRecord {
	return e.reconciler.Investigations()
}

// VoteTally returns the last accepted authoritative tally, or nil.
func (e *Engine) VoteTally() *game.VoteTally {
	return e.reconciler.VoteTally()
}

// ChatHistory returns the accumulated chat log.
func (e *Engine) ChatHistory() []game.ChatMessage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]game.ChatMessage, len(e.chat))
	copy(out, e.chat)
	return out
}

// ConnectionStates reports per-channel connection health, for the
// "connection lost" surface.
func (e *Engine) ConnectionStates() map[string]channel.State {
	return e.manager.States()
}

// SubmitAction forwards a user intent through the dispatcher.
func (e *Engine) SubmitAction(ctx context.Context, intent dispatch.Intent) error {
	return e.dispatcher.Submit(ctx, intent)
}

// SendChat sends a chat line into the permitted scope and reflects it in
// the local log immediately.
func (e *Engine) SendChat(ctx context.Context, text string) (*game.ChatMessage, error) {
	msg, err := e.dispatcher.Chat(ctx, text)
	if err != nil {
		return nil, err
	}
	e.handleChatPushed(*msg)
	return msg, nil
}

// Note reads the local user's private note for a participant.
func (e *Engine) Note(participantID string) string {
	value, _ := e.store.Get(e.sessionID, "note:"+participantID)
	return value
}

// SaveNote writes a private note for a participant. A slot holding an
// investigation result is locked and cannot be annotated over.
func (e *Engine) SaveNote(participantID, text string) error {
	for _, rec := range e.reconciler.Investigations() {
		if rec.TargetID == participantID {
			return ErrNoteLocked
		}
	}
	return e.store.Set(e.sessionID, "note:"+participantID, text)
}
