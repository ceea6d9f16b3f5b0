package channel

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/danpark-dev/mafiasync/internal/game"
	"github.com/danpark-dev/mafiasync/internal/game/events"
)

// dedupWindow bounds how many recently seen message ids the router
// remembers for duplicate suppression.
const dedupWindow = 256

// Handlers receives decoded push payloads. All connections share one
// Router, so cross-channel duplicates of the same server message collapse
// into a single delivery.
type Handlers struct {
	OnPhaseChange    func(game.NextPhase)
	OnPlayerUpdate   func(game.Participant)
	OnPlayersRemoved func(events.PlayersRemovedPayload)
	OnChat           func(game.ChatMessage)
	OnVoteUpdate     func(events.VoteUpdatePayload)
	OnSessionEnded   func(events.SessionEndedPayload)
}

// Router decodes raw frames into typed payloads and dispatches them. A
// malformed frame is isolated to that frame: it is logged and dropped,
// never propagated.
type Router struct {
	handlers Handlers

	mu        sync.Mutex
	seen      map[string]struct{}
	seenOrder []string
}

// NewRouter creates a router with the given payload handlers. Nil handlers
// are allowed; their event types are dropped.
func NewRouter(handlers Handlers) *Router {
	return &Router{
		handlers: handlers,
		seen:     make(map[string]struct{}, dedupWindow),
	}
}

// Dispatch routes one raw frame received on channelName.
func (r *Router) Dispatch(channelName string, raw []byte) {
	var env events.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn().
			Err(err).
			Str("channel", channelName).
			Msg("dropping malformed push frame")
		return
	}

	if env.ID != "" && r.alreadySeen(env.ID) {
		log.Debug().
			Str("channel", channelName).
			Str("message_id", env.ID).
			Str("event_type", string(env.Type)).
			Msg("dropping duplicate push message")
		return
	}

	payload, err := events.ParsePayload(&env)
	if err != nil {
		log.Warn().
			Err(err).
			Str("channel", channelName).
			Str("event_type", string(env.Type)).
			Msg("dropping push message with malformed payload")
		return
	}
	if payload == nil {
		log.Debug().
			Str("channel", channelName).
			Str("event_type", string(env.Type)).
			Msg("dropping push message of unknown type")
		return
	}

	switch p := payload.(type) {
	case game.NextPhase:
		if r.handlers.OnPhaseChange != nil {
			r.handlers.OnPhaseChange(p)
		}
	case game.Participant:
		if r.handlers.OnPlayerUpdate != nil {
			r.handlers.OnPlayerUpdate(p)
		}
	case events.PlayersRemovedPayload:
		if r.handlers.OnPlayersRemoved != nil {
			r.handlers.OnPlayersRemoved(p)
		}
	case game.ChatMessage:
		if r.handlers.OnChat != nil {
			r.handlers.OnChat(p)
		}
	case events.VoteUpdatePayload:
		if r.handlers.OnVoteUpdate != nil {
			r.handlers.OnVoteUpdate(p)
		}
	case events.SessionEndedPayload:
		if r.handlers.OnSessionEnded != nil {
			r.handlers.OnSessionEnded(p)
		}
	}
}

// alreadySeen records id and reports whether it was seen before. The window
// is bounded FIFO so the map cannot grow without limit over a long session.
func (r *Router) alreadySeen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	r.seenOrder = append(r.seenOrder, id)
	if len(r.seenOrder) > dedupWindow {
		oldest := r.seenOrder[0]
		r.seenOrder = r.seenOrder[1:]
		delete(r.seen, oldest)
	}
	return false
}
