package events

import (
	"encoding/json"
	"time"

	"github.com/danpark-dev/mafiasync/internal/game"
)

// Envelope is the wire frame for every push message, delivered over one
// websocket per logical channel at /channels/{sessionId}/{channelName}.
type Envelope struct {
	ID        string          `json:"id,omitempty"` // server-assigned message UUID, used for dedup
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType discriminates push payloads.
type EventType string

const (
	EventTypePhaseChange    EventType = "PHASE_CHANGE"
	EventTypePlayerUpdate   EventType = "PLAYER_UPDATE"
	EventTypePlayersRemoved EventType = "PLAYER_REMOVED"
	EventTypeChat           EventType = "CHAT"
	EventTypeVoteUpdate     EventType = "VOTE_UPDATE"
	EventTypeSessionEnded   EventType = "SESSION_ENDED"
)

// PlayersRemovedPayload is a batch of participant ids to mark dead.
type PlayersRemovedPayload struct {
	ParticipantIDs []string `json:"participantIds"`
}

// VoteUpdatePayload signals that the tally for a day changed. The payload
// is deliberately minimal: the client re-fetches the authoritative tally
// rather than trusting a partial push.
type VoteUpdatePayload struct {
	DayCount int `json:"dayCount"`
}

// SessionEndedPayload marks the session terminal.
type SessionEndedPayload struct {
	WinnerTeam string    `json:"winnerTeam"`
	FinishedAt time.Time `json:"finishedAt"`
}

// ParsePayload decodes an envelope's data into the payload struct for its
// type. Unknown types return (nil, nil) so the router can drop them.
func ParsePayload(env *Envelope) (interface{}, error) {
	switch env.Type {
	case EventTypePhaseChange:
		var payload game.NextPhase
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypePlayerUpdate:
		var payload game.Participant
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypePlayersRemoved:
		var payload PlayersRemovedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeChat:
		var payload game.ChatMessage
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeVoteUpdate:
		var payload VoteUpdatePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeSessionEnded:
		var payload SessionEndedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // unknown event type
	}
}
