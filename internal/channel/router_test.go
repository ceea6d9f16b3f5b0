package channel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danpark-dev/mafiasync/internal/game"
	"github.com/danpark-dev/mafiasync/internal/game/events"
)

func TestRouterDispatchesByType(t *testing.T) {
	var phases []game.NextPhase
	var updates []game.Participant
	var chats []game.ChatMessage

	router := NewRouter(Handlers{
		OnPhaseChange:  func(next game.NextPhase) { phases = append(phases, next) },
		OnPlayerUpdate: func(p game.Participant) { updates = append(updates, p) },
		OnChat:         func(msg game.ChatMessage) { chats = append(chats, msg) },
	})

	router.Dispatch(NamePublic, []byte(`{"type":"PHASE_CHANGE","data":{"currentPhase":"VOTE","dayCount":1,"phaseDurationSeconds":60}}`))
	router.Dispatch(NamePublic, []byte(`{"type":"PLAYER_UPDATE","data":{"id":"p2","displayName":"Bea","isAlive":false}}`))
	router.Dispatch(NamePublic, []byte(`{"type":"CHAT","data":{"id":"m1","senderId":"p1","text":"hi"}}`))

	assert.Len(t, phases, 1)
	assert.Equal(t, game.PhaseVote, phases[0].CurrentPhase)
	assert.Len(t, updates, 1)
	assert.False(t, updates[0].IsAlive)
	assert.Len(t, chats, 1)
	assert.Equal(t, "hi", chats[0].Text)
}

func TestRouterDropsMalformedFrames(t *testing.T) {
	calls := 0
	router := NewRouter(Handlers{
		OnPhaseChange: func(game.NextPhase) { calls++ },
	})

	router.Dispatch(NamePublic, []byte(`not json at all`))
	router.Dispatch(NamePublic, []byte(`{"type":"PHASE_CHANGE","data":{"dayCount":"oops"}}`))
	router.Dispatch(NamePublic, []byte(`{"type":"NO_SUCH_TYPE","data":{}}`))

	assert.Zero(t, calls)

	// a good frame after bad ones still goes through
	router.Dispatch(NamePublic, []byte(`{"type":"PHASE_CHANGE","data":{"currentPhase":"DAY","dayCount":1,"phaseDurationSeconds":60}}`))
	assert.Equal(t, 1, calls)
}

// The same message id arriving on two channels (or twice on one) must
// collapse into a single delivery.
func TestRouterSuppressesDuplicates(t *testing.T) {
	calls := 0
	router := NewRouter(Handlers{
		OnVoteUpdate: func(events.VoteUpdatePayload) { calls++ },
	})

	frame := []byte(`{"id":"msg-1","type":"VOTE_UPDATE","data":{"dayCount":1}}`)
	router.Dispatch(NamePublic, frame)
	router.Dispatch(NameEvents, frame)
	router.Dispatch(NamePublic, frame)

	assert.Equal(t, 1, calls)
}

func TestRouterDedupWindowIsBounded(t *testing.T) {
	calls := 0
	router := NewRouter(Handlers{
		OnVoteUpdate: func(events.VoteUpdatePayload) { calls++ },
	})

	for i := 0; i < dedupWindow*2; i++ {
		frame := fmt.Sprintf(`{"id":"msg-%d","type":"VOTE_UPDATE","data":{"dayCount":1}}`, i)
		router.Dispatch(NamePublic, []byte(frame))
	}

	assert.Equal(t, dedupWindow*2, calls)
	assert.LessOrEqual(t, len(router.seen), dedupWindow)
}

func TestRouterFramesWithoutIDAreNotDeduped(t *testing.T) {
	calls := 0
	router := NewRouter(Handlers{
		OnVoteUpdate: func(events.VoteUpdatePayload) { calls++ },
	})

	frame := []byte(`{"type":"VOTE_UPDATE","data":{"dayCount":1}}`)
	router.Dispatch(NamePublic, frame)
	router.Dispatch(NamePublic, frame)

	// idempotency for id-less messages is the reconciler's job
	assert.Equal(t, 2, calls)
}
