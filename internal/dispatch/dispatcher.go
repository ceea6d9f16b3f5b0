// Package dispatch turns user intents into single outbound requests. Every
// check here is defensive client-side enforcement; the server remains the
// real authority and its rejections are surfaced as typed results.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/danpark-dev/mafiasync/internal/game"
	"github.com/danpark-dev/mafiasync/internal/gameclient"
	"github.com/danpark-dev/mafiasync/internal/reconcile"
)

var (
	// ErrSessionOver means the session is terminal and accepts no intents.
	ErrSessionOver = errors.New("session is over")
	// ErrNotAlive means dead participants cannot act.
	ErrNotAlive = errors.New("dead participants cannot act")
	// ErrActionNotAllowed means no action of the requested kind is legal
	// for the local (role, phase) combination.
	ErrActionNotAllowed = errors.New("action not allowed in this phase")
	// ErrAlreadyActed means an action is already pending for this phase.
	// The duplicate is rejected before it reaches the network.
	ErrAlreadyActed = errors.New("action already submitted this phase")
	// ErrInvalidTarget means the target is unknown or already dead.
	ErrInvalidTarget = errors.New("invalid action target")
	// ErrChatNotAllowed means the permission resolver reports no usable
	// chat scope right now.
	ErrChatNotAllowed = errors.New("chat not allowed right now")
	// ErrChatThrottled means the local send rate limit was hit.
	ErrChatThrottled = errors.New("sending chat too fast")
)

// IntentKind is the user-level intent category.
type IntentKind string

const (
	IntentVote      IntentKind = "VOTE"
	IntentAbility   IntentKind = "ABILITY"
	IntentFinalVote IntentKind = "FINAL_VOTE"
)

// Intent is one user request to act on a target.
type Intent struct {
	Kind     IntentKind
	TargetID string
}

// LocalStatus reports the local participant's current role and vitality.
type LocalStatus func() (role game.Role, isAlive bool)

// Dispatcher validates intents against the current session view and sends
// at most one action per phase.
type Dispatcher struct {
	client      *gameclient.Client
	reconciler  *reconcile.Reconciler
	sessionID   string
	localID     string
	localStatus LocalStatus
	chatLimiter *rate.Limiter
}

// New creates a dispatcher. The chat limiter allows short bursts but keeps
// a misbehaving UI from flooding the server.
func New(client *gameclient.Client, reconciler *reconcile.Reconciler, sessionID, localID string, localStatus LocalStatus) *Dispatcher {
	return &Dispatcher{
		client:      client,
		reconciler:  reconciler,
		sessionID:   sessionID,
		localID:     localID,
		localStatus: localStatus,
		chatLimiter: rate.NewLimiter(rate.Limit(2), 5),
	}
}

// Submit validates and sends one action intent. On acceptance the pending
// action is set optimistically so the UI can show "already acted" before
// any push confirms it; on rejection the optimistic state is rolled back
// and the server's reason is returned.
func (d *Dispatcher) Submit(ctx context.Context, intent Intent) error {
	if d.reconciler.Ended() {
		return ErrSessionOver
	}

	role, alive := d.localStatus()
	if !alive {
		return ErrNotAlive
	}

	session := d.reconciler.Session()
	actionType := game.ActionTypeFor(role, session.CurrentPhase)
	if actionType == "" || !intentMatches(intent.Kind, actionType) {
		return ErrActionNotAllowed
	}
	if actionType == game.ActionFinalVote && intent.TargetID == d.localID {
		// the defendant does not take part in the final vote
		return ErrActionNotAllowed
	}

	target, ok := d.reconciler.Participant(intent.TargetID)
	if !ok || !target.IsAlive {
		return ErrInvalidTarget
	}

	if d.reconciler.PendingAction() != nil {
		return ErrAlreadyActed
	}

	pending := game.PendingAction{Type: actionType, TargetID: intent.TargetID}
	d.reconciler.SetPendingAction(pending)

	err := d.client.SubmitAction(ctx, d.sessionID, gameclient.ActionRequest{
		Type:     actionType,
		ActorID:  d.localID,
		TargetID: intent.TargetID,
	})
	if err != nil {
		d.reconciler.ClearPendingAction()
		if rej, ok := gameclient.AsRejection(err); ok {
			log.Info().
				Str("action", string(actionType)).
				Str("reason", rej.Reason).
				Msg("action rejected by server")
			return rej
		}
		return fmt.Errorf("failed to submit %s action: %w", actionType, err)
	}

	log.Info().
		Str("action", string(actionType)).
		Str("target_id", intent.TargetID).
		Str("phase", string(session.CurrentPhase)).
		Msg("action accepted")

	if actionType == game.ActionInvestigate {
		d.refreshInvestigations(ctx)
	}
	return nil
}

// Chat sends a message into the currently permitted scope. The permission
// resolver gates the send; a dead participant never reaches the all-players
// scope even transiently.
func (d *Dispatcher) Chat(ctx context.Context, text string) (*game.ChatMessage, error) {
	if d.reconciler.Ended() {
		return nil, ErrSessionOver
	}

	role, alive := d.localStatus()
	perm := game.ResolvePermission(role, alive, d.reconciler.Session().CurrentPhase)
	if !perm.CanChat {
		return nil, ErrChatNotAllowed
	}
	if !d.chatLimiter.Allow() {
		return nil, ErrChatThrottled
	}

	msg, err := d.client.SendChat(ctx, d.sessionID, perm.Channel, gameclient.ChatRequest{
		SenderID: d.localID,
		Text:     text,
	})
	if err != nil {
		if rej, ok := gameclient.AsRejection(err); ok {
			return nil, rej
		}
		return nil, fmt.Errorf("failed to send chat: %w", err)
	}
	return msg, nil
}

// RequestPhaseAdvance asks the server to advance the phase, on behalf of
// the expired local countdown. When another client already advanced, the
// server refuses; the fallback is a plain state re-fetch so the local view
// catches up either way. The resulting phase is merged through the
// reconciler, which makes the later confirming push a no-op.
func (d *Dispatcher) RequestPhaseAdvance(ctx context.Context) error {
	if d.reconciler.Ended() {
		return ErrSessionOver
	}

	next, err := d.client.RequestPhaseAdvance(ctx, d.sessionID)
	if err != nil {
		if errors.Is(err, gameclient.ErrSessionEnded) {
			d.markSessionEnded(ctx)
			return ErrSessionOver
		}
		if _, ok := gameclient.AsRejection(err); !ok {
			return fmt.Errorf("failed to request phase advance: %w", err)
		}
		log.Debug().Msg("phase advance refused, re-fetching session state")
		session, ferr := d.client.FetchSessionState(ctx, d.sessionID)
		if ferr != nil {
			return fmt.Errorf("failed to refresh state after refused advance: %w", ferr)
		}
		next = &game.NextPhase{
			CurrentPhase:         session.CurrentPhase,
			DayCount:             session.DayCount,
			PhaseStartTime:       session.PhaseStartTime,
			PhaseDurationSeconds: session.PhaseDurationSeconds,
		}
	}

	d.reconciler.ApplyPhaseChange(*next)
	return nil
}

// markSessionEnded turns a 410 from the server into the terminal state. The
// final session view is re-fetched for the winner team; when the server no
// longer serves the session at all, the view ends without one and the
// SESSION_ENDED push, if it still arrives, is a no-op.
func (d *Dispatcher) markSessionEnded(ctx context.Context) {
	winner := ""
	finishedAt := time.Now()
	if session, err := d.client.FetchSessionState(ctx, d.sessionID); err == nil {
		winner = session.WinnerTeam
		if session.FinishedAt != nil {
			finishedAt = *session.FinishedAt
		}
	}
	log.Info().Str("winner", winner).Msg("session reported over by server")
	d.reconciler.ApplySessionEnded(winner, finishedAt)
}

// refreshInvestigations pulls the investigator's accumulated results and
// records any new slots.
func (d *Dispatcher) refreshInvestigations(ctx context.Context) {
	records, err := d.client.FetchInvestigationResults(ctx, d.sessionID, d.localID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to fetch investigation results")
		return
	}
	for _, rec := range records {
		d.reconciler.RecordInvestigation(rec)
	}
}

func intentMatches(kind IntentKind, actionType game.ActionType) bool {
	switch kind {
	case IntentVote:
		return actionType == game.ActionVote
	case IntentAbility:
		return actionType == game.ActionKill ||
			actionType == game.ActionHeal ||
			actionType == game.ActionInvestigate
	case IntentFinalVote:
		return actionType == game.ActionFinalVote
	}
	return false
}
