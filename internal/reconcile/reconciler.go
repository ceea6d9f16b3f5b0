package reconcile

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/danpark-dev/mafiasync/internal/game"
)

// RosterEntry is one participant as exposed to the UI, with the derived
// vote count for the current day folded in.
type RosterEntry struct {
	game.Participant
	VoteCount int `json:"voteCount"`
}

// Callbacks observe reconciler state changes. All callbacks fire outside
// the reconciler lock and may be nil.
type Callbacks struct {
	// OnPhaseChange fires after the session was replaced by a phase change.
	OnPhaseChange func(game.Session)
	// OnRosterChange fires after any participant or vote count change.
	OnRosterChange func()
	// OnEvent fires once per appended feed event.
	OnEvent func(Event)
	// OnLocalDeath fires exactly once, when the local participant's death
	// is first observed. The engine uses it to refresh role visibility and
	// re-derive the channel set.
	OnLocalDeath func()
	// OnEnded fires exactly once when the session turns terminal.
	OnEnded func(winnerTeam string)
}

// Reconciler owns the canonical merged view of one session: phase, roster,
// vote tally, investigation results and the event feed. All mutation goes
// through its merge operations; pushes and pull responses funnel into the
// same rules, so applying a message twice or out of order is safe.
type Reconciler struct {
	localID   string
	clock     clockwork.Clock
	callbacks Callbacks

	mu             sync.RWMutex
	session        game.Session
	roster         map[string]*game.Participant
	tally          *game.VoteTally
	investigations []game.InvestigationRecord
	pending        *game.PendingAction
	events         []Event
	eventSeq       int
	ended          bool
}

// New creates a reconciler for the given local participant.
func New(localID string, clock clockwork.Clock, callbacks Callbacks) *Reconciler {
	return &Reconciler{
		localID:   localID,
		clock:     clock,
		callbacks: callbacks,
		roster:    make(map[string]*game.Participant),
	}
}

// Init seeds the view from the initial pull (session state + roster
// snapshot). Participants are created here and never removed mid-session.
func (r *Reconciler) Init(session game.Session, roster []game.Participant) {
	r.mu.Lock()
	r.session = session
	r.roster = make(map[string]*game.Participant, len(roster))
	for i := range roster {
		p := roster[i]
		r.roster[p.ID] = &p
	}
	r.mu.Unlock()

	if r.callbacks.OnRosterChange != nil {
		r.callbacks.OnRosterChange()
	}
}

// ApplyPhaseChange replaces the phase fields wholesale. A message whose day
// count regresses is stale and is dropped; a duplicate of the current phase
// is a no-op. Every accepted transition clears the pending action. Returns
// whether the change was applied.
func (r *Reconciler) ApplyPhaseChange(next game.NextPhase) bool {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return false
	}
	if next.DayCount < r.session.DayCount {
		currentDay := r.session.DayCount
		r.mu.Unlock()
		log.Warn().
			Int("pushed_day", next.DayCount).
			Int("current_day", currentDay).
			Str("pushed_phase", string(next.CurrentPhase)).
			Msg("rejecting stale phase change")
		return false
	}
	if next.DayCount == r.session.DayCount &&
		next.CurrentPhase == r.session.CurrentPhase &&
		next.PhaseStartTime.Equal(r.session.PhaseStartTime) {
		r.mu.Unlock()
		return false
	}

	r.session.CurrentPhase = next.CurrentPhase
	r.session.DayCount = next.DayCount
	r.session.PhaseStartTime = next.PhaseStartTime
	r.session.PhaseDurationSeconds = next.PhaseDurationSeconds
	r.pending = nil

	fired := r.appendEventLocked(EventPhase,
		fmt.Sprintf("day %d: %s phase started", next.DayCount, next.CurrentPhase))
	session := r.session
	r.mu.Unlock()

	r.emit(fired)
	if next.LastPhaseResult != nil {
		r.applyPhaseResult(next.CurrentPhase, next.LastPhaseResult)
	}
	if r.callbacks.OnPhaseChange != nil {
		r.callbacks.OnPhaseChange(session)
	}
	return true
}

// applyPhaseResult folds a phase-change result payload (deaths, execution,
// winner) into the view as ordinary updates.
func (r *Reconciler) applyPhaseResult(phase game.Phase, result *game.PhaseOutcome) {
	if phase == game.PhaseDay && len(result.Deaths) == 0 && result.ExecutedID == "" {
		r.mu.Lock()
		fired := r.appendEventLocked(EventInfo, "nobody died last night; the protector blocked the attack")
		r.mu.Unlock()
		r.emit(fired)
	}
	for _, id := range result.Deaths {
		r.markDead(id, "")
	}
	if result.ExecutedID != "" {
		r.markDead(result.ExecutedID, "executed by vote")
	}
	if result.WinnerTeam != "" {
		r.ApplySessionEnded(result.WinnerTeam, r.clock.Now())
	}
}

// ApplyPlayerUpdate merges one participant update. A push claiming a dead
// participant is alive again is a protocol violation and is ignored. The
// first observation of a death emits a death event exactly once.
func (r *Reconciler) ApplyPlayerUpdate(update game.Participant) {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	p, ok := r.roster[update.ID]
	if !ok {
		r.mu.Unlock()
		log.Warn().Str("participant_id", update.ID).Msg("dropping update for unknown participant")
		return
	}

	if update.IsAlive && !p.IsAlive {
		r.mu.Unlock()
		log.Warn().
			Str("participant_id", update.ID).
			Msg("rejecting alive regression for dead participant")
		return
	}

	if update.DisplayName != "" {
		p.DisplayName = update.DisplayName
	}
	if update.Role != "" {
		p.Role = update.Role
	}
	if update.DiedAt != nil {
		p.DiedAt = update.DiedAt
	}

	died := p.IsAlive && !update.IsAlive
	var fired []Event
	if died {
		p.IsAlive = false
		fired = append(fired, r.appendEventLocked(EventDeath, fmt.Sprintf("%s died", p.DisplayName)))
	}
	isLocal := update.ID == r.localID
	r.mu.Unlock()

	r.emit(fired...)
	if died && isLocal && r.callbacks.OnLocalDeath != nil {
		r.callbacks.OnLocalDeath()
	}
	if r.callbacks.OnRosterChange != nil {
		r.callbacks.OnRosterChange()
	}
}

// ApplyPlayersRemoved marks a batch of participants dead.
func (r *Reconciler) ApplyPlayersRemoved(ids []string) {
	for _, id := range ids {
		r.markDead(id, "")
	}
}

// markDead is the single path for alive → dead transitions, so the
// exactly-once death event holds no matter which message carried the fact.
func (r *Reconciler) markDead(id, cause string) {
	r.mu.Lock()
	p, ok := r.roster[id]
	if !ok || !p.IsAlive {
		r.mu.Unlock()
		return
	}
	p.IsAlive = false
	now := r.clock.Now()
	p.DiedAt = &now

	msg := fmt.Sprintf("%s died", p.DisplayName)
	kind := EventDeath
	if cause != "" {
		msg = fmt.Sprintf("%s was %s", p.DisplayName, cause)
		kind = EventResult
	}
	fired := r.appendEventLocked(kind, msg)
	isLocal := id == r.localID
	r.mu.Unlock()

	r.emit(fired)
	if isLocal && r.callbacks.OnLocalDeath != nil {
		r.callbacks.OnLocalDeath()
	}
	if r.callbacks.OnRosterChange != nil {
		r.callbacks.OnRosterChange()
	}
}

// ApplyVoteTally installs an authoritative tally snapshot. Snapshots for a
// stale day count are rejected; the tally is always replaced whole, never
// patched.
func (r *Reconciler) ApplyVoteTally(tally *game.VoteTally) bool {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return false
	}
	if tally.DayCount < r.session.DayCount {
		currentDay := r.session.DayCount
		r.mu.Unlock()
		log.Warn().
			Int("tally_day", tally.DayCount).
			Int("current_day", currentDay).
			Msg("rejecting vote tally for stale day")
		return false
	}
	r.tally = tally
	r.mu.Unlock()

	if r.callbacks.OnRosterChange != nil {
		r.callbacks.OnRosterChange()
	}
	return true
}

// ApplySessionEnded marks the session terminal. Pushes arriving after this
// point are ignored by every other merge operation.
func (r *Reconciler) ApplySessionEnded(winnerTeam string, finishedAt time.Time) {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	r.session.WinnerTeam = winnerTeam
	r.session.FinishedAt = &finishedAt
	fired := r.appendEventLocked(EventEnd, fmt.Sprintf("session over, %s team wins", winnerTeam))
	r.mu.Unlock()

	r.emit(fired)
	if r.callbacks.OnEnded != nil {
		r.callbacks.OnEnded(winnerTeam)
	}
}

// RecordInvestigation appends one investigator result. A slot already
// recorded for (targetID, dayCount) is locked and left untouched.
func (r *Reconciler) RecordInvestigation(rec game.InvestigationRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.investigations {
		if existing.TargetID == rec.TargetID && existing.DayCount == rec.DayCount {
			return
		}
	}
	r.investigations = append(r.investigations, rec)
}

// SetPendingAction installs the optimistic pending action for the current
// phase.
func (r *Reconciler) SetPendingAction(action game.PendingAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = &action
}

// ClearPendingAction rolls back an optimistic pending action.
func (r *Reconciler) ClearPendingAction() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = nil
}

// PendingAction returns the outstanding action, if any.
func (r *Reconciler) PendingAction() *game.PendingAction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.pending == nil {
		return nil
	}
	p := *r.pending
	return &p
}

// Session returns a copy of the current session view.
func (r *Reconciler) Session() game.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session
}

// Ended reports whether the session is terminal.
func (r *Reconciler) Ended() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ended
}

// Roster returns the participants in seat order with the current-day vote
// counts folded in.
func (r *Reconciler) Roster() []RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]RosterEntry, 0, len(r.roster))
	for _, p := range r.roster {
		entry := RosterEntry{Participant: *p}
		if r.tally != nil && r.tally.DayCount == r.session.DayCount {
			entry.VoteCount = r.tally.Counts[p.ID]
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].PositionIndex < entries[j].PositionIndex
	})
	return entries
}

// Participant looks up one roster entry by id.
func (r *Reconciler) Participant(id string) (game.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.roster[id]
	if !ok {
		return game.Participant{}, false
	}
	return *p, true
}

// VoteTally returns the latest accepted tally, or nil.
func (r *Reconciler) VoteTally() *game.VoteTally {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.tally == nil {
		return nil
	}
	t := *r.tally
	return &t
}

// Investigations returns the accumulated investigation records.
func (r *Reconciler) Investigations() []game.InvestigationRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]game.InvestigationRecord, len(r.investigations))
	copy(out, r.investigations)
	return out
}

// Events returns the session feed.
func (r *Reconciler) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Reconciler) appendEventLocked(kind EventKind, message string) Event {
	r.eventSeq++
	ev := Event{
		Seq:       r.eventSeq,
		Kind:      kind,
		Message:   message,
		Timestamp: r.clock.Now(),
	}
	r.events = append(r.events, ev)
	return ev
}

func (r *Reconciler) emit(events ...Event) {
	if r.callbacks.OnEvent == nil {
		return
	}
	for _, ev := range events {
		r.callbacks.OnEvent(ev)
	}
}
