package reconcile

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpark-dev/mafiasync/internal/game"
)

func testSession(phase game.Phase, day int) game.Session {
	return game.Session{
		SessionID:            "s1",
		CurrentPhase:         phase,
		DayCount:             day,
		PhaseStartTime:       time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC),
		PhaseDurationSeconds: 60,
	}
}

func testRoster() []game.Participant {
	return []game.Participant{
		{ID: "p1", DisplayName: "Ada", PositionIndex: 0, IsAlive: true},
		{ID: "p2", DisplayName: "Ben", PositionIndex: 1, IsAlive: true},
		{ID: "p3", DisplayName: "Cho", PositionIndex: 2, IsAlive: true},
		{ID: "p4", DisplayName: "Dev", PositionIndex: 3, IsAlive: true},
	}
}

func newTestReconciler(t *testing.T, callbacks Callbacks) *Reconciler {
	t.Helper()
	r := New("p1", clockwork.NewFakeClock(), callbacks)
	r.Init(testSession(game.PhaseNight, 1), testRoster())
	return r
}

func countDeathEvents(r *Reconciler) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Kind == EventDeath {
			n++
		}
	}
	return n
}

func TestApplyPhaseChangeReplacesWholesale(t *testing.T) {
	r := newTestReconciler(t, Callbacks{})

	start := time.Date(2026, 3, 1, 21, 5, 0, 0, time.UTC)
	applied := r.ApplyPhaseChange(game.NextPhase{
		CurrentPhase:         game.PhaseDay,
		DayCount:             1,
		PhaseStartTime:       start,
		PhaseDurationSeconds: 120,
	})
	require.True(t, applied)

	session := r.Session()
	assert.Equal(t, game.PhaseDay, session.CurrentPhase)
	assert.Equal(t, 1, session.DayCount)
	assert.Equal(t, start, session.PhaseStartTime)
	assert.Equal(t, 120, session.PhaseDurationSeconds)
}

func TestApplyPhaseChangeRejectsDayRegression(t *testing.T) {
	r := newTestReconciler(t, Callbacks{})
	require.True(t, r.ApplyPhaseChange(game.NextPhase{
		CurrentPhase: game.PhaseNight, DayCount: 2,
		PhaseStartTime: time.Now(), PhaseDurationSeconds: 60,
	}))

	applied := r.ApplyPhaseChange(game.NextPhase{
		CurrentPhase: game.PhaseVote, DayCount: 1,
		PhaseStartTime: time.Now(), PhaseDurationSeconds: 60,
	})
	assert.False(t, applied)
	assert.Equal(t, 2, r.Session().DayCount)
	assert.Equal(t, game.PhaseNight, r.Session().CurrentPhase)
}

func TestApplyPhaseChangeIsIdempotent(t *testing.T) {
	phases := 0
	r := newTestReconciler(t, Callbacks{
		OnPhaseChange: func(game.Session) { phases++ },
	})

	next := game.NextPhase{
		CurrentPhase: game.PhaseDay, DayCount: 1,
		PhaseStartTime:       time.Date(2026, 3, 1, 21, 5, 0, 0, time.UTC),
		PhaseDurationSeconds: 120,
	}
	assert.True(t, r.ApplyPhaseChange(next))
	before := r.Events()

	assert.False(t, r.ApplyPhaseChange(next))
	assert.Equal(t, before, r.Events())
	assert.Equal(t, 1, phases)
}

func TestPhaseChangeClearsPendingAction(t *testing.T) {
	r := newTestReconciler(t, Callbacks{})
	r.SetPendingAction(game.PendingAction{Type: game.ActionKill, TargetID: "p2"})
	require.NotNil(t, r.PendingAction())

	r.ApplyPhaseChange(game.NextPhase{
		CurrentPhase: game.PhaseDay, DayCount: 1,
		PhaseStartTime: time.Now(), PhaseDurationSeconds: 60,
	})
	assert.Nil(t, r.PendingAction())
}

func TestAliveIsMonotone(t *testing.T) {
	r := newTestReconciler(t, Callbacks{})

	r.ApplyPlayerUpdate(game.Participant{ID: "p2", DisplayName: "Ben", IsAlive: false})
	p, ok := r.Participant("p2")
	require.True(t, ok)
	assert.False(t, p.IsAlive)

	// a push claiming the dead participant is alive again is a protocol
	// violation and must be ignored
	r.ApplyPlayerUpdate(game.Participant{ID: "p2", DisplayName: "Ben", IsAlive: true})
	p, _ = r.Participant("p2")
	assert.False(t, p.IsAlive)
}

func TestDeathEventEmittedExactlyOnce(t *testing.T) {
	r := newTestReconciler(t, Callbacks{})

	update := game.Participant{ID: "p3", DisplayName: "Cho", IsAlive: false}
	r.ApplyPlayerUpdate(update)
	r.ApplyPlayerUpdate(update)
	r.ApplyPlayersRemoved([]string{"p3"})

	assert.Equal(t, 1, countDeathEvents(r))
}

func TestLocalDeathTriggersVisibilityRefresh(t *testing.T) {
	localDeaths := 0
	r := newTestReconciler(t, Callbacks{
		OnLocalDeath: func() { localDeaths++ },
	})

	r.ApplyPlayerUpdate(game.Participant{ID: "p2", DisplayName: "Ben", IsAlive: false})
	assert.Zero(t, localDeaths)

	r.ApplyPlayerUpdate(game.Participant{ID: "p1", DisplayName: "Ada", IsAlive: false})
	r.ApplyPlayerUpdate(game.Participant{ID: "p1", DisplayName: "Ada", IsAlive: false})
	assert.Equal(t, 1, localDeaths)
}

func TestUnknownParticipantUpdateDropped(t *testing.T) {
	r := newTestReconciler(t, Callbacks{})
	r.ApplyPlayerUpdate(game.Participant{ID: "ghost", IsAlive: false})
	assert.Len(t, r.Roster(), 4)
}

// Night 1: saboteur targets p2, protector heals p2. The phase change to DAY
// carries an empty deaths list; p2 must still be alive and no death event
// may exist.
func TestHealBlocksKillScenario(t *testing.T) {
	r := newTestReconciler(t, Callbacks{})

	r.ApplyPhaseChange(game.NextPhase{
		CurrentPhase: game.PhaseDay, DayCount: 1,
		PhaseStartTime: time.Now(), PhaseDurationSeconds: 120,
		LastPhaseResult: &game.PhaseOutcome{Deaths: []string{}},
	})

	p, _ := r.Participant("p2")
	assert.True(t, p.IsAlive)
	assert.Zero(t, countDeathEvents(r))

	// the blocked attack is narrated in the feed
	var blocked bool
	for _, ev := range r.Events() {
		if ev.Kind == EventInfo {
			blocked = true
		}
	}
	assert.True(t, blocked)
}

func TestPhaseResultAppliesDeathsAndExecution(t *testing.T) {
	r := newTestReconciler(t, Callbacks{})

	r.ApplyPhaseChange(game.NextPhase{
		CurrentPhase: game.PhaseDay, DayCount: 1,
		PhaseStartTime: time.Now(), PhaseDurationSeconds: 120,
		LastPhaseResult: &game.PhaseOutcome{Deaths: []string{"p4"}},
	})
	p, _ := r.Participant("p4")
	assert.False(t, p.IsAlive)

	r.ApplyPhaseChange(game.NextPhase{
		CurrentPhase: game.PhaseNight, DayCount: 2,
		PhaseStartTime: time.Now(), PhaseDurationSeconds: 60,
		LastPhaseResult: &game.PhaseOutcome{ExecutedID: "p3"},
	})
	p, _ = r.Participant("p3")
	assert.False(t, p.IsAlive)

	var executed bool
	for _, ev := range r.Events() {
		if ev.Kind == EventResult {
			executed = true
		}
	}
	assert.True(t, executed)
}

func TestApplyVoteTally(t *testing.T) {
	r := newTestReconciler(t, Callbacks{})
	require.True(t, r.ApplyPhaseChange(game.NextPhase{
		CurrentPhase: game.PhaseVote, DayCount: 1,
		PhaseStartTime: time.Now(), PhaseDurationSeconds: 60,
	}))

	ok := r.ApplyVoteTally(&game.VoteTally{
		DayCount: 1,
		Counts:   map[string]int{"p2": 5, "p3": 2},
	})
	require.True(t, ok)

	counts := make(map[string]int)
	for _, entry := range r.Roster() {
		counts[entry.ID] = entry.VoteCount
	}
	assert.Equal(t, 5, counts["p2"])
	assert.Equal(t, 2, counts["p3"])
	assert.Zero(t, counts["p1"])
}

// A stale duplicate tally for an earlier day must be ignored.
func TestApplyVoteTallyRejectsStaleDay(t *testing.T) {
	r := newTestReconciler(t, Callbacks{})
	require.True(t, r.ApplyPhaseChange(game.NextPhase{
		CurrentPhase: game.PhaseVote, DayCount: 2,
		PhaseStartTime: time.Now(), PhaseDurationSeconds: 60,
	}))
	require.True(t, r.ApplyVoteTally(&game.VoteTally{
		DayCount: 2,
		Counts:   map[string]int{"p2": 3},
	}))

	ok := r.ApplyVoteTally(&game.VoteTally{
		DayCount: 1,
		Counts:   map[string]int{"p4": 9},
	})
	assert.False(t, ok)
	assert.Equal(t, 2, r.VoteTally().DayCount)
}

func TestSessionEndedIsTerminal(t *testing.T) {
	var winners []string
	r := newTestReconciler(t, Callbacks{
		OnEnded: func(winner string) { winners = append(winners, winner) },
	})

	finished := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	r.ApplySessionEnded("CITIZEN", finished)
	r.ApplySessionEnded("SABOTEUR", finished)
	assert.Equal(t, []string{"CITIZEN"}, winners)
	assert.True(t, r.Ended())

	// pushes after the terminal point are ignored
	assert.False(t, r.ApplyPhaseChange(game.NextPhase{
		CurrentPhase: game.PhaseNight, DayCount: 3,
		PhaseStartTime: time.Now(), PhaseDurationSeconds: 60,
	}))
	r.ApplyPlayerUpdate(game.Participant{ID: "p2", IsAlive: false})
	p, _ := r.Participant("p2")
	assert.True(t, p.IsAlive)
}

func TestRecordInvestigationLocksSlot(t *testing.T) {
	r := newTestReconciler(t, Callbacks{})

	r.RecordInvestigation(game.InvestigationRecord{DayCount: 1, TargetID: "p2", TargetRole: game.RoleSaboteur})
	r.RecordInvestigation(game.InvestigationRecord{DayCount: 1, TargetID: "p2", TargetRole: game.RoleCitizen})
	r.RecordInvestigation(game.InvestigationRecord{DayCount: 2, TargetID: "p2", TargetRole: game.RoleSaboteur})

	records := r.Investigations()
	require.Len(t, records, 2)
	assert.Equal(t, game.RoleSaboteur, records[0].TargetRole) // first write wins
}

func TestRosterIsSeatOrdered(t *testing.T) {
	r := New("p1", clockwork.NewFakeClock(), Callbacks{})
	r.Init(testSession(game.PhaseNight, 1), []game.Participant{
		{ID: "p3", DisplayName: "Cho", PositionIndex: 2, IsAlive: true},
		{ID: "p1", DisplayName: "Ada", PositionIndex: 0, IsAlive: true},
		{ID: "p2", DisplayName: "Ben", PositionIndex: 1, IsAlive: true},
	})

	roster := r.Roster()
	require.Len(t, roster, 3)
	assert.Equal(t, "p1", roster[0].ID)
	assert.Equal(t, "p2", roster[1].ID)
	assert.Equal(t, "p3", roster[2].ID)
}
