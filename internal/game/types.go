package game

import (
	"time"
)

// Phase is one of the session's five recurring stages. The phase gates which
// actions and which chat scopes are legal for each participant.
type Phase string

const (
	PhaseNight   Phase = "NIGHT"
	PhaseDay     Phase = "DAY"
	PhaseVote    Phase = "VOTE"
	PhaseDefense Phase = "DEFENSE"
	PhaseResult  Phase = "RESULT"
)

// Role is a participant's hidden capability assignment. Visible to self
// always, to saboteur peers always, otherwise hidden until session end.
type Role string

const (
	RoleCitizen      Role = "CITIZEN"
	RoleSaboteur     Role = "SABOTEUR"
	RoleProtector    Role = "PROTECTOR"
	RoleInvestigator Role = "INVESTIGATOR"
)

// ChatChannel is a logical communication scope, derived from
// (role, vitality, phase) and never persisted.
type ChatChannel string

const (
	ChatLobby    ChatChannel = "LOBBY"
	ChatAll      ChatChannel = "ALL"
	ChatSaboteur ChatChannel = "SABOTEUR"
	ChatDead     ChatChannel = "DEAD"
	// ChatNone means communication is disabled for the current
	// (role, vitality, phase) combination.
	ChatNone ChatChannel = ""
)

// ActionType identifies one of the phase-gated action kinds a participant
// may submit to the server.
type ActionType string

const (
	ActionVote        ActionType = "VOTE"
	ActionKill        ActionType = "KILL"
	ActionHeal        ActionType = "HEAL"
	ActionInvestigate ActionType = "INVESTIGATE"
	ActionFinalVote   ActionType = "FINAL_VOTE"
)

// Session is one active game as mirrored from the server. It is owned
// exclusively by the reconciler and replaced wholesale on every phase
// change, never partially mutated.
type Session struct {
	SessionID            string     `json:"sessionId"`
	CurrentPhase         Phase      `json:"currentPhase"`
	DayCount             int        `json:"dayCount"`
	PhaseStartTime       time.Time  `json:"phaseStartTime"`
	PhaseDurationSeconds int        `json:"phaseDurationSeconds"`
	WinnerTeam           string     `json:"winnerTeam,omitempty"`
	FinishedAt           *time.Time `json:"finishedAt,omitempty"`
}

// Participant is one seat in the roster. IsAlive is one-way: once false it
// never reverts to true within a session.
type Participant struct {
	ID            string     `json:"id"`
	DisplayName   string     `json:"displayName"`
	PositionIndex int        `json:"positionIndex"`
	IsAlive       bool       `json:"isAlive"`
	Role          Role       `json:"role,omitempty"`
	DiedAt        *time.Time `json:"diedAt,omitempty"`
}

// RoleInfo is the server's answer about the local participant's own role
// and vitality.
type RoleInfo struct {
	Role          Role `json:"role"`
	IsAlive       bool `json:"isAlive"`
	PositionIndex int  `json:"positionIndex"`
}

// Vote is one recorded voter → candidate pair.
type Vote struct {
	VoterID  string `json:"voterId"`
	TargetID string `json:"targetId"`
}

// VoteTally is the authoritative vote snapshot for one day count. It is
// always replaced whole, never incrementally patched.
type VoteTally struct {
	DayCount int            `json:"dayCount"`
	Votes    []Vote         `json:"votes"`
	Counts   map[string]int `json:"perCandidateCount"`
}

// InvestigationRecord is one investigator result. Records accumulate and
// are immutable once recorded.
type InvestigationRecord struct {
	DayCount   int    `json:"dayCount"`
	TargetID   string `json:"targetId"`
	TargetRole Role   `json:"targetRole"`
}

// PendingAction is the single action a participant may have outstanding in
// the current phase, pending server confirmation. It is cleared on every
// phase transition.
type PendingAction struct {
	Type     ActionType `json:"type"`
	TargetID string     `json:"targetId"`
}

// PhaseOutcome carries the outcome payload a phase-change push may include.
type PhaseOutcome struct {
	Deaths     []string `json:"deaths,omitempty"`
	ExecutedID string   `json:"executedId,omitempty"`
	WinnerTeam string   `json:"winnerTeam,omitempty"`
}

// NextPhase is the server's response to a phase advance request and the
// payload of a PHASE_CHANGE push.
type NextPhase struct {
	CurrentPhase         Phase         `json:"currentPhase"`
	DayCount             int           `json:"dayCount"`
	PhaseStartTime       time.Time     `json:"phaseStartTime"`
	PhaseDurationSeconds int           `json:"phaseDurationSeconds"`
	LastPhaseResult      *PhaseOutcome `json:"lastPhaseResult,omitempty"`
}

// ChatMessage is one chat line as delivered by the server, over REST
// history fetches and CHAT pushes alike.
type ChatMessage struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"senderId"`
	SenderName  string      `json:"senderName"`
	Channel     ChatChannel `json:"channel"`
	Text        string      `json:"text"`
	SentAt      time.Time   `json:"sentAt"`
	DayCount    int         `json:"dayCount,omitempty"`
	SystemEvent bool        `json:"systemEvent,omitempty"`
}

// ActionTypeFor maps (role, phase) to the action kind that combination may
// submit, or "" when no action is legal.
func ActionTypeFor(role Role, phase Phase) ActionType {
	switch phase {
	case PhaseNight:
		switch role {
		case RoleSaboteur:
			return ActionKill
		case RoleProtector:
			return ActionHeal
		case RoleInvestigator:
			return ActionInvestigate
		}
		return ""
	case PhaseDay, PhaseVote:
		return ActionVote
	case PhaseResult:
		return ActionFinalVote
	}
	return ""
}
