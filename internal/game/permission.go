package game

// Permission is the resolved communication state for one
// (role, vitality, phase) combination.
type Permission struct {
	Channel ChatChannel
	CanChat bool
}

// ResolveChannel derives the chat scope a participant may use right now.
// Priority order, first match wins: dead participants always land in the
// post-mortem scope, saboteurs chat among themselves at night, everyone
// alive chats during day and vote, and all remaining combinations have
// communication disabled.
func ResolveChannel(role Role, isAlive bool, phase Phase) ChatChannel {
	if !isAlive {
		return ChatDead
	}
	if phase == PhaseNight && role == RoleSaboteur {
		return ChatSaboteur
	}
	if phase == PhaseDay || phase == PhaseVote {
		return ChatAll
	}
	return ChatNone
}

// ResolvePermission resolves the channel plus the chat gate. A dead
// participant never regains the all-players scope, not even transiently.
func ResolvePermission(role Role, isAlive bool, phase Phase) Permission {
	ch := ResolveChannel(role, isAlive, phase)
	return Permission{Channel: ch, CanChat: ch != ChatNone}
}
