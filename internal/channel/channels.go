package channel

import "github.com/danpark-dev/mafiasync/internal/game"

// Logical channel names. Every participant subscribes to the public and
// events channels; the faction and post-mortem channels are conditional on
// role and vitality.
const (
	NamePublic  = "public"
	NameEvents  = "events"
	NameFaction = "faction"
	NameDead    = "dead"
)

// RequiredChannels computes the channel set the local participant must be
// subscribed to right now. Called again whenever role knowledge or vitality
// changes; the manager diffs the result against what is currently open.
func RequiredChannels(role game.Role, isAlive bool) []string {
	names := []string{NamePublic, NameEvents}
	if isAlive && role == game.RoleSaboteur {
		names = append(names, NameFaction)
	}
	if !isAlive {
		names = append(names, NameDead)
	}
	return names
}
