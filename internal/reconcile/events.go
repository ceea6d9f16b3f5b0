package reconcile

import "time"

// EventKind classifies entries of the session event feed.
type EventKind string

const (
	EventPhase  EventKind = "phase"
	EventDeath  EventKind = "death"
	EventInfo   EventKind = "info"
	EventResult EventKind = "result"
	EventEnd    EventKind = "end"
)

// Event is one human-readable entry of the append-only session feed
// rendered alongside chat.
type Event struct {
	Seq       int       `json:"seq"`
	Kind      EventKind `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
