package gameclient

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound means the server no longer knows the session.
	// Fatal for the session view.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded means the server reports the session as finished.
	ErrSessionEnded = errors.New("session ended")
)

// Rejection is a business-level refusal from the server (duplicate action,
// invalid target, not your turn). It is returned as a typed error so callers
// can surface the reason to the user instead of treating it as a transport
// failure.
type Rejection struct {
	Reason string `json:"error"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("rejected by server: %s", r.Reason)
}

// AsRejection unwraps err into a *Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
