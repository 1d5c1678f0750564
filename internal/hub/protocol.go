package hub

import (
	"encoding/json"

	"github.com/jpalmerr/etagwatch/internal/status"
)

// Wire status values sent to subscribers. The same payload shape is used for
// query responses and for broadcast pushes.
const (
	// StatusChanged: the server holds a token the client does not; payload
	// carries the token and its observation time.
	StatusChanged = 0

	// StatusUpToDate: the client's token matches the server's.
	StatusUpToDate = 1

	// StatusInternalError: the poller crashed and is being restarted.
	StatusInternalError = 2

	// StatusUnclassifiedError: a transient fault (timeout, malformed or
	// incomplete response), or no token has been observed yet.
	StatusUnclassifiedError = 3

	// StatusUnreachableError: the watched resource is down or unreachable.
	StatusUnreachableError = 4
)

// payload is the single server→client message shape.
type payload struct {
	Status     int    `json:"status"`
	Token      string `json:"token,omitempty"`
	ObservedAt int64  `json:"observed_at,omitempty"`
}

// encode marshals a payload; the shape is marshal-safe by construction.
func (p payload) encode() []byte {
	b, _ := json.Marshal(p)
	return b
}

// classStatus maps a failure class to its wire status.
func classStatus(c status.Class) int {
	switch c {
	case status.ClassInternal:
		return StatusInternalError
	case status.ClassExternal:
		return StatusUnreachableError
	default:
		return StatusUnclassifiedError
	}
}

// responseFor composes the answer to a client query given the settled
// snapshot. clientToken is the token the client claims to hold; empty means
// it holds none.
func responseFor(clientToken string, snap status.Snapshot) payload {
	if snap.Class != status.ClassNone {
		return payload{Status: classStatus(snap.Class)}
	}

	if snap.Token == "" {
		// nothing observed yet and no failure recorded; the wire enum has
		// no dedicated value, so this reports as unclassified
		return payload{Status: StatusUnclassifiedError}
	}

	if clientToken == snap.Token {
		return payload{Status: StatusUpToDate}
	}

	return payload{
		Status:     StatusChanged,
		Token:      snap.Token,
		ObservedAt: snap.ObservedAt.UnixMilli(),
	}
}

// eventPayload composes the broadcast push for a notifier event.
func eventPayload(ev status.Event) payload {
	if ev.Kind == status.EventChange {
		return payload{
			Status:     StatusChanged,
			Token:      ev.Token,
			ObservedAt: ev.ObservedAt.UnixMilli(),
		}
	}
	return payload{Status: classStatus(ev.Class)}
}
