package status

import "time"

// Class identifies which failure category, if any, the watcher is in.
//
// Exactly one class holds at a time. [ClassInternal] is set only by the
// supervisor when a cycle fails in an unclassified way, and is cleared by the
// next cleanly completed cycle.
type Class int

const (
	// ClassNone means the last completed cycle finished without error.
	ClassNone Class = iota

	// ClassInternal means the poller itself crashed and was restarted by the
	// supervisor. Self-healing: cleared by the next clean cycle.
	ClassInternal

	// ClassExternal means the watched resource is unreachable (connection
	// refused, DNS failure).
	ClassExternal

	// ClassTransient covers timeouts, TLS handshake failures, non-2xx
	// responses, and 2xx responses missing the change-token header.
	ClassTransient
)

// String returns a log-friendly name for the class.
func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassInternal:
		return "internal"
	case ClassExternal:
		return "external"
	case ClassTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// EventKind distinguishes change notifications from failure notifications.
type EventKind int

const (
	// EventChange is published when the observed change token differs from
	// the persisted one.
	EventChange EventKind = iota

	// EventFailure is published for every classified probe failure and for
	// supervisor-level crashes.
	EventFailure
)

// Event is the unit handed to the notifier's fan-out.
//
// Change events carry the new token and its observation time. Failure events
// carry the failure class; their Token holds the last known token, which may
// be empty if nothing was ever observed.
type Event struct {
	Kind       EventKind
	Token      string
	ObservedAt time.Time
	Class      Class
}

// Snapshot is a consistent, immutable view of the watcher's state.
//
// Readers always receive a whole snapshot; fields from different cycles are
// never mixed. While Running is true the remaining fields describe the
// previous cycle and must not be treated as this cycle's result; use
// [Board.Await] to wait for the cycle to settle.
type Snapshot struct {
	// Token is the last successfully observed change token. Empty until the
	// first successful probe.
	Token string

	// ObservedAt is when Token was first observed. Zero until the first
	// successful probe.
	ObservedAt time.Time

	// Running reports whether a probe cycle is currently in flight.
	Running bool

	// Class is the current failure classification.
	Class Class
}
