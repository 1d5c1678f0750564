package etagwatch

import (
	"time"

	"github.com/jpalmerr/etagwatch/internal/status"
)

// FailureClass categorises what went wrong when a probe cycle fails.
//
// FailureClass is a string type that can hold one of four predefined values:
// [FailureNone], [FailureInternal], [FailureExternal], or [FailureTransient].
// Using a string type allows for easy JSON serialization and human-readable
// logging while maintaining type safety through the defined constants.
type FailureClass string

const (
	// FailureNone indicates the cycle completed without error.
	FailureNone FailureClass = "none"

	// FailureInternal indicates the watcher itself crashed or hit an
	// unexpected fault. The supervisor restarts the poll loop after these.
	FailureInternal FailureClass = "internal"

	// FailureExternal indicates the watched resource is down or unreachable
	// (connection refused, DNS resolution failure).
	FailureExternal FailureClass = "external"

	// FailureTransient indicates a fault expected to clear on its own: a
	// timeout, a TLS handshake problem, or a response without a usable
	// validator token.
	FailureTransient FailureClass = "transient"
)

// String returns the string representation of the failure class.
// This implements the fmt.Stringer interface.
func (c FailureClass) String() string {
	return string(c)
}

// EventKind distinguishes change notifications from failure notifications.
type EventKind int

const (
	// EventChange reports a newly observed validator token.
	EventChange EventKind = iota

	// EventFailure reports a failed probe cycle.
	EventFailure
)

// Event is delivered to callbacks registered with [WithChangeCallback].
//
// Event is immutable after creation. For [EventChange], Token and ObservedAt
// carry the new observation; for [EventFailure], Class says what failed and
// Token holds the last known token, if any.
type Event struct {
	// Kind says whether this is a change or a failure notification.
	Kind EventKind

	// Token is the validator token: the new one for changes, the last known
	// one for failures (empty if nothing was ever observed).
	Token string

	// ObservedAt is when the token was observed. Zero for failures.
	ObservedAt time.Time

	// Class is the failure category. [FailureNone] for changes.
	Class FailureClass
}

// publicEvent converts an internal event to the public API type.
func publicEvent(ev status.Event) Event {
	kind := EventChange
	if ev.Kind == status.EventFailure {
		kind = EventFailure
	}
	return Event{
		Kind:       kind,
		Token:      ev.Token,
		ObservedAt: ev.ObservedAt,
		Class:      publicClass(ev.Class),
	}
}

// publicClass converts an internal failure class to the public API type.
func publicClass(c status.Class) FailureClass {
	switch c {
	case status.ClassInternal:
		return FailureInternal
	case status.ClassExternal:
		return FailureExternal
	case status.ClassTransient:
		return FailureTransient
	default:
		return FailureNone
	}
}
