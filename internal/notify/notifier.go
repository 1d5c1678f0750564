// Package notify fans watcher events out to the configured notification
// channels: email, the live-subscriber broadcast, and user callbacks.
//
// Dispatch is decoupled from the poll loop: events are queued and delivered
// by the notifier's own run loop, so a slow mail server never delays a probe
// cycle. Channel failures are logged and isolated; one channel failing never
// prevents delivery to the others and never propagates to the publisher.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/jpalmerr/etagwatch/internal/status"
)

const (
	// queueSize bounds the event backlog. The poller publishes at most one
	// event per cycle, so the queue only fills if dispatch stalls for many
	// cycles in a row.
	queueSize = 32

	// sendTimeout bounds a single channel delivery.
	sendTimeout = 30 * time.Second
)

// Channel is one notification target.
type Channel interface {
	// Name identifies the channel in logs.
	Name() string

	// Send delivers the event. Errors are reported to the notifier's log
	// and isolated; they never reach the event's publisher.
	Send(ctx context.Context, ev status.Event) error
}

// Notifier queues events and dispatches them to every channel.
type Notifier struct {
	channels []Channel
	queue    chan status.Event
	logger   *slog.Logger
}

// New creates a Notifier. Call [Notifier.Run] to start dispatching.
func New(channels []Channel, logger *slog.Logger) *Notifier {
	return &Notifier{
		channels: channels,
		queue:    make(chan status.Event, queueSize),
		logger:   logger.With("component", "notifier"),
	}
}

// Publish enqueues an event for dispatch. Non-blocking: if the queue is
// full the event is dropped and the drop is logged, so the poll loop can
// never be held up by notification backpressure.
func (n *Notifier) Publish(ev status.Event) {
	select {
	case n.queue <- ev:
	default:
		n.logger.Error("notification queue full, event dropped",
			"kind", int(ev.Kind),
			"class", ev.Class.String(),
		)
	}
}

// Run dispatches queued events until ctx is cancelled. Blocking; run in its
// own goroutine.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.queue:
			n.dispatch(ctx, ev)
		}
	}
}

// dispatch delivers one event to every channel, isolating failures.
func (n *Notifier) dispatch(ctx context.Context, ev status.Event) {
	for _, ch := range n.channels {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := ch.Send(sendCtx, ev)
		cancel()

		if err != nil {
			n.logger.Error("notification channel failed",
				"channel", ch.Name(),
				"error", err.Error(),
			)
		}
	}
}
