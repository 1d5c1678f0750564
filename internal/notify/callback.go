package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jpalmerr/etagwatch/internal/status"
)

// CallbackChannel invokes a user-supplied function for every event.
//
// Callbacks run inside a panic recovery boundary: a misbehaving callback is
// reported with a correlation ID and cannot take down the notifier.
type CallbackChannel struct {
	fn     func(status.Event)
	logger *slog.Logger
}

// NewCallbackChannel wraps fn as a notification channel.
func NewCallbackChannel(fn func(status.Event), logger *slog.Logger) *CallbackChannel {
	return &CallbackChannel{fn: fn, logger: logger.With("channel", "callback")}
}

// Name implements [Channel].
func (c *CallbackChannel) Name() string { return "callback" }

// Send implements [Channel].
func (c *CallbackChannel) Send(_ context.Context, ev status.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			c.logger.Error("event callback panicked",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
			)
			err = fmt.Errorf("callback panic (correlation_id: %s)", correlationID)
		}
	}()
	c.fn(ev)
	return nil
}
