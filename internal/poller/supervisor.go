package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/jpalmerr/etagwatch/internal/status"
)

// Supervisor drives the poller in an unbounded loop.
//
// Every cycle is bracketed on the status board so concurrent readers can
// wait for quiescence. Unclassified cycle faults (errors the poller refused
// to absorb, and outright panics) are recorded as internal failures and the
// loop re-enters after a restart backoff. The supervisor never terminates on
// poller failure; only context cancellation stops it, and only between
// cycles.
type Supervisor struct {
	poller   *Poller
	board    *status.Board
	pub      Publisher
	logger   *slog.Logger
	interval time.Duration
	backoff  time.Duration
}

// NewSupervisor creates a Supervisor. interval is the delay between clean
// cycles; backoff is the delay after an internal failure.
func NewSupervisor(p *Poller, board *status.Board, pub Publisher, interval, backoff time.Duration, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		poller:   p,
		board:    board,
		pub:      pub,
		logger:   logger.With("component", "supervisor"),
		interval: interval,
		backoff:  backoff,
	}
}

// Run blocks, looping cycles until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	s.logger.Info("supervisor running", "interval", s.interval.String(), "backoff", s.backoff.String())
	defer s.poller.Close()

	for {
		delay := s.interval
		if s.runCycle(ctx) {
			delay = s.backoff
			s.logger.Warn("restarting poller after backoff", "backoff", s.backoff.String())
		}

		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopped")
			return
		case <-time.After(delay):
		}
	}
}

// runCycle runs one supervised cycle. Returns true if the cycle crashed and
// the restart backoff applies.
//
// The board's EndCycle is guaranteed to run on every path, including panics,
// so readers blocked in Await are never stranded.
func (s *Supervisor) runCycle(ctx context.Context) (crashed bool) {
	prev := s.board.Snapshot()
	s.board.BeginCycle()

	snap, err := s.safeRunCycle(ctx)

	if err != nil && ctx.Err() != nil {
		// shutdown raced the probe; not a crash
		s.board.EndCycle(prev)
		return false
	}

	if err != nil {
		snap = status.Snapshot{
			Token:      prev.Token,
			ObservedAt: prev.ObservedAt,
			Class:      status.ClassInternal,
		}
		s.board.EndCycle(snap)
		s.pub.Publish(status.Event{
			Kind:       status.EventFailure,
			Token:      prev.Token,
			ObservedAt: prev.ObservedAt,
			Class:      status.ClassInternal,
		})
		s.logger.Error("poll cycle failed", "error", err.Error())
		return true
	}

	s.board.EndCycle(snap)
	return false
}

// safeRunCycle invokes RunCycle with panic recovery. A panic is reported
// with a correlation ID so the log entry can be matched to the stack trace.
func (s *Supervisor) safeRunCycle(ctx context.Context) (snap status.Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("poll cycle panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("cycle panic (correlation_id: %s)", correlationID)
		}
	}()
	return s.poller.RunCycle(ctx)
}
