// Package status holds the watcher's in-memory state: the event vocabulary
// shared by the poller, notifier, and subscription hub, and the Board that
// publishes consistent snapshots of the poll loop to concurrent readers.
package status

import (
	"context"
	"sync"
)

// Board is the single shared view of the poll loop's state.
//
// It has exactly one writer (the supervisor driving the poller) and many
// readers (HTTP handlers, subscribers). The writer brackets every probe cycle
// with [Board.BeginCycle] and [Board.EndCycle]; readers either take the
// current [Snapshot] as-is or use [Board.Await] to block until no cycle is in
// flight, guaranteeing the answer is not derived from a half-updated cycle.
//
// Snapshots are swapped whole under the lock rather than mutated field by
// field, so a reader can never observe a torn state.
type Board struct {
	mu    sync.Mutex
	cur   Snapshot
	quiet chan struct{} // closed whenever no cycle is running
}

// NewBoard returns a Board in the idle state with an empty snapshot.
func NewBoard() *Board {
	quiet := make(chan struct{})
	close(quiet)
	return &Board{quiet: quiet}
}

// BeginCycle marks a probe cycle as in flight.
//
// Readers calling [Board.Await] after this point block until [Board.EndCycle].
// The snapshot's other fields keep their previous-cycle values.
func (b *Board) BeginCycle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cur.Running {
		return
	}
	b.cur.Running = true
	b.quiet = make(chan struct{})
}

// EndCycle publishes the cycle's outcome and releases all waiting readers.
//
// The snapshot is stored with Running forced to false regardless of the
// caller's value.
func (b *Board) EndCycle(s Snapshot) {
	s.Running = false
	b.mu.Lock()
	defer b.mu.Unlock()
	wasRunning := b.cur.Running
	b.cur = s
	if wasRunning {
		close(b.quiet)
	}
}

// Snapshot returns the current state. Safe for concurrent use.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur
}

// Await blocks until no probe cycle is in flight, then returns the settled
// snapshot. Returns the context's error if ctx is done first.
//
// The wait is event-driven (a channel closed by [Board.EndCycle]); there is
// no internal polling interval.
func (b *Board) Await(ctx context.Context) (Snapshot, error) {
	for {
		b.mu.Lock()
		cur, quiet := b.cur, b.quiet
		b.mu.Unlock()

		if !cur.Running {
			return cur, nil
		}

		select {
		case <-quiet:
			// re-check: a new cycle may have begun already
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
}
