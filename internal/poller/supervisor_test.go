package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/etagwatch/internal/status"
)

func startSupervisor(t *testing.T, p *Poller, board *status.Board, pub Publisher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sup := NewSupervisor(p, board, pub, 10*time.Millisecond, 10*time.Millisecond, testLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("supervisor did not stop after cancel")
		}
	})
	return cancel
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// An unclassified fault marks the status internal, keeps the process
// running, and a later clean cycle clears the internal class.
func TestSupervisor_InternalFailureSelfHeals(t *testing.T) {
	srv := etagServer(t, func() string { return `"abc123"` })
	p, store, pub, board := newTestPoller(t, srv.URL, nil)

	// corrupt record: RunCycle escalates instead of classifying
	if err := os.WriteFile(store.inner.Path(), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	startSupervisor(t, p, board, pub)

	waitFor(t, func() bool {
		return board.Snapshot().Class == status.ClassInternal
	}, "status never became internal")

	waitFor(t, func() bool {
		for _, ev := range pub.all() {
			if ev.Kind == status.EventFailure && ev.Class == status.ClassInternal {
				return true
			}
		}
		return false
	}, "no internal failure event published")

	// repair the record; the restarted loop must recover on its own
	if err := os.Remove(store.inner.Path()); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		s := board.Snapshot()
		return s.Class == status.ClassNone && s.Token == "abc123"
	}, "internal class never cleared after repair")
}

// A panic inside the cycle is recovered, reported as internal, and the loop
// keeps running.
func TestSupervisor_RecoversFromPanic(t *testing.T) {
	srv := etagServer(t, func() string { return `"abc123"` })

	pub := &panicOncePublisher{}
	p, _, _, board := newTestPoller(t, srv.URL, nil)
	p.pub = pub

	startSupervisor(t, p, board, pub)

	waitFor(t, func() bool {
		return board.Snapshot().Class == status.ClassInternal
	}, "panic was not recorded as internal failure")

	// the loop survived: further cycles run and succeed
	waitFor(t, func() bool {
		s := board.Snapshot()
		return s.Class == status.ClassNone && s.Token == "abc123"
	}, "loop did not recover after panic")
}

// panicOncePublisher panics on the first published event and records the
// rest, simulating an unexpected fault mid-cycle.
type panicOncePublisher struct {
	capturePublisher
	panicked atomic.Bool
}

func (p *panicOncePublisher) Publish(ev status.Event) {
	if p.panicked.CompareAndSwap(false, true) {
		panic("publisher exploded")
	}
	p.capturePublisher.Publish(ev)
}

// Cancellation mid-probe must not be reported as a crash.
func TestSupervisor_ShutdownMidProbeIsNotACrash(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	p, _, pub, board := newTestPoller(t, srv.URL, func(c *Config) { c.Timeout = 5 * time.Second })
	cancel := startSupervisor(t, p, board, pub)

	waitFor(t, func() bool { return board.Snapshot().Running }, "cycle never started")
	cancel()

	waitFor(t, func() bool { return !board.Snapshot().Running }, "cycle never settled after cancel")

	if got := board.Snapshot().Class; got == status.ClassInternal {
		t.Errorf("shutdown recorded as internal failure, class = %v", got)
	}
	for _, ev := range pub.all() {
		if ev.Class == status.ClassInternal {
			t.Errorf("shutdown published internal failure event: %+v", ev)
		}
	}
}
