package status

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBoard_InitialSnapshot(t *testing.T) {
	b := NewBoard()

	s := b.Snapshot()
	if s.Running {
		t.Error("new board reports Running = true, want false")
	}
	if s.Token != "" {
		t.Errorf("new board Token = %q, want empty", s.Token)
	}
	if s.Class != ClassNone {
		t.Errorf("new board Class = %v, want ClassNone", s.Class)
	}
}

func TestBoard_AwaitIdleReturnsImmediately(t *testing.T) {
	b := NewBoard()
	b.EndCycle(Snapshot{Token: "abc123", ObservedAt: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s, err := b.Await(ctx)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if s.Token != "abc123" {
		t.Errorf("Await() Token = %q, want %q", s.Token, "abc123")
	}
}

func TestBoard_AwaitBlocksUntilEndCycle(t *testing.T) {
	b := NewBoard()
	b.BeginCycle()

	released := make(chan Snapshot, 1)
	go func() {
		s, err := b.Await(context.Background())
		if err != nil {
			t.Errorf("Await() error = %v", err)
		}
		released <- s
	}()

	// the waiter must not be released while the cycle is in flight
	select {
	case <-released:
		t.Fatal("Await() returned while a cycle was running")
	case <-time.After(50 * time.Millisecond):
	}

	b.EndCycle(Snapshot{Token: "abc124", Class: ClassNone})

	select {
	case s := <-released:
		if s.Token != "abc124" {
			t.Errorf("Await() Token = %q, want %q", s.Token, "abc124")
		}
		if s.Running {
			t.Error("Await() returned a running snapshot")
		}
	case <-time.After(time.Second):
		t.Fatal("Await() did not return after EndCycle")
	}
}

func TestBoard_AwaitHonoursContext(t *testing.T) {
	b := NewBoard()
	b.BeginCycle()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Await(ctx)
	if err == nil {
		t.Fatal("Await() = nil error, want context deadline error")
	}
}

func TestBoard_SnapshotIsWholeNotTorn(t *testing.T) {
	b := NewBoard()

	var wg sync.WaitGroup
	done := make(chan struct{})

	// writer flips between two self-consistent snapshots
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			b.BeginCycle()
			if i%2 == 0 {
				b.EndCycle(Snapshot{Token: "aaa", Class: ClassNone})
			} else {
				b.EndCycle(Snapshot{Token: "", Class: ClassTransient})
			}
		}
	}()

	// readers must only ever see one of the two published pairs
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				s := b.Snapshot()
				okA := s.Token == "aaa" && s.Class == ClassNone
				okB := s.Token == "" && (s.Class == ClassTransient || s.Class == ClassNone)
				if !okA && !okB {
					t.Errorf("torn snapshot: %+v", s)
					return
				}
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()
}

func TestClass_String(t *testing.T) {
	cases := map[Class]string{
		ClassNone:      "none",
		ClassInternal:  "internal",
		ClassExternal:  "external",
		ClassTransient: "transient",
		Class(99):      "unknown",
	}
	for c, want := range cases {
		if got := c.String(); got != want {
			t.Errorf("Class(%d).String() = %q, want %q", int(c), got, want)
		}
	}
}
