package ratelimit

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLimiter_HTTPWithinLimit(t *testing.T) {
	l := New(3, 1, time.Minute, testLogger())

	for i := 0; i < 3; i++ {
		if !l.Admit("10.0.0.1", KindHTTP) {
			t.Fatalf("Admit() attempt %d = false, want true", i+1)
		}
	}
}

func TestLimiter_HTTPOverLimit(t *testing.T) {
	l := New(2, 1, time.Minute, testLogger())

	l.Admit("10.0.0.1", KindHTTP)
	l.Admit("10.0.0.1", KindHTTP)

	if l.Admit("10.0.0.1", KindHTTP) {
		t.Error("Admit() over limit = true, want false")
	}

	// a different origin is unaffected
	if !l.Admit("10.0.0.2", KindHTTP) {
		t.Error("Admit() for fresh origin = false, want true")
	}
}

func TestLimiter_HTTPWindowResetsLazily(t *testing.T) {
	now := time.Now()
	l := New(1, 1, time.Minute, testLogger())
	l.now = func() time.Time { return now }

	if !l.Admit("10.0.0.1", KindHTTP) {
		t.Fatal("first Admit() = false, want true")
	}
	if l.Admit("10.0.0.1", KindHTTP) {
		t.Fatal("second Admit() in same window = true, want false")
	}

	now = now.Add(61 * time.Second)
	if !l.Admit("10.0.0.1", KindHTTP) {
		t.Error("Admit() after window expiry = false, want true")
	}
}

// The number of simultaneously admitted subscription connections from one
// origin never exceeds the quota; the (N+1)-th concurrent attempt is refused.
func TestLimiter_SubscribeConcurrentQuota(t *testing.T) {
	const quota = 3
	l := New(30, quota, time.Minute, testLogger())

	for i := 0; i < quota; i++ {
		if !l.Admit("10.0.0.1", KindSubscribe) {
			t.Fatalf("Admit() connection %d = false, want true", i+1)
		}
	}
	if l.Admit("10.0.0.1", KindSubscribe) {
		t.Error("Admit() connection beyond quota = true, want false")
	}
}

func TestLimiter_SubscribeReleaseFreesSlot(t *testing.T) {
	l := New(30, 1, time.Minute, testLogger())

	if !l.Admit("10.0.0.1", KindSubscribe) {
		t.Fatal("first Admit() = false, want true")
	}
	if l.Admit("10.0.0.1", KindSubscribe) {
		t.Fatal("second Admit() = true, want false")
	}

	l.Release("10.0.0.1", KindSubscribe)

	if !l.Admit("10.0.0.1", KindSubscribe) {
		t.Error("Admit() after Release() = false, want true")
	}
}

func TestLimiter_ReleaseUnknownOriginIsNoOp(t *testing.T) {
	l := New(30, 1, time.Minute, testLogger())

	// must not panic or underflow
	l.Release("10.0.0.9", KindSubscribe)
	l.Release("10.0.0.9", KindHTTP)

	if !l.Admit("10.0.0.9", KindSubscribe) {
		t.Error("Admit() after spurious Release() = false, want true")
	}
}

func TestLimiter_SweepEvictsExpiredWindows(t *testing.T) {
	now := time.Now()
	l := New(30, 2, time.Minute, testLogger())
	l.now = func() time.Time { return now }

	l.Admit("10.0.0.1", KindHTTP)
	l.Admit("10.0.0.2", KindHTTP)
	l.Admit("10.0.0.3", KindSubscribe)

	if got := l.tracked(); got != 3 {
		t.Fatalf("tracked() = %d, want 3", got)
	}

	now = now.Add(2 * time.Minute)
	l.Sweep()

	// expired HTTP windows evicted; the live subscription slot survives
	if got := l.tracked(); got != 1 {
		t.Errorf("tracked() after sweep = %d, want 1", got)
	}

	l.Release("10.0.0.3", KindSubscribe)
	l.Sweep()
	if got := l.tracked(); got != 0 {
		t.Errorf("tracked() after release+sweep = %d, want 0", got)
	}
}

func TestLimiter_ZeroLimitDeniesEverything(t *testing.T) {
	l := New(0, 0, time.Minute, testLogger())

	if l.Admit("10.0.0.1", KindHTTP) {
		t.Error("Admit(http) with zero limit = true, want false")
	}
	if l.Admit("10.0.0.1", KindSubscribe) {
		t.Error("Admit(subscribe) with zero limit = true, want false")
	}
}
