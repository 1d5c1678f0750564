// Package ratelimit implements per-origin admission control for the HTTP
// surface and the subscription service.
//
// Two kinds of admission exist with different semantics:
//
//   - [KindHTTP]: a fixed window counter. Each origin may make a bounded
//     number of requests per window; the window resets lazily on the first
//     check after expiry. Nothing is released; requests just age out.
//   - [KindSubscribe]: a concurrent slot count. Each origin may hold a
//     bounded number of live subscription connections; a slot is returned
//     via [Limiter.Release] when the connection goes away.
//
// Origins absent from the map are equivalent to a fresh, empty window. A
// periodic sweep evicts expired and empty entries so the maps never retain
// history for origins that stopped talking to us.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind selects which admission rule applies.
type Kind int

const (
	// KindHTTP admits plain HTTP requests.
	KindHTTP Kind = iota

	// KindSubscribe admits new subscription connections.
	KindSubscribe
)

// window tracks one origin's usage for one kind.
type window struct {
	count   int
	resetAt time.Time // zero for subscription slots; they never expire
}

type key struct {
	origin string
	kind   Kind
}

// Limiter is the per-origin admission filter.
//
// The internal map is owned exclusively by the Limiter; other components
// interact only through Admit/Release. Safe for concurrent use.
type Limiter struct {
	httpLimit  int
	connLimit  int
	httpWindow time.Duration

	mu      sync.Mutex
	windows map[key]*window

	logger *slog.Logger
	now    func() time.Time // test hook
}

// New creates a Limiter.
//
// httpLimit is the number of HTTP requests allowed per origin per window;
// connLimit is the number of simultaneous subscription connections allowed
// per origin. A limit of zero or less disables that kind entirely (every
// attempt is denied).
func New(httpLimit, connLimit int, httpWindow time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		httpLimit:  httpLimit,
		connLimit:  connLimit,
		httpWindow: httpWindow,
		windows:    make(map[key]*window),
		logger:     logger,
		now:        time.Now,
	}
}

// Admit reports whether the origin may proceed, counting the attempt if so.
//
// For [KindHTTP] the attempt is counted even when denied, matching the usual
// abuse-limiter behavior of not letting denied traffic reset the meter. For
// [KindSubscribe] a denied attempt takes no slot.
func (l *Limiter) Admit(origin string, kind Kind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{origin: origin, kind: kind}
	w := l.windows[k]

	switch kind {
	case KindHTTP:
		now := l.now()
		if w == nil || now.After(w.resetAt) {
			w = &window{resetAt: now.Add(l.httpWindow)}
			l.windows[k] = w
		}
		w.count++
		if w.count > l.httpLimit {
			l.logger.Warn("http request rate limited", "origin", origin, "count", w.count)
			return false
		}
		return true

	case KindSubscribe:
		if w == nil {
			w = &window{}
			l.windows[k] = w
		}
		if w.count >= l.connLimit {
			l.logger.Warn("subscription connection refused", "origin", origin, "active", w.count)
			return false
		}
		w.count++
		return true

	default:
		return false
	}
}

// Release returns a subscription slot for the origin. Calling it for
// [KindHTTP], or for an origin with no live slots, is a no-op.
func (l *Limiter) Release(origin string, kind Kind) {
	if kind != KindSubscribe {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{origin: origin, kind: kind}
	w := l.windows[k]
	if w == nil || w.count == 0 {
		return
	}
	w.count--
	if w.count == 0 {
		delete(l.windows, k)
	}
}

// Sweep evicts expired HTTP windows and empty entries.
func (l *Limiter) Sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, w := range l.windows {
		switch k.kind {
		case KindHTTP:
			if now.After(w.resetAt) {
				delete(l.windows, k)
			}
		case KindSubscribe:
			if w.count == 0 {
				delete(l.windows, k)
			}
		}
	}
}

// Run sweeps periodically until ctx is cancelled. Blocking; run in its own
// goroutine.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// tracked returns the number of live entries. Used by tests and the sweep's
// memory-bound property.
func (l *Limiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
