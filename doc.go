// Package etagwatch watches a single HTTP resource for changes to its
// validator token (the ETag header) and pushes notifications when it moves.
//
// The watcher probes the resource on a fixed interval, persists the last
// observed token to disk so restarts never re-announce a known state, and
// fans change and failure notifications out to email recipients, live
// websocket subscribers, and in-process callbacks. A supervisor keeps the
// poll loop alive across crashes with a restart backoff.
//
// # Quick Start
//
// Create a watcher and start it with graceful shutdown:
//
//	w, _ := etagwatch.New("https://example.com/resource")
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	w.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// The watcher uses the functional options pattern for configuration:
//
//	w, err := etagwatch.New("https://example.com/resource",
//	    etagwatch.WithPollInterval(time.Minute),
//	    etagwatch.WithPort(9090),
//	    etagwatch.WithStateFile("/var/lib/etagwatch/state.json"),
//	    etagwatch.WithChangeCallback(func(ev etagwatch.Event) {
//	        if ev.Kind == etagwatch.EventChange {
//	            log.Printf("resource changed: %s", ev.Token)
//	        }
//	    }),
//	)
//
// # Subscription Protocol
//
// Live subscribers connect over websocket at /ws and send the validator
// token they currently hold (or an empty message if they hold none). The
// server answers once any in-flight probe cycle has settled:
//
//	{"status": 0, "token": "abc123", "observed_at": 1717243200000}  // changed
//	{"status": 1}                                                    // up to date
//	{"status": 2}                                                    // internal error
//	{"status": 3}                                                    // unclassified error
//	{"status": 4}                                                    // resource unreachable
//
// Change broadcasts use the same payload shape and are pushed to every
// subscriber without being asked.
//
// # Architecture
//
// The watcher consists of several internal packages (under internal/):
//
//   - internal/poller: probe cycles, error classification, crash supervision
//   - internal/state: durable single-record token persistence
//   - internal/status: the shared status board with quiescence tracking
//   - internal/notify: notification fan-out to channels
//   - internal/hub: the websocket subscription service
//   - internal/ratelimit: per-origin request and connection quotas
//   - internal/server: the HTTP surface
//
// The internal packages are not part of the public API and may change
// without notice.
package etagwatch
