package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockOrigin serves a single resource whose ETag rotates every 20-60 seconds.
type mockOrigin struct {
	mu           sync.Mutex
	revision     int
	nextChangeAt time.Time
}

// StartMockOriginServer runs a mock origin whose resource changes on its own
// schedule. Call this in a goroutine before starting the watcher.
func StartMockOriginServer(addr string) {
	origin := &mockOrigin{
		revision:     1,
		nextChangeAt: time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second),
	}

	http.HandleFunc("/resource", func(w http.ResponseWriter, r *http.Request) {
		// simulate small latency variance
		time.Sleep(time.Duration(10+rand.Intn(40)) * time.Millisecond)

		origin.mu.Lock()
		if time.Now().After(origin.nextChangeAt) {
			origin.revision++
			// schedule next change in 20-60 seconds
			origin.nextChangeAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
			slog.Info("resource changed", "revision", origin.revision)
		}
		etag := fmt.Sprintf(`"rev-%d"`, origin.revision)
		origin.mu.Unlock()

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			fmt.Fprintf(w, "resource revision %s\n", etag)
		}
	})

	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("mock origin error", "error", err)
	}
}
