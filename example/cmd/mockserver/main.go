// Standalone mock origin for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/etagwatch serve -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"
)

func main() {
	fmt.Println("Mock origin starting on :9999")
	fmt.Println("The resource ETag rotates every 20-60 seconds")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		mu           sync.Mutex
		revision     = 1
		nextChangeAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
	)

	http.HandleFunc("/resource", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(10+rand.Intn(40)) * time.Millisecond)

		mu.Lock()
		if time.Now().After(nextChangeAt) {
			revision++
			nextChangeAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
			slog.Info("resource changed", "revision", revision)
		}
		etag := fmt.Sprintf(`"rev-%d"`, revision)
		mu.Unlock()

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			fmt.Fprintf(w, "resource revision %s\n", etag)
		}
	})

	if err := http.ListenAndServe(":9999", nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
