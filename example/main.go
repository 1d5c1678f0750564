package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/etagwatch"
)

func main() {
	// start mock origin (see mock_server.go)
	go StartMockOriginServer(":9999")
	time.Sleep(100 * time.Millisecond)

	w, err := etagwatch.New("http://localhost:9999/resource",
		etagwatch.WithPollInterval(5*time.Second),
		etagwatch.WithPort(8080),
		etagwatch.WithStateFile("example-state.json"),
		etagwatch.WithChangeCallback(func(ev etagwatch.Event) {
			switch ev.Kind {
			case etagwatch.EventChange:
				slog.Info("callback: resource changed", "token", ev.Token)
			case etagwatch.EventFailure:
				slog.Warn("callback: probe failed", "class", ev.Class.String())
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   etagwatch Demo                                      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Watching http://localhost:9999/resource             ║")
	fmt.Println("  ║   The mock origin rotates its ETag every 20-60s       ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Health:    http://localhost:8080/health             ║")
	fmt.Println("  ║   Subscribe: ws://localhost:8080/ws                   ║")
	fmt.Println("  ║     send your current token (or an empty message)     ║")
	fmt.Println("  ║     and receive change pushes as they happen          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		slog.Error("watcher error", "error", err)
		os.Exit(1)
	}
}
