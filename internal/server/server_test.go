package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/etagwatch/internal/hub"
	"github.com/jpalmerr/etagwatch/internal/ratelimit"
	"github.com/jpalmerr/etagwatch/internal/status"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, httpLimit int) (*Server, *status.Board) {
	t.Helper()
	board := status.NewBoard()
	limiter := ratelimit.New(httpLimit, 10, time.Minute, testLogger())
	h := hub.New(hub.Config{
		HeartbeatInterval: time.Second,
		MessageLimit:      100,
		MessageWindow:     time.Minute,
		MaxMessageBytes:   1024,
	}, board, limiter, testLogger())
	t.Cleanup(func() { h.Shutdown(100 * time.Millisecond) })
	return New(board, limiter, h, 0, testLogger()), board
}

// --- Tests ---

func TestHandleHealth_ReportsSnapshot(t *testing.T) {
	srv, board := newTestServer(t, 100)

	observed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	board.EndCycle(status.Snapshot{Token: "abc123", ObservedAt: observed})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != "OK" {
		t.Errorf("Status = %q, want %q", resp.Status, "OK")
	}
	if resp.LatestToken != "abc123" {
		t.Errorf("LatestToken = %q, want %q", resp.LatestToken, "abc123")
	}
	if resp.PollerRunning {
		t.Error("PollerRunning = true, want false")
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC3339: %v", resp.Timestamp, err)
	}
}

func TestHandleHealth_DoesNotWaitForInFlightCycle(t *testing.T) {
	srv, board := newTestServer(t, 100)

	board.BeginCycle()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleHealth(rec, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("health handler blocked on in-flight cycle")
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.PollerRunning {
		t.Error("PollerRunning = false, want true during a cycle")
	}
}

func TestHandleHealth_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()

	srv.handleHealth(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleRoot_Liveness(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	srv.handleRoot(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "Server running") {
		t.Errorf("body = %q, want it to contain %q", rec.Body.String(), "Server running")
	}
}

func TestHandleRoot_UnknownPathIs404(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()

	srv.handleRoot(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestIngress_RateLimitsPerOrigin(t *testing.T) {
	srv, _ := newTestServer(t, 2)

	handler := srv.withIngress(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, code, http.StatusOK)
		}
	}
	if code := do("10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Errorf("over-limit request: status = %d, want %d", code, http.StatusTooManyRequests)
	}

	// a different origin has its own window
	if code := do("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("other origin: status = %d, want %d", code, http.StatusOK)
	}
}

func TestIngress_RateLimitAppliesToAllRoutes(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/", srv.handleRoot)
	handler := srv.withIngress(mux)

	for _, path := range []string{"/health", "/", "/ws"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.3:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, http.StatusTooManyRequests)
		}
	}
}

// --- Server Start Tests ---

func TestStart_AvailablePort_ReturnsNil(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Errorf("Start() on available port returned error: %v", err)
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	// occupy a port
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port

	board := status.NewBoard()
	limiter := ratelimit.New(100, 10, time.Minute, testLogger())
	h := hub.New(hub.Config{HeartbeatInterval: time.Second, MessageLimit: 100, MessageWindow: time.Minute, MaxMessageBytes: 1024}, board, limiter, testLogger())
	defer h.Shutdown(100 * time.Millisecond)
	srv := New(board, limiter, h, port, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}

func TestStart_ShutsDownOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	board := status.NewBoard()
	limiter := ratelimit.New(100, 10, time.Minute, testLogger())
	h := hub.New(hub.Config{HeartbeatInterval: time.Second, MessageLimit: 100, MessageWindow: time.Minute, MaxMessageBytes: 1024}, board, limiter, testLogger())
	defer h.Shutdown(100 * time.Millisecond)
	srv := New(board, limiter, h, port, testLogger())

	ctx, cancel := context.WithCancel(context.Background())

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}

	// server answers while running
	url := fmt.Sprintf("http://127.0.0.1:%d/", port)
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request to running server failed: %v", err)
	}
	_ = resp.Body.Close()

	cancel()

	// after shutdown, new connections are refused
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := http.Get(url); err != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server still accepting connections after context cancellation")
}
