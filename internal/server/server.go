// Package server exposes the watcher's HTTP surface: the health endpoint,
// a liveness root, and the websocket subscription upgrade. Every route
// passes the ingress limiter before it is handled.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jpalmerr/etagwatch/internal/hub"
	"github.com/jpalmerr/etagwatch/internal/ratelimit"
	"github.com/jpalmerr/etagwatch/internal/status"
)

const shutdownTimeout = 5 * time.Second

// Server handles the watcher's HTTP requests.
//
// Routes:
//   - GET /health: JSON status snapshot
//   - GET /ws: subscription upgrade
//   - GET /: liveness text
//   - anything else: 404
//
// Designed for graceful shutdown via context cancellation.
type Server struct {
	board      *status.Board
	limiter    *ratelimit.Limiter
	hub        *hub.Hub
	port       int
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a Server. It is not listening until [Server.Start].
func New(board *status.Board, limiter *ratelimit.Limiter, h *hub.Hub, port int, logger *slog.Logger) *Server {
	return &Server{
		board:   board,
		limiter: limiter,
		hub:     h,
		port:    port,
		logger:  logger.With("component", "server"),
	}
}

// Start begins serving in a background goroutine.
//
// The listener is created synchronously so a port conflict surfaces here
// rather than in a log line. The server shuts down gracefully when ctx is
// cancelled, with a bounded drain timeout.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/", s.handleRoot)

	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler: s.withIngress(mux),
		// BaseContext derives request contexts from the server context so
		// cancellation reaches long-lived handlers
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// withIngress applies the per-origin admission filter and request logging to
// every route.
func (s *Server) withIngress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := originOf(r)

		if !s.limiter.Admit(origin, ratelimit.KindHTTP) {
			http.Error(w, "You have been rate limited", http.StatusTooManyRequests)
			return
		}

		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "origin", origin)
		next.ServeHTTP(w, r)
	})
}

// healthResponse is the /health payload.
type healthResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	LatestToken   string `json:"latest_token"`
	PollerRunning bool   `json:"poller_running"`
}

// handleHealth reports the watcher's current snapshot. It intentionally
// does not wait for an in-flight cycle: the poller_running field carries
// that fact instead.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.board.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	resp := healthResponse{
		Status:        "OK",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		LatestToken:   snap.Token,
		PollerRunning: snap.Running,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode health response", "error", err)
	}
}

// handleRoot serves the liveness text and the 404 fallback.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "404 not found", http.StatusNotFound)
		return
	}
	if _, err := fmt.Fprintln(w, "Server running"); err != nil {
		s.logger.Error("failed to write liveness response", "error", err)
	}
}

// originOf extracts the client-identifying address used for rate limiting.
func originOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
