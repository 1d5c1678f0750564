// Package hub implements the live subscription service: a websocket endpoint
// where clients query the watcher's state and receive change broadcasts.
//
// Each subscriber gets its own outbound queue and writer goroutine, so a
// slow or stalled peer can never delay delivery to the others or block the
// notifier. Liveness is tracked with websocket ping/pong control frames;
// admission and message rates are bounded per origin.
package hub

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpalmerr/etagwatch/internal/ratelimit"
	"github.com/jpalmerr/etagwatch/internal/status"
)

// writeWait bounds a single websocket write.
const writeWait = 10 * time.Second

// sendQueueSize is each subscriber's outbound buffer. Messages to a
// subscriber whose buffer is full are dropped; ping/pong liveness reaps
// peers that stopped reading altogether.
const sendQueueSize = 16

// Config carries the hub's quota and liveness settings.
type Config struct {
	// HeartbeatInterval is how often each subscriber is pinged. The read
	// deadline is held at twice this interval and refreshed on pong, so a
	// subscriber that misses a pong is gone before the second ping after it.
	HeartbeatInterval time.Duration

	// MessageLimit is the number of messages a subscriber may send per
	// MessageWindow before the connection is closed for policy violation.
	MessageLimit int

	// MessageWindow is the rate-limit window for MessageLimit.
	MessageWindow time.Duration

	// MaxMessageBytes is the largest accepted client frame.
	MaxMessageBytes int64
}

// Hub owns the subscriber registry and the broadcast path.
//
// It also implements the notifier's Channel interface: published events are
// wire-encoded and pushed to every live subscriber.
type Hub struct {
	cfg      Config
	board    *status.Board
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// lifeCtx outlives individual requests; it gates quiescence waits and
	// is cancelled when the hub shuts down
	lifeCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// New creates a Hub.
func New(cfg Config, board *status.Board, limiter *ratelimit.Limiter, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:     cfg,
		board:   board,
		limiter: limiter,
		logger:  logger.With("component", "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// admission control is origin-address based, not Origin-header
			// based; browsers are not the expected client
			CheckOrigin: func(*http.Request) bool { return true },
		},
		lifeCtx: ctx,
		stop:    cancel,
		clients: make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and runs the subscription session.
//
// Admission: the origin's connection quota is checked right after the
// upgrade; an over-quota connection is closed with a policy violation code
// and no subscriber is registered.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	origin := originOf(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "origin", origin, "error", err.Error())
		return
	}

	if !h.limiter.Admit(origin, ratelimit.KindSubscribe) {
		closeWith(conn, websocket.ClosePolicyViolation, "connection quota exceeded")
		return
	}

	c := newClient(h, conn, origin)

	if !h.add(c) {
		// hub is shutting down; give the slot back and turn the peer away
		h.limiter.Release(origin, ratelimit.KindSubscribe)
		closeWith(conn, websocket.CloseGoingAway, "server shutting down")
		return
	}

	h.logger.Info("subscriber connected", "subscriber", c.id, "origin", origin)

	go c.writePump()
	c.readPump()
}

// Broadcast queues data for every live subscriber. Best-effort and
// non-blocking: subscribers with a full queue miss this message.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// stalled peer; liveness checks will reap it if it's dead
			h.logger.Warn("subscriber queue full, broadcast dropped", "subscriber", c.id)
		}
	}
}

// Name implements the notifier Channel interface.
func (h *Hub) Name() string { return "broadcast" }

// Send implements the notifier Channel interface: the event is wire-encoded
// once and fanned out to all subscribers.
func (h *Hub) Send(_ context.Context, ev status.Event) error {
	h.Broadcast(eventPayload(ev).encode())
	return nil
}

// Shutdown stops admitting subscribers, tells every peer the server is
// going away, and force-closes whatever remains after the grace period.
func (h *Hub) Shutdown(grace time.Duration) {
	h.mu.Lock()
	h.closed = true
	peers := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		peers = append(peers, c)
	}
	h.mu.Unlock()

	h.stop()

	for _, c := range peers {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
	}

	deadline := time.After(grace)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			h.mu.Lock()
			for c := range h.clients {
				c.conn.Close()
			}
			h.mu.Unlock()
			return
		case <-ticker.C:
			h.mu.Lock()
			n := len(h.clients)
			h.mu.Unlock()
			if n == 0 {
				return
			}
		}
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// add registers a subscriber; returns false if the hub has shut down.
func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// remove drops a subscriber and releases its origin's connection slot.
// Idempotent: only the first call for a given client does the work.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	if present {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	if present {
		h.limiter.Release(c.origin, ratelimit.KindSubscribe)
		c.closeSend()
		h.logger.Info("subscriber disconnected", "subscriber", c.id, "origin", c.origin)
	}
}

// originOf extracts the client-identifying address used for quotas.
func originOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// closeWith sends a close frame and drops the connection.
func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
	conn.Close()
}
