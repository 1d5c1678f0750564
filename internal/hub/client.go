package hub

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// client is one live subscriber connection.
//
// Two goroutines serve it: readPump (queries, rate accounting, pong
// handling) and writePump (responses, broadcasts, heartbeat pings). The
// outbound queue decouples the two, so composing a response never waits on
// the peer's socket.
type client struct {
	id     string
	origin string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte

	sendOnce sync.Once

	// message-rate window; touched only by readPump
	msgCount    int
	windowReset time.Time
}

func newClient(h *Hub, conn *websocket.Conn, origin string) *client {
	return &client{
		id:     uuid.NewString(),
		origin: origin,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
	}
}

// closeSend shuts the outbound queue, waking writePump. Safe to call more
// than once.
func (c *client) closeSend() {
	c.sendOnce.Do(func() { close(c.send) })
}

// pongWait returns how long the peer has to answer a heartbeat.
func (c *client) pongWait() time.Duration {
	return 2 * c.hub.cfg.HeartbeatInterval
}

// readPump consumes client queries until the connection dies or the peer
// violates a quota. It owns deregistration: whatever ends the loop, the
// subscriber is removed and its connection slot released.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Warn("subscriber read failed", "subscriber", c.id, "error", err.Error())
			}
			return
		}

		if !c.allowMessage() {
			c.hub.logger.Warn("subscriber message rate exceeded", "subscriber", c.id, "origin", c.origin)
			closeWith(c.conn, websocket.ClosePolicyViolation, "message rate exceeded")
			return
		}

		c.handleQuery(strings.TrimSpace(string(msg)))
	}
}

// handleQuery answers one token query. The response is composed only after
// any in-flight probe cycle has settled, so it is never derived from a
// half-updated status. Only this subscriber's session waits; others are
// unaffected.
func (c *client) handleQuery(clientToken string) {
	snap, err := c.hub.board.Await(c.hub.lifeCtx)
	if err != nil {
		// hub shut down while waiting
		return
	}

	resp := responseFor(clientToken, snap).encode()
	select {
	case c.send <- resp:
	default:
		c.hub.logger.Warn("subscriber queue full, response dropped", "subscriber", c.id)
	}
}

// allowMessage counts one inbound message against the subscriber's window.
func (c *client) allowMessage() bool {
	now := time.Now()
	if now.After(c.windowReset) {
		c.msgCount = 0
		c.windowReset = now.Add(c.hub.cfg.MessageWindow)
	}
	c.msgCount++
	return c.msgCount <= c.hub.cfg.MessageLimit
}

// writePump drains the outbound queue and sends heartbeat pings.
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
