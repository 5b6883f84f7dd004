package live

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Outbound queue depth per client.
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is one connected live listener: a websocket connection plus its
// buffered outbound queue. Listeners only receive; inbound frames beyond
// pong control messages are discarded.
type Client struct {
	registry *Registry
	conn     *websocket.Conn
	send     chan []byte
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// enqueue queues a payload for the write pump without blocking. It returns
// false when the queue is full or the client is already closed.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend marks the client closed and closes its send queue, idempotently.
// Called by the registry with its own lock held; the ordering is always
// registry lock then client lock.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump pumps queued payloads to the websocket connection and keeps
// the connection alive with pings. One writePump runs per client; it exits
// when the send queue is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("websocket close failed", "error", err)
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("websocket write failed, removing client", "error", err)
				c.registry.Unregister(c)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.registry.Unregister(c)
				return
			}
		}
	}
}

// readPump consumes and discards inbound frames so control messages are
// processed, unregistering the client when the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.registry.Unregister(c)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("websocket close failed", "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
	}
}

// ServeWS upgrades an HTTP request to a websocket connection and registers
// the new listener with the registry.
func ServeWS(registry *Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", "error", err)
			return
		}

		client := &Client{
			registry: registry,
			conn:     conn,
			send:     make(chan []byte, sendBuffer),
			logger:   logger,
		}
		registry.Register(client)

		go client.writePump()
		go client.readPump()
	}
}
