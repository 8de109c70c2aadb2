package hub

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one browser control connection
type Client struct {
	id          string
	remote      string
	connectedAt time.Time
	conn        *websocket.Conn

	mu     sync.Mutex // guards send and closed
	send   chan []byte
	closed bool

	open atomic.Bool
}

// ClientInfo is a read-only view of a client for status output
type ClientInfo struct {
	ID          string    `json:"id"`
	Remote      string    `json:"remote"`
	ConnectedAt time.Time `json:"connected_at"`
}

func newClient(conn *websocket.Conn, remote string, buffer int) *Client {
	c := &Client{
		id:          uuid.NewString(),
		remote:      remote,
		connectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, buffer),
	}
	c.open.Store(true)
	return c
}

// ID returns the client's connection id
func (c *Client) ID() string { return c.id }

// IsOpen reports whether the connection can still receive messages
func (c *Client) IsOpen() bool { return c.open.Load() }

// Info returns a snapshot for status output
func (c *Client) Info() ClientInfo {
	return ClientInfo{ID: c.id, Remote: c.remote, ConnectedAt: c.connectedAt}
}

// enqueue queues msg for the write pump without blocking.
// Returns false if the client is closed or its queue is full.
func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close stops the write pump; safe to call more than once
func (c *Client) close() {
	c.open.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump forwards browser frames to the hub until the connection fails
func (c *Client) readPump(h *Hub) {
	defer func() {
		c.open.Store(false)
		if !h.post(ClientEvent{Kind: ClientDisconnected, Client: c}) {
			c.close()
		}
	}()

	c.conn.SetReadLimit(h.config.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(h.config.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("Browser %s read error: %v", c.id, err)
			}
			return
		}
		if !h.post(ClientEvent{Kind: ClientMessage, Client: c, Payload: data}) {
			return
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings
func (c *Client) writePump(cfg Config) {
	ticker := time.NewTicker(cfg.KeepAlive)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.open.Store(false)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.open.Store(false)
				return
			}
		}
	}
}
