// Package hub terminates browser control connections. It keeps the client
// registry, fans liveness events out to every open client and reports client
// activity as typed events for the relay dispatcher.
package hub

import (
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hwrelay/internal/domain"
)

// ClientEventKind identifies browser activity
type ClientEventKind int

const (
	ClientConnected ClientEventKind = iota
	ClientMessage
	ClientDisconnected
)

// ClientEvent is posted by connection goroutines for the dispatcher
type ClientEvent struct {
	Kind    ClientEventKind
	Client  *Client
	Payload domain.Command
}

// Config holds hub settings
type Config struct {
	// AllowedOrigins restricts browser origins; empty allows any
	AllowedOrigins []string
	// KeepAlive is the ping period for idle connections
	KeepAlive time.Duration
	// WriteTimeout bounds a single frame write to a browser
	WriteTimeout time.Duration
	// MaxMessageBytes bounds a browser command frame
	MaxMessageBytes int64
	// SendBuffer is the per-client outbound queue length
	SendBuffer int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		KeepAlive:       30 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxMessageBytes: 64 * 1024,
		SendBuffer:      16,
	}
}

func (c Config) pongWait() time.Duration {
	return c.KeepAlive * 2
}

// Hub manages browser WebSocket connections
type Hub struct {
	config   Config
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients []*Client // registration order

	events   chan ClientEvent
	done     chan struct{}
	shutdown sync.Once
}

// New creates a new Hub
func New(config Config) *Hub {
	defaults := DefaultConfig()
	if config.KeepAlive <= 0 {
		config.KeepAlive = defaults.KeepAlive
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = defaults.MaxMessageBytes
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaults.SendBuffer
	}

	h := &Hub{
		config: config,
		events: make(chan ClientEvent, 256),
		done:   make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Events returns browser activity for the dispatcher
func (h *Hub) Events() <-chan ClientEvent {
	return h.events
}

// Add registers a client. Called only from the dispatcher.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	if !slices.Contains(h.clients, c) {
		h.clients = append(h.clients, c)
	}
	total := len(h.clients)
	h.mu.Unlock()

	log.Printf("Browser connected: %s from %s (total: %d)", c.id, c.remote, total)
}

// Remove deregisters a client and stops its writer. Safe to repeat.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	i := slices.Index(h.clients, c)
	if i >= 0 {
		h.clients = slices.Delete(h.clients, i, i+1)
	}
	total := len(h.clients)
	h.mu.Unlock()

	c.close()
	if i >= 0 {
		log.Printf("Browser disconnected: %s (total: %d)", c.id, total)
	}
}

// SendTo delivers ev to a single client
func (h *Hub) SendTo(c *Client, ev domain.LivenessEvent) bool {
	msg, err := ev.Marshal()
	if err != nil {
		log.Printf("Failed to marshal event: %v", err)
		return false
	}
	if !c.IsOpen() {
		return false
	}
	return c.enqueue(msg)
}

// Broadcast delivers ev to every open client in registration order and
// returns how many clients it was queued for. Closed clients are skipped;
// a client whose queue is full is removed and closed.
func (h *Hub) Broadcast(ev domain.LivenessEvent) int {
	msg, err := ev.Marshal()
	if err != nil {
		log.Printf("Failed to marshal event: %v", err)
		return 0
	}

	h.mu.RLock()
	clients := slices.Clone(h.clients)
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if !c.IsOpen() {
			continue
		}
		if c.enqueue(msg) {
			delivered++
			continue
		}
		// A browser that misses a transition would show stale hardware
		// state, so drop it and let it reconnect for a fresh snapshot.
		log.Printf("Browser %s fell behind and missed %s, disconnecting", c.id, ev)
		h.Remove(c)
	}
	return delivered
}

// Count returns the number of registered clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Clients returns registered clients in registration order
func (h *Hub) Clients() []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]ClientInfo, 0, len(h.clients))
	for _, c := range h.clients {
		infos = append(infos, c.Info())
	}
	return infos
}

// Shutdown closes every client and stops accepting events
func (h *Hub) Shutdown() {
	h.shutdown.Do(func() {
		close(h.done)
	})

	h.mu.Lock()
	clients := h.clients
	h.clients = nil
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// ServeHTTP upgrades a browser connection and runs it until it closes
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response
		log.Printf("WebSocket upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	client := newClient(conn, r.RemoteAddr, h.config.SendBuffer)
	if !h.post(ClientEvent{Kind: ClientConnected, Client: client}) {
		conn.Close()
		return
	}

	go client.writePump(h.config)
	client.readPump(h)
}

// post hands an event to the dispatcher; false once the hub is shut down
func (h *Hub) post(ev ClientEvent) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients don't send Origin
		return true
	}
	return slices.Contains(h.config.AllowedOrigins, origin)
}
