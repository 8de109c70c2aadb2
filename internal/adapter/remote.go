package adapter

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"hwrelay/internal/domain"
)

// Conn is the subset of *websocket.Conn the remote adapter uses
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a WebSocket to the device
type Dialer func(ctx context.Context, url string) (Conn, error)

// DialWebSocket returns a Dialer backed by gorilla/websocket
func DialWebSocket(handshakeTimeout time.Duration) Dialer {
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	return func(ctx context.Context, url string) (Conn, error) {
		conn, _, err := d.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// RemoteConfig holds configuration for the remote WebSocket adapter
type RemoteConfig struct {
	// URL is the device address (ws://192.168.1.40:81)
	URL string
	// ReconnectDelay is the fixed wait between a close and the next attempt
	ReconnectDelay time.Duration
	// DialTimeout bounds one connection attempt
	DialTimeout time.Duration
	// WriteTimeout bounds one command write
	WriteTimeout time.Duration
	// SendQueue is the number of commands waiting for the socket writer
	SendQueue int
	// Dial opens the socket; defaults to DialWebSocket(DialTimeout)
	Dial Dialer
	// Clock drives the reconnect timer
	Clock clock.Clock
}

// DefaultRemoteConfig returns sensible defaults
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		ReconnectDelay: 5 * time.Second,
		DialTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
		SendQueue:      defaultSendQueue,
		Clock:          clock.New(),
	}
}

// RemoteAdapter keeps a WebSocket open to a networked device, reconnecting at
// a constant interval for as long as the relay runs. Each session has its own
// send queue and writer goroutine, so Send never waits on the socket.
type RemoteAdapter struct {
	config RemoteConfig
	events chan Event

	mu   sync.Mutex // guards conn and out
	conn Conn
	out  chan []byte

	open     atomic.Bool
	started  atomic.Bool
	attempts atomic.Int64
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewRemoteAdapter creates a new remote adapter
func NewRemoteAdapter(config RemoteConfig) *RemoteAdapter {
	defaults := DefaultRemoteConfig()
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = defaults.ReconnectDelay
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaults.DialTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.SendQueue <= 0 {
		config.SendQueue = defaults.SendQueue
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if config.Dial == nil {
		config.Dial = DialWebSocket(config.DialTimeout)
	}
	return &RemoteAdapter{
		config: config,
		events: make(chan Event, eventBuffer),
	}
}

func (a *RemoteAdapter) Mode() domain.TransportMode { return domain.TransportRemote }

func (a *RemoteAdapter) Target() string { return a.config.URL }

// Start launches the connect/reconnect loop
func (a *RemoteAdapter) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(2)
	go a.run()
	go func() {
		defer a.wg.Done()
		<-a.ctx.Done()
		a.dropConn()
	}()

	return nil
}

// Send queues cmd for the socket writer, to go out as a single text frame.
// It returns false without waiting when the socket is not open or the queue
// is full.
func (a *RemoteAdapter) Send(cmd domain.Command) bool {
	if !a.open.Load() {
		return false
	}

	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	if out == nil {
		return false
	}

	select {
	case out <- cmd:
		return true
	default:
		log.Printf("Hardware send queue full, dropping command")
		return false
	}
}

func (a *RemoteAdapter) IsReady() bool {
	return a.open.Load()
}

func (a *RemoteAdapter) Events() <-chan Event {
	return a.events
}

// Attempts returns how many connection attempts have been made
func (a *RemoteAdapter) Attempts() int64 {
	return a.attempts.Load()
}

// Close stops reconnecting and closes the socket
func (a *RemoteAdapter) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	return nil
}

// run is the reconnect state machine. Each pass makes one attempt; every
// close schedules exactly one timer of ReconnectDelay before the next pass.
func (a *RemoteAdapter) run() {
	defer a.wg.Done()

	for {
		a.emit(Event{Kind: EventConnecting})
		a.attempts.Add(1)

		err := a.session()
		if a.ctx.Err() != nil {
			return
		}

		log.Printf("Hardware disconnected. Retrying in %s...", a.config.ReconnectDelay)
		timer := a.config.Clock.Timer(a.config.ReconnectDelay)
		a.emit(Event{Kind: EventDisconnected, Err: err})

		select {
		case <-a.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials and reads until the socket closes
func (a *RemoteAdapter) session() error {
	dialCtx, cancel := context.WithTimeout(a.ctx, a.config.DialTimeout)
	conn, err := a.config.Dial(dialCtx, a.config.URL)
	cancel()
	if err != nil {
		log.Printf("Hardware connection error: %v", err)
		return err
	}

	out := make(chan []byte, a.config.SendQueue)
	a.mu.Lock()
	a.conn = conn
	a.out = out
	a.open.Store(true)
	a.mu.Unlock()

	// Shutdown may have raced the dial
	if a.ctx.Err() != nil {
		a.dropConn()
		return a.ctx.Err()
	}

	done := make(chan struct{})
	defer close(done)
	a.wg.Add(1)
	go a.writeLoop(conn, out, done)

	log.Printf("Connected to device at %s", a.config.URL)
	a.emit(Event{Kind: EventConnected})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.dropConn()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		}
		a.emit(Event{Kind: EventReceived, Data: data})
	}
}

// writeLoop drains one session's send queue. A failed write closes the
// socket; the read loop observes the close and drives reconnect.
func (a *RemoteAdapter) writeLoop(conn Conn, out <-chan []byte, done <-chan struct{}) {
	defer a.wg.Done()

	for {
		select {
		case msg := <-out:
			conn.SetWriteDeadline(a.config.Clock.Now().Add(a.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("Hardware write error: %v", err)
				a.open.Store(false)
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

// dropConn marks the channel closed and releases the socket
func (a *RemoteAdapter) dropConn() {
	a.open.Store(false)

	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.out = nil
	a.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (a *RemoteAdapter) emit(ev Event) {
	select {
	case a.events <- ev:
	case <-a.ctx.Done():
	}
}
