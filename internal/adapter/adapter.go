package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"hwrelay/internal/config"
	"hwrelay/internal/domain"
)

// ErrAlreadyStarted is returned when Start is called more than once
var ErrAlreadyStarted = errors.New("adapter already started")

// EventKind identifies a raw channel event reported by an adapter
type EventKind int

const (
	// EventConnecting - a connection attempt is starting
	EventConnecting EventKind = iota
	// EventConnected - the channel is open and accepts writes
	EventConnected
	// EventDisconnected - the channel closed, or an attempt failed
	EventDisconnected
	// EventReceived - a frame or line arrived from the hardware
	EventReceived
)

func (k EventKind) String() string {
	switch k {
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReceived:
		return "received"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a notification from an adapter's I/O goroutines
type Event struct {
	Kind EventKind
	Data []byte // EventReceived payload
	Err  error  // cause of EventDisconnected, if any
}

// Adapter is the uniform face of the physical link to the hardware device.
// Exactly one adapter is active per process.
type Adapter interface {
	// Mode returns which transport this adapter implements
	Mode() domain.TransportMode

	// Target returns the device address, for logs and status
	Target() string

	// Start begins connecting. It does not block on I/O; open failures are
	// logged and reported through Events, never returned.
	Start(ctx context.Context) error

	// Send writes one command to the hardware if the channel is open.
	// Returns false when the command was dropped.
	Send(cmd domain.Command) bool

	// IsReady reports whether the channel is currently open
	IsReady() bool

	// Events delivers channel state changes and received data
	Events() <-chan Event

	// Close releases the channel and stops background goroutines
	Close() error
}

// Options carries test seams for building adapters. Zero values select the
// production implementations.
type Options struct {
	OpenPort PortOpener
	Dial     Dialer
	Clock    clock.Clock
}

// New builds the adapter for the resolved transport configuration
func New(t config.Transport, opts Options) Adapter {
	switch t.Mode {
	case domain.TransportSerial:
		cfg := DefaultSerialConfig()
		cfg.Path = t.SerialPort
		cfg.Baud = t.SerialBaud
		if opts.OpenPort != nil {
			cfg.Open = opts.OpenPort
		}
		return NewSerialAdapter(cfg)

	case domain.TransportRemote:
		cfg := DefaultRemoteConfig()
		cfg.URL = t.RemoteURL
		if t.ReconnectDelay > 0 {
			cfg.ReconnectDelay = t.ReconnectDelay
		}
		if t.DialTimeout > 0 {
			cfg.DialTimeout = t.DialTimeout
		}
		if t.WriteTimeout > 0 {
			cfg.WriteTimeout = t.WriteTimeout
		}
		if opts.Dial != nil {
			cfg.Dial = opts.Dial
		}
		if opts.Clock != nil {
			cfg.Clock = opts.Clock
		}
		return NewRemoteAdapter(cfg)

	default:
		return NewNoneAdapter()
	}
}

// eventBuffer is the capacity of each adapter's event channel
const eventBuffer = 64

// defaultSendQueue is how many commands may wait for a slow hardware write
// before Send starts dropping
const defaultSendQueue = 32
