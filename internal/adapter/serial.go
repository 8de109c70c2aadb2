package adapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"

	"hwrelay/internal/domain"
)

// PortOpener opens a serial device at the given baud rate
type PortOpener func(path string, baud int) (io.ReadWriteCloser, error)

// OpenSerialPort opens a real serial device, 8N1
func OpenSerialPort(path string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// SerialConfig holds configuration for the serial adapter
type SerialConfig struct {
	// Path is the device node (/dev/ttyUSB0, /dev/cu.wchusbserial10, COM3)
	Path string
	// Baud is the line speed
	Baud int
	// MaxLineBytes bounds a single line read from the device
	MaxLineBytes int
	// SendQueue is the number of commands waiting for the port writer
	SendQueue int
	// Open opens the device; defaults to OpenSerialPort
	Open PortOpener
}

// DefaultSerialConfig returns sensible defaults
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Baud:         115200,
		MaxLineBytes: 64 * 1024,
		SendQueue:    defaultSendQueue,
		Open:         OpenSerialPort,
	}
}

// SerialAdapter talks to a device attached to a local serial port. The port
// is opened once; after it closes the adapter stays down. Writes happen on a
// dedicated goroutine so Send never waits on the port.
type SerialAdapter struct {
	config SerialConfig
	events chan Event
	out    chan []byte
	port   io.ReadWriteCloser

	open      atomic.Bool
	started   atomic.Bool
	closeOnce sync.Once
	stopped   chan struct{}
	lost      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewSerialAdapter creates a new serial adapter
func NewSerialAdapter(config SerialConfig) *SerialAdapter {
	if config.Open == nil {
		config.Open = OpenSerialPort
	}
	if config.MaxLineBytes <= 0 {
		config.MaxLineBytes = 64 * 1024
	}
	if config.SendQueue <= 0 {
		config.SendQueue = defaultSendQueue
	}
	return &SerialAdapter{
		config:  config,
		events:  make(chan Event, eventBuffer),
		out:     make(chan []byte, config.SendQueue),
		stopped: make(chan struct{}),
		lost:    make(chan struct{}),
	}
}

func (a *SerialAdapter) Mode() domain.TransportMode { return domain.TransportSerial }

func (a *SerialAdapter) Target() string {
	return fmt.Sprintf("%s@%d", a.config.Path, a.config.Baud)
}

// Start opens the port. Failure is logged and not retried.
func (a *SerialAdapter) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	a.ctx, a.cancel = context.WithCancel(ctx)

	port, err := a.config.Open(a.config.Path, a.config.Baud)
	if err != nil {
		log.Printf("Serial error: %v", err)
		log.Printf("HINT: Close any serial monitor (e.g. Arduino IDE) that holds %s, then restart the relay.", a.config.Path)
		a.markLost()
		return nil
	}

	a.port = port
	a.open.Store(true)

	log.Printf("Connected to device via serial on %s", a.Target())
	a.emit(Event{Kind: EventConnected})

	a.wg.Add(3)
	go a.readLoop(port)
	go a.writeLoop(port)
	go func() {
		defer a.wg.Done()
		select {
		case <-a.ctx.Done():
			a.shutdown(nil, false)
		case <-a.lost:
		}
	}()

	return nil
}

// Send queues cmd followed by a newline for the port writer. It returns
// false without waiting when the port is closed or the queue is full.
func (a *SerialAdapter) Send(cmd domain.Command) bool {
	if !a.open.Load() {
		return false
	}

	line := make([]byte, 0, len(cmd)+1)
	line = append(line, cmd...)
	line = append(line, '\n')

	select {
	case a.out <- line:
		return true
	default:
		log.Printf("Serial queue full on %s, dropping command", a.config.Path)
		return false
	}
}

func (a *SerialAdapter) IsReady() bool {
	return a.open.Load()
}

func (a *SerialAdapter) Events() <-chan Event {
	return a.events
}

// Lost is closed once the port is gone for good (open failure or close)
func (a *SerialAdapter) Lost() <-chan struct{} {
	return a.lost
}

// Close closes the port and waits for the reader to exit
func (a *SerialAdapter) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	return nil
}

func (a *SerialAdapter) readLoop(port io.Reader) {
	defer a.wg.Done()

	scanner := bufio.NewScanner(port)
	scanner.Buffer(make([]byte, 0, 4096), a.config.MaxLineBytes)

	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		a.emit(Event{Kind: EventReceived, Data: line})
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	a.shutdown(err, true)
}

// writeLoop drains the send queue onto the port. A failed write closes the
// port like a read error does.
func (a *SerialAdapter) writeLoop(port io.Writer) {
	defer a.wg.Done()

	for {
		select {
		case line := <-a.out:
			if _, err := port.Write(line); err != nil {
				log.Printf("Serial write error on %s: %v", a.config.Path, err)
				a.shutdown(err, true)
				return
			}
		case <-a.stopped:
			return
		}
	}
}

// shutdown closes the port exactly once. notify controls whether the close
// is reported as a hardware loss (false during relay shutdown).
func (a *SerialAdapter) shutdown(cause error, notify bool) {
	a.closeOnce.Do(func() {
		a.open.Store(false)
		close(a.stopped)
		// Closing the port releases a blocked Write
		if a.port != nil {
			a.port.Close()
		}

		if !notify {
			return
		}
		log.Printf("Serial port %s closed (%v). Reconnect the device and restart the relay.", a.config.Path, cause)
		a.emit(Event{Kind: EventDisconnected, Err: cause})
		a.markLost()
	})
}

func (a *SerialAdapter) markLost() {
	select {
	case <-a.lost:
	default:
		close(a.lost)
	}
}

func (a *SerialAdapter) emit(ev Event) {
	select {
	case a.events <- ev:
	case <-a.ctx.Done():
	}
}
