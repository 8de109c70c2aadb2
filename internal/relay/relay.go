// Package relay wires the hardware adapter, the liveness tracker and the
// browser hub together.
//
// A Relay is built once at startup and runs a single dispatcher goroutine.
// Adapter I/O goroutines and browser connection goroutines only post typed
// events; every registry change, tracker transition and hardware write
// happens on the dispatcher, so a browser connecting during a transition
// sees either the snapshot or the broadcast, never both.
package relay

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/multierr"

	"hwrelay/internal/adapter"
	"hwrelay/internal/domain"
	"hwrelay/internal/hub"
	"hwrelay/internal/liveness"
	"hwrelay/internal/metrics"
	"hwrelay/internal/repository"
)

// Deps are the collaborators a Relay owns
type Deps struct {
	Adapter adapter.Adapter
	Hub     *hub.Hub
	Metrics *metrics.Metrics
	// Journal is optional; nil disables activity recording
	Journal       repository.Journal
	JournalRetain int
}

// Relay is the relay-process context
type Relay struct {
	adapter adapter.Adapter
	tracker *liveness.Tracker
	hub     *hub.Hub
	metrics *metrics.Metrics
	journal *recorder
	started time.Time
}

// Status is a point-in-time view of the relay for the HTTP API
type Status struct {
	Mode           domain.TransportMode `json:"mode"`
	Target         string               `json:"target,omitempty"`
	State          domain.SessionState  `json:"state"`
	HardwareReady  bool                 `json:"hardware_ready"`
	Clients        int                  `json:"clients"`
	Browsers       []hub.ClientInfo     `json:"browsers"`
	Transitions    int                  `json:"transitions"`
	LastTransition *liveness.Transition `json:"last_transition,omitempty"`
	Uptime         string               `json:"uptime"`
}

// New creates a relay around the given collaborators
func New(deps Deps) *Relay {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Hub == nil {
		deps.Hub = hub.New(hub.DefaultConfig())
	}
	if deps.Adapter == nil {
		deps.Adapter = adapter.NewNoneAdapter()
	}

	r := &Relay{
		adapter: deps.Adapter,
		tracker: liveness.NewTracker(),
		hub:     deps.Hub,
		metrics: deps.Metrics,
		started: time.Now(),
	}
	if deps.Journal != nil {
		r.journal = newRecorder(deps.Journal, deps.JournalRetain)
	}
	return r
}

// Hub returns the browser hub, for mounting on an HTTP mux
func (r *Relay) Hub() *hub.Hub { return r.hub }

// Metrics returns the relay's collectors
func (r *Relay) Metrics() *metrics.Metrics { return r.metrics }

// Journal returns the activity journal, or nil when disabled
func (r *Relay) Journal() repository.Journal {
	if r.journal == nil {
		return nil
	}
	return r.journal.journal
}

// Run starts the adapter and dispatches events until ctx is cancelled
func (r *Relay) Run(ctx context.Context) error {
	if r.adapter.Mode() == domain.TransportNone {
		log.Println("No hardware target configured; browser commands will be dropped")
	}

	if err := r.adapter.Start(ctx); err != nil {
		return fmt.Errorf("start %s adapter: %w", r.adapter.Mode(), err)
	}

	adapterEvents := r.adapter.Events()
	clientEvents := r.hub.Events()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-adapterEvents:
			r.handleAdapterEvent(ev)
		case ev := <-clientEvents:
			r.handleClientEvent(ev)
		}
	}
}

// Status returns the current relay state
func (r *Relay) Status() Status {
	last, n := r.tracker.LastTransition()
	s := Status{
		Mode:          r.adapter.Mode(),
		Target:        r.adapter.Target(),
		State:         r.tracker.State(),
		HardwareReady: r.tracker.Ready(),
		Clients:       r.hub.Count(),
		Browsers:      r.hub.Clients(),
		Transitions:   n,
		Uptime:        time.Since(r.started).Round(time.Second).String(),
	}
	if n > 0 {
		s.LastTransition = &last
	}
	return s
}

// Close releases the adapter, browser connections and journal. Call after
// Run has returned.
func (r *Relay) Close() error {
	err := r.adapter.Close()
	r.hub.Shutdown()
	if r.journal != nil {
		err = multierr.Append(err, r.journal.close())
	}
	return err
}

func (r *Relay) handleAdapterEvent(ev adapter.Event) {
	switch ev.Kind {
	case adapter.EventConnecting:
		r.tracker.Connecting()

	case adapter.EventConnected:
		if le, ok := r.tracker.Connected(); ok {
			r.broadcast(le)
		}

	case adapter.EventDisconnected:
		if le, ok := r.tracker.Disconnected(); ok {
			r.broadcast(le)
		}

	case adapter.EventReceived:
		log.Printf("From hardware: %s", ev.Data)
		r.metrics.Received.Inc()
		r.record(domain.JournalReceived, string(ev.Data))
	}
}

func (r *Relay) handleClientEvent(ev hub.ClientEvent) {
	switch ev.Kind {
	case hub.ClientConnected:
		r.hub.Add(ev.Client)
		r.metrics.Clients.Set(float64(r.hub.Count()))
		if r.tracker.Ready() {
			r.hub.SendTo(ev.Client, domain.ReadyEvent())
		}

	case hub.ClientMessage:
		if r.adapter.Send(ev.Payload) {
			log.Printf("Relaying to hardware: %s", ev.Payload)
			r.metrics.ObserveCommand(true)
			r.record(domain.JournalRelayed, ev.Payload.String())
		} else {
			log.Printf("Dropped (hardware not connected): %s", ev.Payload)
			r.metrics.ObserveCommand(false)
			r.record(domain.JournalDropped, ev.Payload.String())
		}

	case hub.ClientDisconnected:
		r.hub.Remove(ev.Client)
		r.metrics.Clients.Set(float64(r.hub.Count()))
	}
}

func (r *Relay) broadcast(ev domain.LivenessEvent) {
	delivered := r.hub.Broadcast(ev)
	log.Printf("Hardware %s; notified %d browser(s)", ev, delivered)
	r.metrics.Clients.Set(float64(r.hub.Count()))
	r.metrics.ObserveLiveness(ev, delivered)
	r.record(domain.JournalLiveness, ev.String())
}

func (r *Relay) record(kind domain.JournalKind, detail string) {
	if r.journal != nil {
		r.journal.record(kind, detail)
	}
}
