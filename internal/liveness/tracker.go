// Package liveness tracks whether the hardware device is currently reachable.
//
// The Tracker is the single source of truth for hardware liveness. Transport
// adapters report raw channel events; the tracker turns them into state
// transitions and decides which transitions are visible to browsers:
//
//	disconnected -> connecting   (silent)
//	*            -> connected    hardware_ready
//	connected    -> disconnected hardware_lost
//	connecting   -> disconnected (silent, failed attempt)
package liveness

import (
	"sync"
	"time"

	"hwrelay/internal/domain"
)

// Transition records one state change
type Transition struct {
	From domain.SessionState `json:"from"`
	To   domain.SessionState `json:"to"`
	At   time.Time           `json:"at"`
}

// Tracker holds the current session state
type Tracker struct {
	mu          sync.RWMutex
	state       domain.SessionState
	last        Transition
	transitions int
	now         func() time.Time
}

// NewTracker creates a tracker in the disconnected state
func NewTracker() *Tracker {
	return &Tracker{
		state: domain.SessionDisconnected,
		now:   time.Now,
	}
}

// Connecting records a connection attempt. It never produces an event.
func (t *Tracker) Connecting() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == domain.SessionDisconnected {
		t.set(domain.SessionConnecting)
	}
}

// Connected records that the channel is open. Returns hardware_ready unless
// the tracker already considered the hardware connected.
func (t *Tracker) Connected() (domain.LivenessEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == domain.SessionConnected {
		return domain.LivenessEvent{}, false
	}
	t.set(domain.SessionConnected)
	return domain.ReadyEvent(), true
}

// Disconnected records that the channel closed or an attempt failed.
// Returns hardware_lost only when leaving the connected state.
func (t *Tracker) Disconnected() (domain.LivenessEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	was := t.state
	if was == domain.SessionDisconnected {
		return domain.LivenessEvent{}, false
	}
	t.set(domain.SessionDisconnected)
	if was == domain.SessionConnected {
		return domain.LostEvent(), true
	}
	return domain.LivenessEvent{}, false
}

// State returns the current session state
func (t *Tracker) State() domain.SessionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Ready reports whether the hardware is connected
func (t *Tracker) Ready() bool {
	return t.State() == domain.SessionConnected
}

// LastTransition returns the most recent state change and how many have occurred
func (t *Tracker) LastTransition() (Transition, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last, t.transitions
}

// set must be called with mu held
func (t *Tracker) set(to domain.SessionState) {
	t.last = Transition{From: t.state, To: to, At: t.now()}
	t.transitions++
	t.state = to
}
