package domain

import (
	"encoding/json"
	"fmt"
)

// LivenessKind identifies which liveness notification is being delivered
type LivenessKind string

const (
	HardwareReady LivenessKind = "hardware_ready"
	HardwareLost  LivenessKind = "hardware_lost"
)

// LivenessEvent notifies browsers that hardware became reachable or was lost.
// It serializes to {"type": "<kind>"}; no other fields are defined.
type LivenessEvent struct {
	Kind LivenessKind `json:"type"`
}

// ReadyEvent returns the hardware_ready notification
func ReadyEvent() LivenessEvent {
	return LivenessEvent{Kind: HardwareReady}
}

// LostEvent returns the hardware_lost notification
func LostEvent() LivenessEvent {
	return LivenessEvent{Kind: HardwareLost}
}

// Valid reports whether the event carries one of the two known kinds
func (e LivenessEvent) Valid() bool {
	return e.Kind == HardwareReady || e.Kind == HardwareLost
}

// Marshal encodes the event in its wire form
func (e LivenessEvent) Marshal() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("unknown liveness kind %q", e.Kind)
	}
	return json.Marshal(e)
}

// String returns the kind name
func (e LivenessEvent) String() string {
	return string(e.Kind)
}
