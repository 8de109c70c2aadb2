package domain

import "time"

// JournalKind classifies a journal entry
type JournalKind string

const (
	JournalLiveness JournalKind = "liveness" // hardware_ready / hardware_lost transition
	JournalRelayed  JournalKind = "relayed"  // browser command written to hardware
	JournalDropped  JournalKind = "dropped"  // browser command dropped, hardware not connected
	JournalReceived JournalKind = "received" // frame read from hardware
)

// JournalEntry is one record of relay activity kept for diagnostics
type JournalEntry struct {
	ID        string      `json:"id"`
	Kind      JournalKind `json:"kind"`
	Detail    string      `json:"detail"`
	CreatedAt time.Time   `json:"created_at"`
}
