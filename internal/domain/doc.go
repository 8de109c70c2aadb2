// Package domain defines the value types shared by the relay packages.
//
// # Core Types
//
// LivenessEvent is the only message the relay sends to browsers. It is a
// closed tagged variant: hardware_ready or hardware_lost, serialized as
// {"type":"..."}.
//
// Command is an opaque browser payload. The relay never parses or validates
// it; it is forwarded to the hardware unchanged.
//
// SessionState and TransportMode describe the hardware link, and
// JournalEntry records relay activity for the optional journal.
//
// # Design Principles
//
// - Immutable value objects
// - No I/O and no dependencies outside the standard library
package domain
