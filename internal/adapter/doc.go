// Package adapter implements the transport adapters that carry browser
// commands to the hardware device.
//
// Adapters hide the physical channel behind one interface: Send writes a
// command if the channel is open and reports whether it was written,
// IsReady answers from in-memory state, and Events reports channel state
// changes for the liveness tracker.
//
// # Adapters
//
// SerialAdapter opens a local serial device once at startup and writes
// newline-terminated lines. It never reopens the port; a lost device needs
// to be plugged back in and the relay restarted.
//
// RemoteAdapter keeps an outbound WebSocket to a device address. Every close,
// including a failed dial, schedules exactly one reconnect attempt after a
// fixed delay, forever. Commands are sent as single text frames.
//
// NoneAdapter is used when no hardware target is configured. It is never
// ready and drops every command.
package adapter
