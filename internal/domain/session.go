package domain

// SessionState is the connectivity state of the hardware transport session
type SessionState string

const (
	SessionDisconnected SessionState = "disconnected"
	SessionConnecting   SessionState = "connecting"
	SessionConnected    SessionState = "connected"
)

// TransportMode selects which physical channel reaches the hardware
type TransportMode string

const (
	TransportSerial TransportMode = "serial"
	TransportRemote TransportMode = "remote-socket"
	TransportNone   TransportMode = "none"
)

// ParseTransportMode converts a string to TransportMode.
// Returns false for unknown values.
func ParseTransportMode(s string) (TransportMode, bool) {
	switch s {
	case "serial":
		return TransportSerial, true
	case "remote-socket", "remote", "websocket":
		return TransportRemote, true
	case "none", "":
		return TransportNone, true
	default:
		return TransportNone, false
	}
}
