package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"hwrelay/internal/domain"
)

var (
	// ErrInvalidRemoteURL is returned when the remote device address cannot be used
	ErrInvalidRemoteURL = errors.New("invalid remote device url")
	// ErrInvalidMode is returned for an unknown transport mode
	ErrInvalidMode = errors.New("invalid transport mode")
	// ErrMissingTarget is returned when the selected mode has no device address
	ErrMissingTarget = errors.New("missing hardware target")
)

// Transport is the resolved, immutable hardware target for this process
type Transport struct {
	Mode domain.TransportMode

	// Serial mode
	SerialPort  string
	SerialBaud  int
	WatchDevice bool

	// Remote-socket mode
	RemoteURL      string
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	WriteTimeout   time.Duration

	// Warnings collected during resolution (e.g. both targets set)
	Warnings []string
}

// Target returns the configured device address for the active mode
func (t Transport) Target() string {
	switch t.Mode {
	case domain.TransportSerial:
		return fmt.Sprintf("%s@%d", t.SerialPort, t.SerialBaud)
	case domain.TransportRemote:
		return t.RemoteURL
	default:
		return ""
	}
}

// Resolve selects the transport mode. An explicit mode wins and must come
// with its own target; the other target is ignored with a warning. Without
// a mode, a serial port takes precedence over a remote URL, and with neither
// set the relay runs with no hardware target.
func (c *Config) Resolve() (Transport, error) {
	serialPort := strings.TrimSpace(c.Serial.Port)
	remoteURL := strings.TrimSpace(c.Remote.URL)

	t := Transport{
		Mode:           domain.TransportNone,
		SerialBaud:     c.Serial.Baud,
		WatchDevice:    c.Serial.WatchDevice,
		ReconnectDelay: c.Remote.ReconnectDelay.Duration(),
		DialTimeout:    c.Remote.DialTimeout.Duration(),
		WriteTimeout:   c.Remote.WriteTimeout.Duration(),
	}

	mode, err := c.selectMode(serialPort, remoteURL)
	if err != nil {
		return t, err
	}

	switch mode {
	case domain.TransportSerial:
		if serialPort == "" {
			return t, fmt.Errorf("%w: mode serial needs serial.port", ErrMissingTarget)
		}
		t.Mode = domain.TransportSerial
		t.SerialPort = serialPort
		if remoteURL != "" {
			t.Warnings = append(t.Warnings,
				fmt.Sprintf("both serial port and remote url set; using serial %s, ignoring %s", serialPort, remoteURL))
		}

	case domain.TransportRemote:
		if remoteURL == "" {
			return t, fmt.Errorf("%w: mode remote-socket needs remote.url", ErrMissingTarget)
		}
		if err := validateRemoteURL(remoteURL); err != nil {
			return t, err
		}
		t.Mode = domain.TransportRemote
		t.RemoteURL = remoteURL
		if serialPort != "" {
			t.Warnings = append(t.Warnings,
				fmt.Sprintf("mode is remote-socket; ignoring serial port %s", serialPort))
		}

	default:
		if serialPort != "" || remoteURL != "" {
			t.Warnings = append(t.Warnings, "mode is none; ignoring configured hardware targets")
		}
	}

	return t, nil
}

// selectMode returns the configured mode, or infers one from the targets
func (c *Config) selectMode(serialPort, remoteURL string) (domain.TransportMode, error) {
	raw := strings.ToLower(strings.TrimSpace(c.Mode))
	if raw != "" {
		mode, ok := domain.ParseTransportMode(raw)
		if !ok {
			return domain.TransportNone, fmt.Errorf("%w: %q (want serial, remote-socket or none)", ErrInvalidMode, c.Mode)
		}
		return mode, nil
	}

	switch {
	case serialPort != "":
		return domain.TransportSerial, nil
	case remoteURL != "":
		return domain.TransportRemote, nil
	default:
		return domain.TransportNone, nil
	}
}

func validateRemoteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRemoteURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme must be ws or wss, got %q", ErrInvalidRemoteURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidRemoteURL)
	}
	return nil
}
