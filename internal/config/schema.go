package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version int           `yaml:"version"`
	Mode    string        `yaml:"mode,omitempty"` // serial, remote-socket or none; empty infers from targets
	Listen  ListenConfig  `yaml:"listen"`
	Serial  SerialConfig  `yaml:"serial"`
	Remote  RemoteConfig  `yaml:"remote"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
}

// ListenConfig holds the browser-facing listener settings
type ListenConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"` // empty = any origin
	KeepAlive      Duration `yaml:"keepalive"`                 // ping period for browser sockets
}

// SerialConfig selects a local serial device (USB-attached board)
type SerialConfig struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	WatchDevice bool   `yaml:"watch_device"` // log a hint when a lost device node reappears
}

// RemoteConfig selects a device reachable over a WebSocket
type RemoteConfig struct {
	URL            string   `yaml:"url"`
	ReconnectDelay Duration `yaml:"reconnect_delay"`
	DialTimeout    Duration `yaml:"dial_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
}

// JournalConfig controls the optional sqlite activity journal
type JournalConfig struct {
	Path   string `yaml:"path"`   // empty disables the journal
	Retain int    `yaml:"retain"` // newest entries kept, 0 = unlimited
}

// LogConfig controls log output
type LogConfig struct {
	File string `yaml:"file,omitempty"` // tee log output to this file
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
