// Package config provides configuration management for hwrelay.
//
// Configuration is read once at startup from an optional YAML file and then
// overridden by command line flags and environment variables. There is no
// hot reload: the resolved Transport is immutable for the process lifetime.
//
// The config file is the first existing entry of SearchPaths:
//  1. $HWRELAY_CONFIG
//  2. ./hwrelay.yaml
//  3. $XDG_CONFIG_HOME/hwrelay/config.yaml
//  4. ~/.config/hwrelay/config.yaml
//  5. /etc/hwrelay/config.yaml
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr     = ":8080"
	DefaultBaud           = 115200
	DefaultReconnectDelay = 5 * time.Second
	DefaultDialTimeout    = 10 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultKeepAlive      = 30 * time.Second
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns the settings used when no config file exists
func DefaultConfig() *Config {
	cfg := &Config{Version: 1}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Listen.Addr == "" {
		c.Listen.Addr = DefaultListenAddr
	}
	if c.Listen.KeepAlive <= 0 {
		c.Listen.KeepAlive = Duration(DefaultKeepAlive)
	}
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = DefaultBaud
	}
	if c.Remote.ReconnectDelay <= 0 {
		c.Remote.ReconnectDelay = Duration(DefaultReconnectDelay)
	}
	if c.Remote.DialTimeout <= 0 {
		c.Remote.DialTimeout = Duration(DefaultDialTimeout)
	}
	if c.Remote.WriteTimeout <= 0 {
		c.Remote.WriteTimeout = Duration(DefaultWriteTimeout)
	}
}

// Overrides carries values set on the command line or in the environment.
// Zero values mean "not set" and leave the file value alone.
type Overrides struct {
	Mode           string
	Listen         string
	Port           int
	SerialPort     string
	SerialBaud     int
	RemoteURL      string
	ReconnectDelay time.Duration
	JournalPath    string
	LogFile        string
}

// Apply merges non-zero overrides into the config
func (c *Config) Apply(o Overrides) {
	if o.Mode != "" {
		c.Mode = o.Mode
	}
	switch {
	case o.Listen != "":
		c.Listen.Addr = o.Listen
		if o.Port > 0 {
			log.Printf("Both listen address %s and port %d given, using %s", o.Listen, o.Port, o.Listen)
		}
	case o.Port > 0:
		c.Listen.Addr = fmt.Sprintf(":%d", o.Port)
	}
	if o.SerialPort != "" {
		c.Serial.Port = o.SerialPort
	}
	if o.SerialBaud > 0 {
		c.Serial.Baud = o.SerialBaud
	}
	if o.RemoteURL != "" {
		c.Remote.URL = o.RemoteURL
	}
	if o.ReconnectDelay > 0 {
		c.Remote.ReconnectDelay = Duration(o.ReconnectDelay)
	}
	if o.JournalPath != "" {
		c.Journal.Path = o.JournalPath
	}
	if o.LogFile != "" {
		c.Log.File = o.LogFile
	}
	c.applyDefaults()
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	t, _ := c.Resolve()
	summary := fmt.Sprintf("Listen: %s, Transport: %s", c.Listen.Addr, t.Mode)
	if target := t.Target(); target != "" {
		summary += fmt.Sprintf(" (%s)", target)
	}
	if c.Journal.Path != "" {
		summary += fmt.Sprintf(", Journal: %s", c.Journal.Path)
	}
	return summary
}
