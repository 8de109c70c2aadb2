package main

import (
	"time"

	"github.com/alecthomas/kong"

	"hwrelay/internal/config"
)

// CLI flags. Environment names for the hardware target and port match the
// ones deployments of the relay already use.
type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Print version information and exit."`

	Config     string `short:"c" type:"path" help:"Config file (default: first of $HWRELAY_CONFIG, ./hwrelay.yaml, $XDG_CONFIG_HOME/hwrelay/config.yaml, ~/.config/hwrelay/config.yaml, /etc/hwrelay/config.yaml)."`
	SaveConfig string `name:"save-config" type:"path" help:"Write the effective configuration to this path and exit."`

	Mode string `env:"HWRELAY_MODE" help:"Hardware transport: serial, remote-socket or none (default: inferred from the configured target)."`

	Listen string `env:"HWRELAY_LISTEN" help:"Listen address for browsers and the HTTP API (default :8080)."`
	Port   int    `env:"WS_PROXY_PORT" help:"Listen port; shorthand for --listen=:PORT."`

	SerialPort string `name:"serial-port" env:"SERIAL_PORT" help:"Serial device of the hardware, e.g. /dev/ttyUSB0 (USB mode, takes precedence)."`
	SerialBaud int    `name:"serial-baud" env:"SERIAL_BAUD" help:"Serial line speed (default 115200)."`

	RemoteURL      string        `name:"remote-url" env:"ESP32_WS_URL" help:"WebSocket address of the hardware, e.g. ws://192.168.1.50:81/ws (remote mode)."`
	ReconnectDelay time.Duration `name:"reconnect-delay" env:"HWRELAY_RECONNECT_DELAY" help:"Delay between remote connection attempts (default 5s)."`

	Journal string `type:"path" env:"HWRELAY_JOURNAL" help:"SQLite activity journal; empty disables it."`
	LogFile string `name:"log-file" type:"path" env:"HWRELAY_LOG_FILE" help:"Also append log output to this file."`
}

// Overrides returns the values set on the command line or in the environment
func (c *CLI) Overrides() config.Overrides {
	return config.Overrides{
		Mode:           c.Mode,
		Listen:         c.Listen,
		Port:           c.Port,
		SerialPort:     c.SerialPort,
		SerialBaud:     c.SerialBaud,
		RemoteURL:      c.RemoteURL,
		ReconnectDelay: c.ReconnectDelay,
		JournalPath:    c.Journal,
		LogFile:        c.LogFile,
	}
}
