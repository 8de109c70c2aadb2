package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"hwrelay/internal/adapter"
	"hwrelay/internal/config"
	"hwrelay/internal/domain"
	"hwrelay/internal/handler"
	"hwrelay/internal/hub"
	"hwrelay/internal/metrics"
	"hwrelay/internal/relay"
	"hwrelay/internal/repository"
	"hwrelay/internal/repository/sqlite"
	"hwrelay/internal/watcher"
)

func main() {
	var cli CLI

	parser := kong.Must(&cli,
		kong.Name("hwrelay"),
		kong.Description("Relays browser commands over WebSocket to a microcontroller on a serial port or a remote WebSocket."),
		kong.Vars{
			"version": version,
		},
	)

	_, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load configuration
	var cfg *config.Config
	var cfgPath string
	if cli.Config != "" {
		cfg, cfgPath, err = config.LoadFromPath(cli.Config)
	} else {
		cfg, cfgPath, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Apply(cli.Overrides())

	if cli.SaveConfig != "" {
		if err := cfg.Save(cli.SaveConfig); err != nil {
			log.Fatalf("Failed to save config: %v", err)
		}
		fmt.Printf("Config written to %s\n", cli.SaveConfig)
		return
	}

	if cfg.Log.File != "" {
		logFile, err := os.OpenFile(cfg.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer logFile.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	}

	log.Printf("Starting hwrelay %s...", version)
	if cfgPath != "" {
		log.Printf("Config loaded: %s", cfgPath)
	}

	transport, err := cfg.Resolve()
	if err != nil {
		log.Fatalf("Invalid hardware target: %v", err)
	}
	for _, w := range transport.Warnings {
		log.Printf("Warning: %s", w)
	}
	log.Println(cfg.Summary())

	switch transport.Mode {
	case domain.TransportSerial:
		log.Printf("Hardware mode: USB serial (%s)", transport.Target())
	case domain.TransportRemote:
		log.Printf("Hardware mode: remote WebSocket (%s)", transport.Target())
	default:
		log.Println("Hardware mode: none. Set SERIAL_PORT (USB) or ESP32_WS_URL (remote) to reach the hardware")
	}

	// Bind before starting anything so a busy port fails fast
	listener, err := net.Listen("tcp", cfg.Listen.Addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.Listen.Addr, err)
	}

	var journal repository.Journal
	if cfg.Journal.Path != "" {
		repo, err := sqlite.New(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		journal = repo
		log.Printf("Journal opened: %s", cfg.Journal.Path)
	}

	hwAdapter := adapter.New(transport, adapter.Options{})

	hubCfg := hub.DefaultConfig()
	hubCfg.AllowedOrigins = cfg.Listen.AllowedOrigins
	hubCfg.KeepAlive = cfg.Listen.KeepAlive.Duration()
	browserHub := hub.New(hubCfg)

	m := metrics.New()
	r := relay.New(relay.Deps{
		Adapter:       hwAdapter,
		Hub:           browserHub,
		Metrics:       m,
		Journal:       journal,
		JournalRetain: cfg.Journal.Retain,
	})

	apiHandler := handler.NewAPIHandler(r, r.Journal())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", apiHandler.GetStatus)
	mux.HandleFunc("GET /api/journal", apiHandler.GetJournal)
	mux.HandleFunc("GET /healthz", apiHandler.Healthz)
	mux.Handle("GET /metrics", m.Handler())

	// Browser control connections
	mux.Handle("/ws", browserHub)
	mux.Handle("/", browserHub)

	server := &http.Server{
		Handler:           handler.Chain(mux, handler.Recover, handler.CORS, handler.Logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.Run(gctx)
	})

	g.Go(func() error {
		log.Printf("Server listening on %s", listener.Addr())
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Hijacked WebSocket connections are closed by the hub, not Shutdown
		browserHub.Shutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		return nil
	})

	if serial, ok := hwAdapter.(*adapter.SerialAdapter); ok && transport.WatchDevice {
		g.Go(func() error {
			watchSerialDevice(gctx, serial, transport.SerialPort)
			return nil
		})
	}

	if cfgPath != "" {
		g.Go(func() error {
			watchConfigFile(gctx, cfgPath)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("Relay stopped: %v", err)
	}

	if err := r.Close(); err != nil {
		log.Printf("Relay close error: %v", err)
	}

	log.Println("Server stopped")
}

// watchSerialDevice waits for the serial port to be lost and then reports
// when its device node appears again. The serial adapter never reopens a
// port, so the operator has to restart the relay.
func watchSerialDevice(ctx context.Context, serial *adapter.SerialAdapter, path string) {
	select {
	case <-serial.Lost():
	case <-ctx.Done():
		return
	}

	w := watcher.New(path, func(p string) {
		log.Printf("Serial device %s is present again. Restart hwrelay to reconnect", p)
	}).WithOps(fsnotify.Create)

	if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Device watch failed: %v", err)
	}
}

// watchConfigFile reports edits to the loaded config file. Configuration is
// read once, so changes only take effect after a restart.
func watchConfigFile(ctx context.Context, path string) {
	w := watcher.New(path, func(p string) {
		log.Printf("Config file %s changed. Restart hwrelay to apply", p)
	})

	if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Config watch failed: %v", err)
	}
}
