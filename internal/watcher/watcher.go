// Package watcher reports when a filesystem path appears or changes.
//
// The relay uses it to notice a serial device node (for example
// /dev/ttyUSB0) coming back after the board was unplugged, and to notice
// edits to the config file. Neither triggers a reconnect or reload; the
// callback decides what to do.
package watcher

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses bursts of events (udev creates and chmods a
// device node in quick succession)
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a single path
type Watcher struct {
	path     string
	onChange func(path string)
	debounce time.Duration
	ops      fsnotify.Op

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a watcher that calls onChange when path is created or written
func New(path string, onChange func(path string)) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
		debounce: DefaultDebounce,
		ops:      fsnotify.Write | fsnotify.Create,
		ready:    make(chan struct{}),
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// WithOps restricts which operations trigger the callback
func (w *Watcher) WithOps(ops fsnotify.Op) *Watcher {
	w.ops = ops
	return w
}

// Ready is closed once the watch is installed
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Watch blocks until the context is cancelled or the watch fails
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the parent directory: the path itself may not exist yet, and
	// device nodes are removed and recreated rather than modified
	dir := filepath.Dir(w.path)
	name := filepath.Base(w.path)

	if err := watcher.Add(dir); err != nil {
		return err
	}
	w.readyOnce.Do(func() { close(w.ready) })

	log.Printf("Watching %s", w.path)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name || event.Op&w.ops == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				w.onChange(w.path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Watcher error: %v", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
