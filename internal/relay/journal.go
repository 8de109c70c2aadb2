package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"hwrelay/internal/domain"
	"hwrelay/internal/repository"
)

const (
	journalQueue      = 256
	journalPruneEvery = 100
	journalTimeout    = 5 * time.Second
)

// recorder writes journal entries off the dispatcher goroutine. Entries are
// dropped when the queue is full.
type recorder struct {
	journal repository.Journal
	retain  int

	mu      sync.Mutex
	closed  bool
	entries chan domain.JournalEntry
	wg      sync.WaitGroup
}

func newRecorder(journal repository.Journal, retain int) *recorder {
	r := &recorder{
		journal: journal,
		retain:  retain,
		entries: make(chan domain.JournalEntry, journalQueue),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *recorder) record(kind domain.JournalKind, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	entry := domain.JournalEntry{Kind: kind, Detail: detail, CreatedAt: time.Now()}
	select {
	case r.entries <- entry:
	default:
		log.Printf("Journal queue full, dropping %s entry", kind)
	}
}

func (r *recorder) run() {
	defer r.wg.Done()

	written := 0
	for entry := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		if err := r.journal.Append(ctx, entry); err != nil {
			log.Printf("Failed to write journal entry: %v", err)
		}
		written++
		if r.retain > 0 && written%journalPruneEvery == 0 {
			if _, err := r.journal.Prune(ctx, r.retain); err != nil {
				log.Printf("Failed to prune journal: %v", err)
			}
		}
		cancel()
	}
}

// close flushes queued entries and closes the journal
func (r *recorder) close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.entries)
	}
	r.mu.Unlock()

	r.wg.Wait()
	return r.journal.Close()
}
