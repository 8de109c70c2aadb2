package repository

import (
	"context"

	"hwrelay/internal/domain"
)

// Journal records relay activity for later inspection
type Journal interface {
	// Append stores one entry
	Append(ctx context.Context, entry domain.JournalEntry) error

	// Recent returns the newest entries, newest first
	Recent(ctx context.Context, limit int) ([]domain.JournalEntry, error)

	// Prune keeps only the newest retain entries
	Prune(ctx context.Context, retain int) (int64, error)

	// Close releases resources
	Close() error
}
