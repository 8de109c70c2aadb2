package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"hwrelay/internal/domain"
)

// Repository implements repository.Journal using SQLite
type Repository struct {
	db *sql.DB
}

// New opens (or creates) the journal database
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writes are serialized anyway, and :memory: databases
	// are per-connection
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	PRAGMA journal_mode = WAL;
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_kind ON journal(kind);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Append stores one entry, filling in ID and CreatedAt when empty
func (r *Repository) Append(ctx context.Context, entry domain.JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO journal (id, kind, detail, created_at)
		VALUES (?, ?, ?, ?)
	`, entry.ID, string(entry.Kind), entry.Detail, entry.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (r *Repository) Recent(ctx context.Context, limit int) ([]domain.JournalEntry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, detail, created_at
		FROM journal
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var (
			e       domain.JournalEntry
			kind    string
			created int64
		)
		if err := rows.Scan(&e.ID, &kind, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Kind = domain.JournalKind(kind)
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}
	return entries, nil
}

// Prune deletes all but the newest retain entries. retain <= 0 keeps everything.
func (r *Repository) Prune(ctx context.Context, retain int) (int64, error) {
	if retain <= 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM journal
		WHERE seq <= (SELECT seq FROM journal ORDER BY seq DESC LIMIT 1 OFFSET ?)
	`, retain)
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database
func (r *Repository) Close() error {
	return r.db.Close()
}
