// Package store persists the daemon's durable-but-small UI-facing state:
// pins, display overrides, stable session ordering, and free-form
// key/value settings. It is the only component allowed to touch state.db
// (§6); everything else — PaneItems, buffers, viewer sessions — lives in
// memory and is rebuilt on restart, per §3's ownership note that PaneItems'
// canonical store is in-memory with only pins/overrides/stable-order
// persisted.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// Store wraps a single-file modernc.org/sqlite database. Like the
// teacher's session Store, every exported method is safe for concurrent
// use; unlike it, persistence here is relational rather than
// whole-file-rewrite, since pins/overrides/order are updated far more
// often than they are read in bulk.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open creates the parent directory if needed and opens (or initializes)
// state.db at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state.db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers
	s := &Store{db: db, path: path, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state.db: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS ui_kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pins (
	pane_key TEXT PRIMARY KEY,
	pinned_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pane_display_overrides (
	pane_key TEXT PRIMARY KEY,
	label TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS session_stable_order (
	session_key TEXT PRIMARY KEY,
	rank INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS session_stable_order_next (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	next_rank INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS migration_metadata (
	schema_version INTEGER NOT NULL,
	applied_at INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM migration_metadata WHERE schema_version = ?`, schemaVersion).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO migration_metadata (schema_version, applied_at) VALUES (?, ?)`, schemaVersion, time.Now().Unix()); err != nil {
			return err
		}
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO session_stable_order_next (id, next_rank) VALUES (0, 1)`); err != nil {
		return err
	}
	return nil
}

// SetUI upserts a free-form UI setting.
func (s *Store) SetUI(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ui_kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	return err
}

// GetUI reads a free-form UI setting. Returns ("", false, nil) when absent.
func (s *Store) GetUI(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM ui_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Pin marks a pane (or session) key as pinned.
func (s *Store) Pin(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pins (pane_key, pinned_at) VALUES (?, ?)`, key, time.Now().Unix())
	return err
}

// Unpin removes a pin.
func (s *Store) Unpin(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM pins WHERE pane_key = ?`, key)
	return err
}

// Pins returns the set of currently pinned keys.
func (s *Store) Pins(ctx context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT pane_key FROM pins`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out[key] = true
	}
	return out, rows.Err()
}

// SetDisplayOverride sets a user-chosen display label for a pane/session key.
func (s *Store) SetDisplayOverride(ctx context.Context, key, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pane_display_overrides (pane_key, label, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(pane_key) DO UPDATE SET label = excluded.label, updated_at = excluded.updated_at`,
		key, label, time.Now().Unix())
	return err
}

// DisplayOverrides returns all pane/session key -> label overrides.
func (s *Store) DisplayOverrides(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT pane_key, label FROM pane_display_overrides`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var key, label string
		if err := rows.Scan(&key, &label); err != nil {
			return nil, err
		}
		out[key] = label
	}
	return out, rows.Err()
}

// StableRank returns the persisted stable-sort rank for sessionKey,
// allocating a fresh monotonically increasing rank on first sight — used
// by the Snapshot Projector's "stable fallback" sort key (§4.8).
func (s *Store) StableRank(ctx context.Context, sessionKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rank int64
	err := s.db.QueryRowContext(ctx, `SELECT rank FROM session_stable_order WHERE session_key = ?`, sessionKey).Scan(&rank)
	if err == nil {
		return rank, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `SELECT next_rank FROM session_stable_order_next WHERE id = 0`).Scan(&rank); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE session_stable_order_next SET next_rank = next_rank + 1 WHERE id = 0`); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO session_stable_order (session_key, rank) VALUES (?, ?)`, sessionKey, rank); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return rank, nil
}
