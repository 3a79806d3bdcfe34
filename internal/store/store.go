// Package store provides the SQLite-backed record store for ReliefConnect
// products and orders. Every committed create, update and delete is
// announced to the registered catalog.Hook implementations, which is how the
// semantic-search index stays in step with the authoritative data. The store
// also persists the sync journal written by the index synchronizer.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/reliefconnect/internal/catalog"
)

// SQLiteStore is the product/order record store backed by a local SQLite
// database. It is safe for concurrent use.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB

	// now is the clock used for UpdatedAt stamps. Replaced in tests.
	now func() time.Time

	mu    sync.RWMutex
	hooks []catalog.Hook
}

// DefaultDBPath returns the default path for the record database.
// It resolves to ~/.relief/relief.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".relief")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "relief.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single connection: SQLite allows one writer, and ":memory:" databases
	// are per-connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS products (
    id           TEXT    PRIMARY KEY,
    name         TEXT    NOT NULL,
    description  TEXT    NOT NULL DEFAULT '',
    category     TEXT    NOT NULL DEFAULT '',
    quantity     INTEGER NOT NULL DEFAULT 0,
    price        REAL    NOT NULL DEFAULT 0,
    priority     TEXT    NOT NULL DEFAULT '',
    updated_at   INTEGER NOT NULL  -- Unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_products_category ON products (category);

CREATE TABLE IF NOT EXISTS orders (
    id           TEXT    PRIMARY KEY,
    user_id      TEXT    NOT NULL DEFAULT '',
    name         TEXT    NOT NULL,
    address      TEXT    NOT NULL,
    phone        TEXT    NOT NULL,
    email        TEXT    NOT NULL DEFAULT '',
    urgency      TEXT    NOT NULL,
    status       TEXT    NOT NULL,
    payment      TEXT,             -- JSON, NULL when unpaid
    items        TEXT    NOT NULL, -- JSON array
    is_package   INTEGER NOT NULL DEFAULT 0,
    ts           INTEGER NOT NULL, -- Unix milliseconds
    updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id);

CREATE TABLE IF NOT EXISTS sync_journal (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    kind         TEXT    NOT NULL,
    record_id    TEXT    NOT NULL,
    op           TEXT    NOT NULL,
    outcome      TEXT    NOT NULL,
    error        TEXT    NOT NULL DEFAULT '',
    duration_ms  INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_journal_created ON sync_journal (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// AddHook registers h to be notified after every committed write. Hooks run
// in registration order on the caller's goroutine.
func (s *SQLiteStore) AddHook(h catalog.Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

func (s *SQLiteStore) snapshotHooks() []catalog.Hook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]catalog.Hook(nil), s.hooks...)
}

func (s *SQLiteStore) afterSave(ctx context.Context, rec catalog.Record) {
	for _, h := range s.snapshotHooks() {
		h.AfterSave(ctx, rec)
	}
}

func (s *SQLiteStore) afterDelete(ctx context.Context, kind catalog.Kind, id string) {
	for _, h := range s.snapshotHooks() {
		h.AfterDelete(ctx, kind, id)
	}
}

// Ping verifies the database is reachable. Used by the readiness probe.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// pageClause returns the LIMIT/OFFSET arguments for a 1-based page. A zero
// size means no limit.
func pageClause(page, size int) (limit, offset int) {
	if size <= 0 {
		return -1, 0
	}
	if page < 1 {
		page = 1
	}
	return size, (page - 1) * size
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
