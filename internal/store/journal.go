package store

import (
	"context"
	"fmt"
	"time"
)

// JournalEntry is one row of the sync journal: the outcome of a single
// attempt to mirror a record write into the vector index.
type JournalEntry struct {
	Kind     string `json:"kind"`
	RecordID string `json:"recordId"`
	Op       string `json:"op"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
	// DurationMs is the wall-clock time of the attempt in milliseconds.
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RecordSync appends e to the sync journal. CreatedAt defaults to now.
func (s *SQLiteStore) RecordSync(ctx context.Context, e JournalEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	const q = `
INSERT INTO sync_journal (kind, record_id, op, outcome, error, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, e.Kind, e.RecordID, e.Op, e.Outcome, e.Error,
		e.DurationMs, toMillis(e.CreatedAt)); err != nil {
		return fmt.Errorf("store: record sync: %w", err)
	}
	return nil
}

// RecentSyncs returns the most recent n journal entries, newest first.
func (s *SQLiteStore) RecentSyncs(ctx context.Context, n int) ([]JournalEntry, error) {
	const q = `
SELECT kind, record_id, op, outcome, error, duration_ms, created_at
FROM   sync_journal
ORDER  BY created_at DESC, id DESC
LIMIT  ?`
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent syncs: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e  JournalEntry
			ts int64
		)
		if err := rows.Scan(&e.Kind, &e.RecordID, &e.Op, &e.Outcome, &e.Error, &e.DurationMs, &ts); err != nil {
			return nil, fmt.Errorf("store: recent syncs scan: %w", err)
		}
		e.CreatedAt = fromMillis(ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent syncs rows: %w", err)
	}
	return out, nil
}

// SyncCounts returns the number of journal entries per outcome.
func (s *SQLiteStore) SyncCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM sync_journal GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("store: sync counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("store: sync counts scan: %w", err)
		}
		counts[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: sync counts rows: %w", err)
	}
	return counts, nil
}

// PruneSyncs deletes journal entries older than before and returns how many
// were removed.
func (s *SQLiteStore) PruneSyncs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_journal WHERE created_at < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("store: prune syncs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: prune syncs: %w", err)
	}
	return n, nil
}
