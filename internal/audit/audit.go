// Package audit persists query execution records. Writes are fire-and-forget
// from the engine's perspective; the engine logs failures and moves on.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AhmedPho/blazer/internal/engine"
)

// Store writes audit entries to the Postgres storage database.
type Store struct {
	db *sql.DB
}

var _ engine.AuditRecorder = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Record(ctx context.Context, entry engine.AuditEntry) error {
	query := `
INSERT INTO blazer_audits (data_source_id, statement, user_id, query_id, duration_ms, error, timed_out, cached, cost, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		entry.DataSourceID,
		entry.Statement,
		nullString(entry.UserID),
		nullString(entry.QueryID),
		entry.Duration.Milliseconds(),
		nullString(entry.Error),
		entry.TimedOut,
		entry.Cached,
		entry.Cost,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// Recent returns the newest audit entries for a data source, newest first.
func (s *Store) Recent(ctx context.Context, dataSourceID string, limit int) ([]engine.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT data_source_id, statement, COALESCE(user_id, ''), COALESCE(query_id, ''), duration_ms, COALESCE(error, ''), timed_out, cached, cost, created_at
FROM blazer_audits
WHERE data_source_id = $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, dataSourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]engine.AuditEntry, 0)
	for rows.Next() {
		var entry engine.AuditEntry
		var durationMs int64
		if err := rows.Scan(
			&entry.DataSourceID,
			&entry.Statement,
			&entry.UserID,
			&entry.QueryID,
			&durationMs,
			&entry.Error,
			&entry.TimedOut,
			&entry.Cached,
			&entry.Cost,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return entries, nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// Nop discards every entry. Used when auditing is disabled.
type Nop struct{}

var _ engine.AuditRecorder = Nop{}

func (Nop) Record(context.Context, engine.AuditEntry) error { return nil }
