// Package checks maintains the pass/fail state of checks registered against
// saved queries. The engine notifies this package after each fresh execution;
// check lifecycle (creation, scheduling, alert delivery) lives elsewhere.
package checks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AhmedPho/blazer/internal/engine"
)

// Check states.
const (
	StateNew     = "new"
	StatePassing = "passing"
	StateFailing = "failing"
	StateError   = "error"
)

// Check modes: fail_if_rows treats any returned row as a failure (bad-data
// detector); fail_if_empty requires at least one row.
const (
	ModeFailIfRows  = "fail_if_rows"
	ModeFailIfEmpty = "fail_if_empty"
)

type Check struct {
	ID        string
	QueryID   string
	Mode      string
	State     string
	Emails    string
	LastRunAt *time.Time
	Message   string
}

// StateFor computes the next state of a check from a query result.
func StateFor(mode string, result engine.Result) string {
	if result.Error != "" {
		return StateError
	}
	hasRows := len(result.Rows) > 0
	if mode == ModeFailIfEmpty {
		if hasRows {
			return StatePassing
		}
		return StateFailing
	}
	if hasRows {
		return StateFailing
	}
	return StatePassing
}

// Service loads and updates checks in the Postgres storage database.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

var _ engine.CheckNotifier = (*Service)(nil)

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// NotifyChecks transitions every check registered for the query. Individual
// update failures abort the batch; the engine treats the whole call as
// fire-and-forget.
func (s *Service) NotifyChecks(ctx context.Context, queryID string, result engine.Result) error {
	registered, err := s.ChecksForQuery(ctx, queryID)
	if err != nil {
		return err
	}
	for _, check := range registered {
		state := StateFor(check.Mode, result)
		if err := s.updateState(ctx, check.ID, state, result.Error); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ChecksForQuery(ctx context.Context, queryID string) ([]Check, error) {
	query := `
SELECT check_id, query_id, mode, state, COALESCE(emails, ''), last_run_at, COALESCE(message, '')
FROM blazer_checks
WHERE query_id = $1
ORDER BY check_id ASC`
	rows, err := s.db.QueryContext(ctx, query, queryID)
	if err != nil {
		return nil, fmt.Errorf("list checks for query %q: %w", queryID, err)
	}
	defer func() { _ = rows.Close() }()

	registered := make([]Check, 0)
	for rows.Next() {
		var check Check
		if err := rows.Scan(&check.ID, &check.QueryID, &check.Mode, &check.State, &check.Emails, &check.LastRunAt, &check.Message); err != nil {
			return nil, fmt.Errorf("scan check row: %w", err)
		}
		registered = append(registered, check)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check rows: %w", err)
	}
	return registered, nil
}

func (s *Service) updateState(ctx context.Context, checkID, state, message string) error {
	query := `
UPDATE blazer_checks
SET state = $2, message = $3, last_run_at = $4
WHERE check_id = $1`
	if _, err := s.db.ExecContext(ctx, query, checkID, state, nullString(message), s.now()); err != nil {
		return fmt.Errorf("update check %q: %w", checkID, err)
	}
	return nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
