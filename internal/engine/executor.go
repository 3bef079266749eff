package engine

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// annotationMarker prefixes the trailing SQL comment carrying observability
// metadata. The comment is non-semantic and never parsed back; it exists for
// downstream log and slow-query correlation.
const annotationMarker = "blazer"

var userNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9 ]`)

// timeSince is swapped in tests to simulate slow statements.
var timeSince = time.Since

type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// executeStatement runs one statement against the data source. When the
// source's use_transaction flag is set, the statement runs inside a
// transaction that is unconditionally rolled back on every exit path, so the
// statement can never mutate data.
//
// The returned error is non-nil only for configuration failures
// (ErrTimeoutNotSupported); all execution failures are carried in the Result.
func executeStatement(ctx context.Context, ds *DataSource, statement string, timeoutOverride time.Duration, annotation string) (Result, time.Duration, error) {
	timeout := ds.timeout
	if timeoutOverride > 0 {
		timeout = timeoutOverride
	}
	if timeout > 0 && !ds.family.SupportsTimeout() {
		return Result{}, 0, fmt.Errorf("data source %q (%s): %w", ds.id, ds.family, ErrTimeoutNotSupported)
	}

	db := ds.DB()
	if db == nil {
		return errorResult("data source is not connected"), 0, nil
	}

	annotated := statement
	if annotation != "" {
		annotated = statement + " /*" + annotation + "*/"
	}

	start := time.Now()
	result := runOnConnection(ctx, db, ds, annotated, timeout)
	return result, timeSince(start), nil
}

func runOnConnection(ctx context.Context, db *sql.DB, ds *DataSource, statement string, timeout time.Duration) Result {
	// A dedicated connection keeps the session-scoped timeout setting and
	// the statement on the same backend session.
	conn, err := db.Conn(ctx)
	if err != nil {
		return classifyError(ds, err)
	}
	defer func() { _ = conn.Close() }()

	var runner sqlRunner = conn
	if ds.useTransaction {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return classifyError(ds, err)
		}
		// Rollback regardless of outcome. The forced rollback is the safety
		// guarantee that ad-hoc statements never have side effects.
		defer func() { _ = tx.Rollback() }()
		runner = tx
	}

	if timeout > 0 {
		if _, err := runner.ExecContext(ctx, ds.family.TimeoutStatement(timeout.Milliseconds())); err != nil {
			return classifyError(ds, err)
		}
	}

	rows, err := runner.QueryContext(ctx, statement)
	if err != nil {
		return classifyError(ds, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return classifyError(ds, err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return classifyError(ds, err)
	}

	collected := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return classifyError(ds, err)
		}
		collected = append(collected, castRow(values, types))
	}
	if err := rows.Err(); err != nil {
		return classifyError(ds, err)
	}

	if columns == nil {
		columns = []string{}
	}
	return Result{Columns: columns, Rows: collected}
}

// classifyError maps an execution failure to a Result: dialect timeout
// messages collapse to the canonical timeout message, everything else is
// passed through with dialect boilerplate stripped.
func classifyError(ds *DataSource, err error) Result {
	message := err.Error()
	for _, fragment := range ds.family.TimeoutErrorSubstrings() {
		if strings.Contains(message, fragment) {
			return timeoutResult()
		}
	}
	return errorResult(ds.family.StripErrorPrefix(message))
}

// buildAnnotation renders the trailing comment from the run options. The
// user display name is restricted to letters, digits, and spaces so the
// comment cannot smuggle SQL.
func buildAnnotation(opts RunOptions) string {
	parts := []string{annotationMarker}
	if opts.User != nil {
		if opts.User.ID != "" {
			parts = append(parts, "user_id:"+opts.User.ID)
		}
		if opts.User.Name != "" {
			parts = append(parts, "user_name:"+userNameSanitizer.ReplaceAllString(opts.User.Name, ""))
		}
	}
	if opts.QueryID != "" {
		parts = append(parts, "query_id:"+opts.QueryID)
	}
	if opts.Check != nil {
		if opts.Check.ID != "" {
			parts = append(parts, "check_id:"+opts.Check.ID)
		}
		if opts.Check.Emails != "" {
			// Keep the address list intact but make comment breakout impossible.
			parts = append(parts, "check_emails:"+strings.ReplaceAll(opts.Check.Emails, "*/", ""))
		}
	}
	return strings.Join(parts, ",")
}
