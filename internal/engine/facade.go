// Package engine executes ad-hoc SQL statements against configured data
// sources, layering result caching, forced-rollback isolation, adapter-level
// timeouts, cost estimation, and audit recording around the raw execution.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/AhmedPho/blazer/internal/cache"
	"github.com/AhmedPho/blazer/internal/observability"
)

// UserRef annotates a statement with the requesting user.
type UserRef struct {
	ID   string
	Name string
}

// CheckRef annotates a statement triggered by a scheduled check.
type CheckRef struct {
	ID     string
	Emails string
}

// RunOptions enumerates every recognized per-run option.
type RunOptions struct {
	// User, QueryID, and Check only annotate the statement and the audit
	// entry; they never change execution semantics.
	User    *UserRef
	QueryID string
	Check   *CheckRef

	// RunID, when set, writes the result to the run cache regardless of the
	// statement-cache policy, so async callers can poll for it.
	RunID string

	// RefreshCache bypasses the statement-cache read for this run.
	RefreshCache bool

	// TimeoutOverride replaces the data source's configured timeout.
	TimeoutOverride time.Duration
}

// AuditEntry is the execution record handed to the Recorder once per
// non-cache-hit execution attempt.
type AuditEntry struct {
	DataSourceID string
	Statement    string
	UserID       string
	QueryID      string
	Duration     time.Duration
	Error        string
	TimedOut     bool
	Cached       bool
	Cost         *float64
	CreatedAt    time.Time
}

// AuditRecorder receives execution metadata. Fire-and-forget: failures are
// logged, never propagated.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// CheckNotifier updates the pass/fail state of every check registered for a
// query from the query's latest result.
type CheckNotifier interface {
	NotifyChecks(ctx context.Context, queryID string, result Result) error
}

// Engine is the public entry point composing cache policy, execution, cost
// estimation, auditing, and check notification. A nil Audit disables
// auditing (and with it cost estimation); a nil Checks disables check
// notification. Safe for concurrent use.
type Engine struct {
	Cache  cache.Store
	Audit  AuditRecorder
	Checks CheckNotifier
	Logger *slog.Logger

	// Now overrides the clock. Test hook.
	Now func() time.Time
}

func (e *Engine) timeNow() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) log(ctx context.Context, msg string, args ...any) {
	if e.Logger != nil {
		e.Logger.WarnContext(ctx, msg, args...)
	}
}

// Run executes a statement against the data source, consulting the statement
// cache first. Execution failures are returned inside the Result; the error
// return is reserved for configuration failures such as
// ErrTimeoutNotSupported.
func (e *Engine) Run(ctx context.Context, ds *DataSource, statement string, opts RunOptions) (Result, error) {
	if strings.TrimSpace(statement) == "" {
		return Result{}, errors.New("statement is required")
	}

	cacheCfg := ds.CacheSettings()
	statementKey := StatementKey(ds.ID(), statement)

	if e.Cache != nil && cacheCfg.Readable(opts.RefreshCache) {
		if result, ok := e.readStatementCache(ctx, statementKey); ok {
			observability.RecordCacheHit("statement")
			if opts.RunID != "" {
				e.writeRunCache(ctx, opts.RunID, result)
			}
			return result, nil
		}
		observability.RecordCacheMiss("statement")
	}

	result, duration, err := executeStatement(ctx, ds, statement, opts.TimeoutOverride, buildAnnotation(opts))
	if err != nil {
		return Result{}, err
	}
	observability.ObserveQuery(ds.ID(), queryStatus(result), duration)

	var cost *float64
	if e.Audit != nil {
		cost = estimateCost(ctx, ds, statement)
	}

	if e.Cache != nil && cacheCfg.ShouldCache(duration, result.Error != "") {
		if data, err := encodeResult(result, e.timeNow()); err != nil {
			e.log(ctx, "skipping statement cache write", slog.Any("error", err))
		} else if err := e.Cache.Write(ctx, statementKey, data, cacheCfg.Expiry); err != nil {
			observability.RecordCacheWriteFailure()
			e.log(ctx, "statement cache write failed", slog.String("key", statementKey), slog.Any("error", err))
		}
	}
	if e.Cache != nil && opts.RunID != "" {
		e.writeRunCache(ctx, opts.RunID, result)
	}

	if e.Audit != nil {
		entry := AuditEntry{
			DataSourceID: ds.ID(),
			Statement:    statement,
			Duration:     duration,
			Error:        result.Error,
			TimedOut:     result.TimedOut,
			Cached:       result.Cached,
			Cost:         cost,
			QueryID:      opts.QueryID,
			CreatedAt:    e.timeNow(),
		}
		if opts.User != nil {
			entry.UserID = opts.User.ID
		}
		if err := e.Audit.Record(ctx, entry); err != nil {
			observability.RecordAuditFailure()
			e.log(ctx, "audit write failed", slog.Any("error", err))
		}
	}

	if e.Checks != nil && opts.QueryID != "" && shouldNotifyChecks(result) {
		if err := e.Checks.NotifyChecks(ctx, opts.QueryID, result); err != nil {
			e.log(ctx, "check notification failed", slog.String("query_id", opts.QueryID), slog.Any("error", err))
		}
	}

	return result, nil
}

// RunResults looks up a previously started run. found is false when the run
// is unknown or its cache entry expired.
func (e *Engine) RunResults(ctx context.Context, runID string) (Result, bool, error) {
	if e.Cache == nil {
		return Result{}, false, nil
	}
	data, found, err := e.Cache.Read(ctx, RunKey(runID))
	if err != nil || !found {
		return Result{}, false, err
	}
	result, err := decodeResult(data)
	if err != nil {
		return Result{}, false, err
	}
	return result, true, nil
}

// DeleteResults invalidates a run-cache entry.
func (e *Engine) DeleteResults(ctx context.Context, runID string) error {
	if e.Cache == nil {
		return nil
	}
	return e.Cache.Delete(ctx, RunKey(runID))
}

// ClearCache invalidates the statement-cache entry for a statement, e.g. on
// a manual refresh.
func (e *Engine) ClearCache(ctx context.Context, ds *DataSource, statement string) error {
	if e.Cache == nil {
		return nil
	}
	return e.Cache.Delete(ctx, StatementKey(ds.ID(), statement))
}

// Tables lists table names in the data source's configured or inferred
// schemas.
func (e *Engine) Tables(ctx context.Context, ds *DataSource) ([]string, error) {
	db := ds.DB()
	if db == nil {
		return nil, errors.New("data source is not connected")
	}
	query, args := ds.Family().TablesStatement(ds.SchemaList())
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tables, nil
}

func (e *Engine) readStatementCache(ctx context.Context, key string) (Result, bool) {
	data, found, err := e.Cache.Read(ctx, key)
	if err != nil {
		e.log(ctx, "statement cache read failed", slog.String("key", key), slog.Any("error", err))
		return Result{}, false
	}
	if !found {
		return Result{}, false
	}
	result, err := decodeResult(data)
	if err != nil {
		e.log(ctx, "discarding undecodable cache entry", slog.String("key", key), slog.Any("error", err))
		return Result{}, false
	}
	return result, true
}

// writeRunCache always writes when a run ID was supplied, regardless of the
// statement-cache policy. A serialization failure is replaced by a
// placeholder entry so pollers never hang on a missing key.
func (e *Engine) writeRunCache(ctx context.Context, runID string, result Result) {
	data, err := encodeResult(result, e.timeNow())
	if err != nil {
		e.log(ctx, "run result serialization failed", slog.String("run_id", runID), slog.Any("error", err))
		data = encodePlaceholder(e.timeNow())
	}
	if data == nil {
		return
	}
	if err := e.Cache.Write(ctx, RunKey(runID), data, RunCacheTTL); err != nil {
		observability.RecordCacheWriteFailure()
		e.log(ctx, "run cache write failed", slog.String("run_id", runID), slog.Any("error", err))
	}
}

func shouldNotifyChecks(result Result) bool {
	if result.TimedOut {
		return false
	}
	return !strings.Contains(result.Error, "permission denied")
}

func queryStatus(result Result) string {
	switch {
	case result.TimedOut:
		return "timeout"
	case result.Error != "":
		return "error"
	default:
		return "ok"
	}
}
