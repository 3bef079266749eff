package engine

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/AhmedPho/blazer/internal/adapter"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func testDataSource(t *testing.T, cfg DataSourceConfig, db *sql.DB) *DataSource {
	t.Helper()
	cfg.AllowEmptyURL = true
	if cfg.ID == "" {
		cfg.ID = "main"
	}
	ds, err := NewDataSource(cfg)
	if err != nil {
		t.Fatalf("NewDataSource() error = %v", err)
	}
	ds.setDB(db)
	return ds
}

func TestExecuteRollsBackOnSuccess(t *testing.T) {
	db, mock := newSQLMock(t)
	ds := testDataSource(t, DataSourceConfig{Adapter: adapter.Postgres}, db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users /*blazer*/")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectRollback()

	result, duration, err := executeStatement(context.Background(), ds, "SELECT id FROM users", 0, "blazer")
	if err != nil {
		t.Fatalf("executeStatement() error = %v", err)
	}
	if result.Error != "" {
		t.Fatalf("Result.Error = %q", result.Error)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("len(Rows) = %d", len(result.Rows))
	}
	if duration < 0 {
		t.Fatalf("duration = %v", duration)
	}
	assertSQLMock(t, mock)
}

func TestExecuteRollsBackOnFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	ds := testDataSource(t, DataSourceConfig{Adapter: adapter.Postgres}, db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(errors.New(`ERROR:  relation "users" does not exist`))
	mock.ExpectRollback()

	result, _, err := executeStatement(context.Background(), ds, "INSERT INTO users VALUES (1)", 0, "")
	if err != nil {
		t.Fatalf("executeStatement() error = %v", err)
	}
	if result.Error != `relation "users" does not exist` {
		t.Fatalf("Result.Error = %q", result.Error)
	}
	if len(result.Rows) != 0 {
		t.Fatal("failed execution must return no rows")
	}
	assertSQLMock(t, mock)
}

func TestExecuteIssuesTimeoutStatementFirst(t *testing.T) {
	db, mock := newSQLMock(t)
	ds := testDataSource(t, DataSourceConfig{Adapter: adapter.Postgres, Timeout: 15 * time.Second}, db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET statement_timeout = 15000")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(1)))
	mock.ExpectRollback()

	result, _, err := executeStatement(context.Background(), ds, "SELECT 1", 0, "")
	if err != nil {
		t.Fatalf("executeStatement() error = %v", err)
	}
	if result.Error != "" {
		t.Fatalf("Result.Error = %q", result.Error)
	}
	assertSQLMock(t, mock)
}

func TestExecuteTimeoutOverride(t *testing.T) {
	db, mock := newSQLMock(t)
	ds := testDataSource(t, DataSourceConfig{Adapter: adapter.MySQL, Timeout: 15 * time.Second}, db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET max_execution_time = 5000")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	mock.ExpectRollback()

	if _, _, err := executeStatement(context.Background(), ds, "SELECT 1", 5*time.Second, ""); err != nil {
		t.Fatalf("executeStatement() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestExecuteClassifiesTimeout(t *testing.T) {
	db, mock := newSQLMock(t)
	ds := testDataSource(t, DataSourceConfig{Adapter: adapter.Postgres, Timeout: time.Second}, db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET statement_timeout = 1000")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_sleep(10)")).
		WillReturnError(errors.New("ERROR: canceling statement due to statement timeout"))
	mock.ExpectRollback()

	result, _, err := executeStatement(context.Background(), ds, "SELECT pg_sleep(10)", 0, "")
	if err != nil {
		t.Fatalf("executeStatement() error = %v", err)
	}
	if !result.TimedOut {
		t.Fatal("TimedOut = false")
	}
	if result.Error != TimeoutMessage {
		t.Fatalf("Result.Error = %q, want canonical timeout message", result.Error)
	}
	assertSQLMock(t, mock)
}

func TestExecuteRejectsTimeoutOnUnsupportedAdapter(t *testing.T) {
	db, _ := newSQLMock(t)
	ds := testDataSource(t, DataSourceConfig{Adapter: adapter.DuckDB}, db)

	_, _, err := executeStatement(context.Background(), ds, "SELECT 1", 5*time.Second, "")
	if !errors.Is(err, ErrTimeoutNotSupported) {
		t.Fatalf("err = %v, want ErrTimeoutNotSupported", err)
	}
}

func TestExecuteWithoutTransaction(t *testing.T) {
	db, mock := newSQLMock(t)
	useTransaction := false
	ds := testDataSource(t, DataSourceConfig{Adapter: adapter.Postgres, UseTransaction: &useTransaction}, db)

	// No Begin/Rollback expected.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(1)))

	result, _, err := executeStatement(context.Background(), ds, "SELECT 1", 0, "")
	if err != nil {
		t.Fatalf("executeStatement() error = %v", err)
	}
	if result.Error != "" {
		t.Fatalf("Result.Error = %q", result.Error)
	}
	assertSQLMock(t, mock)
}

func TestExecuteDisconnectedDataSource(t *testing.T) {
	ds := testDataSource(t, DataSourceConfig{Adapter: adapter.Postgres}, nil)

	result, _, err := executeStatement(context.Background(), ds, "SELECT 1", 0, "")
	if err != nil {
		t.Fatalf("executeStatement() error = %v", err)
	}
	if result.Error == "" {
		t.Fatal("expected execution error for disconnected source")
	}
}

func TestBuildAnnotation(t *testing.T) {
	opts := RunOptions{
		User:    &UserRef{ID: "7", Name: "Bob O'Brien; DROP TABLE x"},
		QueryID: "42",
		Check:   &CheckRef{ID: "9", Emails: "ops@example.com"},
	}
	got := buildAnnotation(opts)
	want := "blazer,user_id:7,user_name:Bob OBrien DROP TABLE x,query_id:42,check_id:9,check_emails:ops@example.com"
	if got != want {
		t.Fatalf("buildAnnotation() = %q, want %q", got, want)
	}
}

func TestBuildAnnotationBareMarker(t *testing.T) {
	if got := buildAnnotation(RunOptions{}); got != "blazer" {
		t.Fatalf("buildAnnotation() = %q", got)
	}
}
