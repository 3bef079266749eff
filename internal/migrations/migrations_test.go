package migrations

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
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

func TestLoadMigrations(t *testing.T) {
	items, err := loadMigrations(embeddedFS)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	for i, item := range items {
		if i > 0 && items[i-1].Version >= item.Version {
			t.Fatalf("migrations not ordered: %d before %d", items[i-1].Version, item.Version)
		}
		if strings.TrimSpace(item.UpSQL) == "" {
			t.Fatalf("migration %d has empty up SQL", item.Version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			t.Fatalf("migration %d has empty down SQL", item.Version)
		}
	}
	if !strings.Contains(items[0].UpSQL, "blazer_audits") {
		t.Fatal("first migration is not the audits table")
	}
	if !strings.Contains(items[1].UpSQL, "blazer_checks") {
		t.Fatal("second migration is not the checks table")
	}
}

func TestUpAppliesPendingMigrations(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := NewRunner()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS blazer_schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM blazer_schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(1)))

	// Only migration 2 is pending.
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE blazer_checks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO blazer_schema_migrations").
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := runner.Up(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestDownRollsBackNewestFirst(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := NewRunner()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS blazer_schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM blazer_schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(2)).AddRow(int64(1)))

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE IF EXISTS blazer_checks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM blazer_schema_migrations").
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rolledBack, err := runner.Down(context.Background(), db, 1)
	if err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if rolledBack != 1 {
		t.Fatalf("rolledBack = %d", rolledBack)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
