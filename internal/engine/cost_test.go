package engine

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/AhmedPho/blazer/internal/adapter"
)

func TestEstimateCost(t *testing.T) {
	db, mock := newSQLMock(t)
	ds := testDataSource(t, DataSourceConfig{Adapter: adapter.Postgres}, db)

	mock.ExpectQuery(regexp.QuoteMeta("EXPLAIN SELECT * FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).
			AddRow("Seq Scan on users  (cost=0.00..458.00 rows=10000 width=244)"))

	cost := estimateCost(context.Background(), ds, "SELECT * FROM users")
	if cost == nil {
		t.Fatal("expected a cost estimate")
	}
	if *cost != 458.00 {
		t.Fatalf("cost = %v", *cost)
	}
	assertSQLMock(t, mock)
}

func TestEstimateCostUsesFirstCostLine(t *testing.T) {
	db, mock := newSQLMock(t)
	ds := testDataSource(t, DataSourceConfig{Adapter: adapter.Redshift}, db)

	mock.ExpectQuery("EXPLAIN").
		WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).
			AddRow("XN Hash Join DS_DIST_NONE  (cost=0.13..12.05 rows=5 width=8)").
			AddRow("  Hash Cond: (a.id = b.id)"))

	cost := estimateCost(context.Background(), ds, "SELECT 1")
	if cost == nil || *cost != 12.05 {
		t.Fatalf("cost = %v", cost)
	}
	assertSQLMock(t, mock)
}

func TestEstimateCostMalformedPlan(t *testing.T) {
	db, mock := newSQLMock(t)
	ds := testDataSource(t, DataSourceConfig{Adapter: adapter.Postgres}, db)

	mock.ExpectQuery("EXPLAIN").
		WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).AddRow("no cost here"))

	if cost := estimateCost(context.Background(), ds, "SELECT 1"); cost != nil {
		t.Fatalf("cost = %v, want nil", *cost)
	}
	assertSQLMock(t, mock)
}

func TestEstimateCostSwallowsErrors(t *testing.T) {
	db, mock := newSQLMock(t)
	ds := testDataSource(t, DataSourceConfig{Adapter: adapter.Postgres}, db)

	mock.ExpectQuery("EXPLAIN").WillReturnError(errors.New("connection reset"))

	if cost := estimateCost(context.Background(), ds, "SELECT 1"); cost != nil {
		t.Fatalf("cost = %v, want nil", *cost)
	}
	assertSQLMock(t, mock)
}

func TestEstimateCostUnsupportedDialect(t *testing.T) {
	db, mock := newSQLMock(t)
	ds := testDataSource(t, DataSourceConfig{Adapter: adapter.MySQL}, db)

	// No EXPLAIN expectation: the store must not be queried at all.
	if cost := estimateCost(context.Background(), ds, "SELECT 1"); cost != nil {
		t.Fatalf("cost = %v, want nil", *cost)
	}
	assertSQLMock(t, mock)
}
