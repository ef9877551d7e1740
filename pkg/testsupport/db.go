package testsupport

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// OpenSQLite returns an isolated in-memory bun database for a test. The
// connection pool is pinned to one connection so every query sees the same
// in-memory store; the handle is closed with the test.
func OpenSQLite(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// CreateTables registers and creates tables for the given bun models.
func CreateTables(t *testing.T, db *bun.DB, models ...any) {
	t.Helper()

	ctx := context.Background()
	for _, model := range models {
		db.RegisterModel(model)
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			t.Fatalf("failed to create table for %T: %v", model, err)
		}
	}
}

// MustExec runs a statement and fails the test on error.
func MustExec(t *testing.T, db *bun.DB, query string, args ...any) {
	t.Helper()

	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("failed to exec %q: %v", query, err)
	}
}
