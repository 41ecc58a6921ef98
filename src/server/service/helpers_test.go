package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apimgr/memberkit/src/database"
	"github.com/apimgr/memberkit/src/utils"
)

// openTestDB opens a temp-file SQLite database
func openTestDB(t *testing.T) (*sql.DB, database.Dialect) {
	t.Helper()
	creds := database.Credentials{Driver: database.DriverSQLite, Name: filepath.Join(t.TempDir(), "test.db")}
	db, d, err := database.Open(context.Background(), creds, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, d
}

func newTestInstaller(d database.Dialect) *SchemaInstaller {
	logger := utils.NewDiscardLogger()
	return NewSchemaInstaller(d, NewSettingsSeeder(d, logger), NewConstraintApplier(d, logger), logger)
}

// installSchema creates all tables and seeds settings
func installSchema(t *testing.T, db *sql.DB, d database.Dialect) {
	t.Helper()
	if _, err := newTestInstaller(d).Install(context.Background(), db); err != nil {
		t.Fatalf("schema install failed: %v", err)
	}
}

func countRows(t *testing.T, db *sql.DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count query %q failed: %v", query, err)
	}
	return n
}

var errSimulated = errors.New("simulated failure")

// failingExecer fails the nth CREATE TABLE statement it sees
type failingExecer struct {
	database.Execer
	failAt int
	only   string
	seen   int
}

func (f *failingExecer) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if strings.HasPrefix(query, "CREATE TABLE") {
		f.seen++
		if f.seen == f.failAt || (f.only != "" && strings.Contains(query, `"`+f.only+`"`)) {
			return nil, errSimulated
		}
	}
	return f.Execer.ExecContext(ctx, query, args...)
}

// constraintDialect replaces the constraint statement with a fixed one
type constraintDialect struct {
	database.Dialect
	stmt string
}

func (c constraintDialect) AddConstraintSQL(database.Constraint) (string, bool) {
	return c.stmt, true
}
