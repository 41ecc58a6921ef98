package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	creds := Credentials{Driver: DriverSQLite, Name: filepath.Join(t.TempDir(), "test.db")}
	db, _, err := Open(context.Background(), creds, DefaultOptions())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMySQLCreateTable(t *testing.T) {
	d := DialectFor(DriverMySQL)
	stmts := d.CreateTableSQL(Tables[0])
	if len(stmts) != 1 {
		t.Fatalf("expected a single statement, got %d", len(stmts))
	}
	sql := stmts[0]

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS `users`",
		"`id` INT UNSIGNED NOT NULL AUTO_INCREMENT",
		"`membership_tier` ENUM('free','basic','premium') NOT NULL DEFAULT 'free'",
		"`referred_by` INT UNSIGNED NULL",
		"`last_login_at` TIMESTAMP NULL DEFAULT NULL",
		"ON UPDATE CURRENT_TIMESTAMP",
		"PRIMARY KEY (`id`)",
		"UNIQUE KEY `uq_users_email` (`email`)",
		"KEY `idx_users_referred_by` (`referred_by`)",
		"ENGINE=InnoDB",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("statement missing %q\n%s", want, sql)
		}
	}
}

func TestMySQLAddConstraint(t *testing.T) {
	stmt, ok := DialectFor(DriverMySQL).AddConstraintSQL(Constraints[0])
	if !ok {
		t.Fatal("mysql must support adding constraints")
	}
	want := "ALTER TABLE `users` ADD CONSTRAINT `fk_users_referred_by` FOREIGN KEY (`referred_by`) REFERENCES `users` (`id`) ON DELETE SET NULL"
	if stmt != want {
		t.Errorf("got %q\nwant %q", stmt, want)
	}
}

func TestUpsertSQL(t *testing.T) {
	cols := []string{"setting_key", "setting_value"}
	update := []string{"setting_value"}

	tests := []struct {
		driver string
		want   string
	}{
		{DriverMySQL, "INSERT INTO `settings` (`setting_key`, `setting_value`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `setting_value` = VALUES(`setting_value`)"},
		{DriverSQLite, `INSERT INTO "settings" ("setting_key", "setting_value") VALUES (?, ?) ON CONFLICT("setting_key") DO UPDATE SET "setting_value" = excluded."setting_value"`},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			got := DialectFor(tt.driver).UpsertSQL("settings", cols, "setting_key", update)
			if got != tt.want {
				t.Errorf("got %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestQuoteEscapes(t *testing.T) {
	if got := DialectFor(DriverMySQL).Quote("a`b"); got != "`a``b`" {
		t.Errorf("mysql quote = %s", got)
	}
	if got := DialectFor(DriverSQLite).Quote(`a"b`); got != `"a""b"` {
		t.Errorf("sqlite quote = %s", got)
	}
}

func TestSQLiteSchemaApplies(t *testing.T) {
	db := openTestDB(t)
	d := DialectFor(DriverSQLite)
	ctx := context.Background()

	// twice: every statement must be idempotent
	for pass := 0; pass < 2; pass++ {
		for _, table := range Tables {
			for _, stmt := range d.CreateTableSQL(table) {
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					t.Fatalf("pass %d: %s: %v", pass, table.Name, err)
				}
			}
		}
	}

	for _, name := range TableNames() {
		ok, err := TableExists(ctx, db, d, name)
		if err != nil {
			t.Fatalf("TableExists(%s) error = %v", name, err)
		}
		if !ok {
			t.Errorf("table %s missing", name)
		}
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO users (name, email, password, affiliate_code, membership_tier) VALUES ('a', 'a@x.io', 'h', 'AAAA', 'gold')`); err == nil {
		t.Error("enum CHECK should reject unknown tier")
	}
}

func TestSchemaShape(t *testing.T) {
	if len(Tables) != 11 {
		t.Errorf("expected 11 tables, got %d", len(Tables))
	}
	if len(Constraints) != 11 {
		t.Errorf("expected 11 constraints, got %d", len(Constraints))
	}
	if Tables[0].Name != "users" {
		t.Errorf("users must be created first, got %s", Tables[0].Name)
	}

	known := make(map[string]map[string]bool)
	for _, table := range Tables {
		cols := make(map[string]bool)
		for _, c := range table.Columns {
			cols[c.Name] = true
		}
		known[table.Name] = cols
	}
	for _, c := range Constraints {
		if !known[c.Table][c.Column] {
			t.Errorf("%s references unknown column %s.%s", c.Name, c.Table, c.Column)
		}
		if !known[c.RefTable][c.RefColumn] {
			t.Errorf("%s references unknown target %s.%s", c.Name, c.RefTable, c.RefColumn)
		}
	}
}
