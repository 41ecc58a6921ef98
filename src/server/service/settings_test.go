package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/apimgr/memberkit/src/database"
	"github.com/apimgr/memberkit/src/utils"
)

func createTables(t *testing.T, db database.Execer, d database.Dialect) {
	t.Helper()
	for _, table := range database.Tables {
		for _, stmt := range d.CreateTableSQL(table) {
			if _, err := db.ExecContext(context.Background(), stmt); err != nil {
				t.Fatalf("create %s: %v", table.Name, err)
			}
		}
	}
}

func TestDefaultSettingsCatalog(t *testing.T) {
	catalog, err := DefaultSettings()
	if err != nil {
		t.Fatalf("DefaultSettings() error = %v", err)
	}
	if len(catalog) < 90 {
		t.Errorf("catalog has %d entries, want at least 90", len(catalog))
	}

	keys := make(map[string]Setting)
	validTypes := map[string]bool{"string": true, "integer": true, "boolean": true, "json": true, "text": true, "array": true}
	for _, s := range catalog {
		keys[s.Key] = s
		if !validTypes[s.Type] {
			t.Errorf("%s has invalid type %q", s.Key, s.Type)
		}
		if s.Category == "" {
			t.Errorf("%s has no category", s.Key)
		}
	}
	for _, key := range DerivedKeys {
		if _, ok := keys[key]; !ok {
			t.Errorf("derived key %s missing from catalog", key)
		}
	}
}

func TestParseSettingsRejectsDuplicates(t *testing.T) {
	_, err := parseSettings([]byte(`
- category: general
  settings:
    - {key: a, value: "1"}
    - {key: a, value: "2"}
`))
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate key error, got %v", err)
	}
}

func TestSeedDefaultsIsWriteOnce(t *testing.T) {
	db, d := openTestDB(t)
	createTables(t, db, d)
	seeder := NewSettingsSeeder(d, utils.NewDiscardLogger())
	ctx := context.Background()

	inserted, err := seeder.SeedDefaults(ctx, db)
	if err != nil {
		t.Fatalf("SeedDefaults() error = %v", err)
	}
	catalog, _ := DefaultSettings()
	if inserted != len(catalog) {
		t.Errorf("inserted = %d, want %d", inserted, len(catalog))
	}

	if _, err := db.Exec("UPDATE settings SET setting_value = 'Custom' WHERE setting_key = 'site_tagline'"); err != nil {
		t.Fatal(err)
	}

	inserted, err = seeder.SeedDefaults(ctx, db)
	if err != nil || inserted != 0 {
		t.Errorf("second SeedDefaults() = %d, %v; want 0, nil", inserted, err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM settings"); n != len(catalog) {
		t.Errorf("row count = %d, want %d", n, len(catalog))
	}
	var tagline string
	db.QueryRow("SELECT setting_value FROM settings WHERE setting_key = 'site_tagline'").Scan(&tagline)
	if tagline != "Custom" {
		t.Errorf("customized value overwritten: %q", tagline)
	}
}

func TestSeedDefaultsSkipsWhenAnyRowExists(t *testing.T) {
	db, d := openTestDB(t)
	createTables(t, db, d)
	if _, err := db.Exec("INSERT INTO settings (setting_key, setting_value) VALUES ('only', 'one')"); err != nil {
		t.Fatal(err)
	}

	inserted, err := NewSettingsSeeder(d, utils.NewDiscardLogger()).SeedDefaults(context.Background(), db)
	if err != nil || inserted != 0 {
		t.Errorf("SeedDefaults() = %d, %v", inserted, err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM settings"); n != 1 {
		t.Errorf("row count = %d, want 1", n)
	}
}

func TestUpsertInstallationDerived(t *testing.T) {
	db, d := openTestDB(t)
	installSchema(t, db, d)
	seeder := NewSettingsSeeder(d, utils.NewDiscardLogger())
	seeder.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	before := countRows(t, db, "SELECT COUNT(*) FROM settings")

	first := Derived{AdminEmail: "admin@example.com", SiteName: "First", SiteURL: "https://example.com", AdminUserID: 1}
	if err := seeder.UpsertInstallationDerived(ctx, db, first); err != nil {
		t.Fatalf("first upsert error = %v", err)
	}
	second := first
	second.SiteName = "Second"
	if err := seeder.UpsertInstallationDerived(ctx, db, second); err != nil {
		t.Fatalf("second upsert error = %v", err)
	}

	if after := countRows(t, db, "SELECT COUNT(*) FROM settings"); after != before {
		t.Errorf("row count %d -> %d, derived keys must update in place", before, after)
	}
	for _, key := range DerivedKeys {
		if n := countRows(t, db, "SELECT COUNT(*) FROM settings WHERE setting_key = ?", key); n != 1 {
			t.Errorf("%s has %d rows", key, n)
		}
	}

	values, err := LoadSettings(ctx, db, d)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"site_name":         "Second",
		"mail_from_name":    "Second",
		"admin_email":       "admin@example.com",
		"mail_from_address": "admin@example.com",
		"primary_admin_id":  "1",
		"installation_date": "2026-03-01 12:00:00",
	}
	for k, v := range want {
		if values[k] != v {
			t.Errorf("%s = %q, want %q", k, values[k], v)
		}
	}
}

func TestUpsertInstallationDerivedOnEmptyTable(t *testing.T) {
	db, d := openTestDB(t)
	createTables(t, db, d)

	err := NewSettingsSeeder(d, utils.NewDiscardLogger()).UpsertInstallationDerived(context.Background(), db,
		Derived{AdminEmail: "a@b.io", SiteName: "S", SiteURL: "http://s", AdminUserID: 7})
	if err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM settings"); n != len(DerivedKeys) {
		t.Errorf("row count = %d, want %d", n, len(DerivedKeys))
	}
}
