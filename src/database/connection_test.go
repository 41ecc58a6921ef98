package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCredentialsDSN(t *testing.T) {
	creds := Credentials{Host: "db.local", Port: 3307, Name: "member", User: "app", Password: "p@ss"}
	opts := DefaultOptions()

	dsn := creds.DSN(opts, true)
	for _, want := range []string{"app:p@ss@tcp(db.local:3307)/member", "charset=utf8mb4", "parseTime=true", "timeout=5s"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
	if noDB := creds.DSN(opts, false); strings.Contains(noDB, "/member") {
		t.Errorf("server dsn must omit database: %s", noDB)
	}

	socket := Credentials{Host: "/var/run/mysqld/mysqld.sock", Name: "member", User: "app"}
	if dsn := socket.DSN(opts, true); !strings.Contains(dsn, "unix(/var/run/mysqld/mysqld.sock)") {
		t.Errorf("socket dsn = %s", dsn)
	}

	defaultPort := Credentials{Host: "db", Name: "m", User: "u"}
	if dsn := defaultPort.DSN(opts, true); !strings.Contains(dsn, "tcp(db:3306)") {
		t.Errorf("default port dsn = %s", dsn)
	}
}

func TestValidIdentifier(t *testing.T) {
	for name, want := range map[string]bool{
		"membership":       true,
		"member_db_2":      true,
		"":                 false,
		"bad-name":         false,
		"x`; DROP TABLE y": false,
		strings.Repeat("a", 65): false,
	} {
		if got := ValidIdentifier(name); got != want {
			t.Errorf("ValidIdentifier(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestConnectorTestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.db")
	creds := Credentials{Driver: "sqlite", Name: path}

	got, err := NewConnector(DefaultOptions()).Test(context.Background(), creds)
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if *got != creds {
		t.Errorf("verified credentials changed: %+v", got)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	db, d, err := Open(context.Background(), creds, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name LIKE 'memberkit_probe_%'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("scratch table left behind (%s)", d.Name())
	}
}

func TestConnectorTestRejectsBadName(t *testing.T) {
	_, err := NewConnector(DefaultOptions()).Test(context.Background(), Credentials{Host: "127.0.0.1", Name: "bad name", User: "u"})
	var ce *ConnectivityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectivityError, got %v", err)
	}
	if ce.Category != CategoryDatabaseMissing {
		t.Errorf("category = %s", ce.Category)
	}
}

func TestConnectorTestUnreachable(t *testing.T) {
	opts := DefaultOptions()
	opts.ConnectTimeout = 500 * time.Millisecond

	// port 1 on loopback is never a MySQL server
	_, err := NewConnector(opts).Test(context.Background(), Credentials{Host: "127.0.0.1", Port: 1, Name: "member", User: "u"})
	var ce *ConnectivityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectivityError, got %v", err)
	}
	if ce.Category != CategoryUnreachable {
		t.Errorf("category = %s (%v)", ce.Category, ce.Err)
	}
}
