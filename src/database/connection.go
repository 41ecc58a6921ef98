package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Supported drivers
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

// ValidIdentifier reports whether name is safe to use as a database name
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Credentials describes where the application database lives. For SQLite
// Name is the database file path and the network fields are ignored.
type Credentials struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// DriverName returns the normalized driver, defaulting to mysql
func (c Credentials) DriverName() string {
	switch strings.ToLower(c.Driver) {
	case "sqlite", "sqlite3":
		return DriverSQLite
	default:
		return DriverMySQL
	}
}

// Options tune DSN generation
type Options struct {
	ConnectTimeout time.Duration
	Charset        string
	Collation      string
}

// DefaultOptions returns utf8mb4 with a 5 second connect timeout
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 5 * time.Second,
		Charset:        "utf8mb4",
		Collation:      "utf8mb4_unicode_ci",
	}
}

// DSN builds the driver DSN. withDB=false omits the schema for MySQL so the
// server can be reached before the database exists.
func (c Credentials) DSN(opts Options, withDB bool) string {
	if c.DriverName() == DriverSQLite {
		return c.Name + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	if strings.HasPrefix(c.Host, "/") {
		cfg.Net = "unix"
		cfg.Addr = c.Host
	} else {
		port := c.Port
		if port == 0 {
			port = 3306
		}
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
	}
	if withDB {
		cfg.DBName = c.Name
	}
	cfg.Timeout = opts.ConnectTimeout
	cfg.ReadTimeout = TimeoutDDL
	cfg.WriteTimeout = TimeoutDDL
	cfg.ParseTime = true
	cfg.Collation = opts.Collation
	if opts.Charset != "" {
		cfg.Params = map[string]string{"charset": opts.Charset}
	}
	return cfg.FormatDSN()
}

// Open connects to the application database named by creds
func Open(ctx context.Context, creds Credentials, opts Options) (*sql.DB, Dialect, error) {
	dialect := DialectFor(creds.DriverName())

	db, err := sql.Open(dialect.Name(), creds.DSN(opts, true))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	ApplyPoolConfig(db, InstallerPoolConfig())

	if err := PingWithTimeout(ctx, db, pingTimeout(opts)); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, dialect, nil
}

func pingTimeout(opts Options) time.Duration {
	if opts.ConnectTimeout > 0 {
		return opts.ConnectTimeout
	}
	return TimeoutPing
}

// Connector probes credentials before anything is written
type Connector struct {
	Options Options
}

// NewConnector creates a connector
func NewConnector(opts Options) *Connector {
	return &Connector{Options: opts}
}

// Test verifies the server is reachable with creds, that the database exists
// or can be created, and that the account may create and drop tables in it.
// On success the credentials are returned unchanged for the session.
func (c *Connector) Test(ctx context.Context, creds Credentials) (*Credentials, error) {
	if creds.DriverName() == DriverMySQL && !ValidIdentifier(creds.Name) {
		return nil, &ConnectivityError{
			Category: CategoryDatabaseMissing,
			Stage:    "validate",
			Err:      fmt.Errorf("invalid database name %q", creds.Name),
		}
	}

	dialect := DialectFor(creds.DriverName())
	db, err := sql.Open(dialect.Name(), creds.DSN(c.Options, false))
	if err != nil {
		return nil, &ConnectivityError{Category: CategoryUnreachable, Stage: "open", Err: err}
	}
	defer db.Close()

	if err := PingWithTimeout(ctx, db, pingTimeout(c.Options)); err != nil {
		return nil, newConnectivityError("connect", err, CategoryUnreachable)
	}

	ctx, cancel := context.WithTimeout(ctx, TimeoutDDL)
	defer cancel()

	// USE only affects one session, so the probe runs on a pinned connection.
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, newConnectivityError("connect", err, CategoryUnreachable)
	}
	defer conn.Close()

	if stmt, ok := dialect.CreateDatabaseSQL(creds.Name, c.Options.Charset, c.Options.Collation); ok {
		if _, createErr := conn.ExecContext(ctx, stmt); createErr != nil {
			// Shared hosts often deny CREATE DATABASE on a schema that already
			// exists; the USE below decides whether that matters.
			if _, useErr := conn.ExecContext(ctx, mustUse(dialect, creds.Name)); useErr != nil {
				return nil, newConnectivityError("create database", useErr, CategoryDatabaseMissing)
			}
		}
	}
	if stmt, ok := dialect.UseDatabaseSQL(creds.Name); ok {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, newConnectivityError("select database", err, CategoryDatabaseMissing)
		}
	}

	scratch, err := scratchTableName()
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, "CREATE TABLE "+dialect.Quote(scratch)+" (id INTEGER)"); err != nil {
		return nil, newConnectivityError("create table", err, CategoryPrivileges)
	}
	if _, err := conn.ExecContext(ctx, "DROP TABLE "+dialect.Quote(scratch)); err != nil {
		return nil, newConnectivityError("drop table", err, CategoryPrivileges)
	}

	verified := creds
	return &verified, nil
}

func mustUse(d Dialect, name string) string {
	stmt, _ := d.UseDatabaseSQL(name)
	return stmt
}

func scratchTableName() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate probe name: %w", err)
	}
	return "memberkit_probe_" + hex.EncodeToString(b), nil
}
