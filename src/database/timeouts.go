// Package database provides the connection, schema definition and SQL
// dialect layer used by the installer. All queries carry timeouts.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Query timeout constants
const (
	TimeoutSimpleSelect = 5 * time.Second
	TimeoutWrite        = 10 * time.Second
	TimeoutDDL          = 60 * time.Second
	TimeoutTransaction  = 5 * time.Minute
	TimeoutPing         = 5 * time.Second
)

// Execer is the subset of *sql.DB, *sql.Conn and *sql.Tx the installer
// components run statements against
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PoolConfig holds connection pool settings
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// InstallerPoolConfig returns pool settings for a single-operator wizard
func InstallerPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpen:     5,
		MaxIdle:     2,
		MaxLifetime: 5 * time.Minute,
		MaxIdleTime: 1 * time.Minute,
	}
}

// ApplyPoolConfig applies pool configuration to database
func ApplyPoolConfig(db *sql.DB, cfg PoolConfig) {
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)
}

// ExecContext executes a statement with timeout
func ExecContext(ctx context.Context, q Execer, timeout time.Duration, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return q.ExecContext(ctx, query, args...)
}

// CountRows returns the number of rows in table
func CountRows(ctx context.Context, q Execer, d Dialect, table string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, TimeoutSimpleSelect)
	defer cancel()

	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+d.Quote(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// TableExists reports whether table exists in the current database
func TableExists(ctx context.Context, q Execer, d Dialect, table string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, TimeoutSimpleSelect)
	defer cancel()

	var n int
	if err := q.QueryRowContext(ctx, d.TableExistsSQL(), table).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

// WithTransaction executes fn within a transaction. Commit is the only
// success exit; any error from fn rolls back.
func WithTransaction(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, TimeoutTransaction)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// PingWithTimeout tests database connection with timeout
func PingWithTimeout(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.PingContext(ctx)
}
