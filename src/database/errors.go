package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrorKind classifies driver errors independent of the engine
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindUnknown
	KindAlreadyExists
	KindDuplicateKeyName
	KindDuplicateEntry
	KindReferenceViolation
	KindAuthFailed
	KindAccessDenied
	KindUnknownDatabase
	KindUnreachable
	KindSyntax
)

var kindNames = map[ErrorKind]string{
	KindNone:               "none",
	KindUnknown:            "unknown",
	KindAlreadyExists:      "already_exists",
	KindDuplicateKeyName:   "duplicate_key_name",
	KindDuplicateEntry:     "duplicate_entry",
	KindReferenceViolation: "reference_violation",
	KindAuthFailed:         "auth_failed",
	KindAccessDenied:       "access_denied",
	KindUnknownDatabase:    "unknown_database",
	KindUnreachable:        "unreachable",
	KindSyntax:             "syntax",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Benign reports whether a statement failing with this kind left the
// database in the state the statement was trying to reach
func (k ErrorKind) Benign() bool {
	switch k {
	case KindAlreadyExists, KindDuplicateKeyName, KindDuplicateEntry:
		return true
	}
	return false
}

// MySQL server error numbers
const (
	errDBAccessDenied    = 1044
	errAccessDenied      = 1045
	errBadDB             = 1049
	errTableExists       = 1050
	errDupKeyName        = 1061
	errDupEntry          = 1062
	errParse             = 1064
	errTableAccessDenied = 1142
	errNoReferencedRow   = 1216
	errNoReferencedRow2  = 1452
	errDupKey            = 1022
	errCantCreateTable   = 1005
	errFKDupName         = 1826
	errDBCreateExists    = 1007
)

// Classify maps a MySQL or SQLite driver error to an ErrorKind
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errTableExists, errFKDupName, errDupKey, errDBCreateExists:
			return KindAlreadyExists
		case errCantCreateTable:
			if strings.Contains(me.Message, "errno: 121") {
				return KindAlreadyExists
			}
		case errDupKeyName:
			return KindDuplicateKeyName
		case errDupEntry:
			return KindDuplicateEntry
		case errNoReferencedRow, errNoReferencedRow2:
			return KindReferenceViolation
		case errAccessDenied:
			return KindAuthFailed
		case errDBAccessDenied, errTableAccessDenied:
			return KindAccessDenied
		case errBadDB:
			return KindUnknownDatabase
		case errParse:
			return KindSyntax
		}
		return classifyMessage(me.Message)
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return KindDuplicateEntry
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return KindReferenceViolation
		}
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CANTOPEN:
			return KindUnknownDatabase
		case sqlite3.SQLITE_AUTH, sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY:
			return KindAccessDenied
		}
		return classifyMessage(se.Error())
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) {
		return KindUnreachable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindUnreachable
	}

	return classifyMessage(err.Error())
}

func classifyMessage(msg string) ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "duplicate key name"):
		return KindDuplicateKeyName
	case strings.Contains(m, "already exists"), strings.Contains(m, "duplicate foreign key"):
		return KindAlreadyExists
	case strings.Contains(m, "duplicate entry"), strings.Contains(m, "unique constraint failed"):
		return KindDuplicateEntry
	case strings.Contains(m, "cannot add or update a child row"), strings.Contains(m, "foreign key constraint fail"):
		return KindReferenceViolation
	case strings.Contains(m, "access denied"):
		return KindAccessDenied
	case strings.Contains(m, "unknown database"):
		return KindUnknownDatabase
	case strings.Contains(m, "connection refused"), strings.Contains(m, "no such host"), strings.Contains(m, "i/o timeout"):
		return KindUnreachable
	case strings.Contains(m, "syntax error"):
		return KindSyntax
	}
	return KindUnknown
}

// ConnectivityCategory tells the operator which credential field to fix
type ConnectivityCategory string

const (
	CategoryBadCredentials  ConnectivityCategory = "bad_credentials"
	CategoryUnreachable     ConnectivityCategory = "unreachable"
	CategoryDatabaseMissing ConnectivityCategory = "database_missing"
	CategoryPrivileges      ConnectivityCategory = "insufficient_privileges"
)

// ConnectivityError is returned by Connector.Test
type ConnectivityError struct {
	Category ConnectivityCategory
	Stage    string
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("database %s failed (%s): %v", e.Stage, e.Category, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Message returns operator-facing text for the category
func (e *ConnectivityError) Message() string {
	switch e.Category {
	case CategoryBadCredentials:
		return "The database server rejected the username or password."
	case CategoryUnreachable:
		return "Could not reach the database server. Check the host and port."
	case CategoryDatabaseMissing:
		return "The database does not exist and could not be created."
	case CategoryPrivileges:
		return "The database user is not allowed to create tables in this database."
	}
	return "Database connection failed."
}

func newConnectivityError(stage string, err error, fallback ConnectivityCategory) *ConnectivityError {
	category := fallback
	switch Classify(err) {
	case KindAuthFailed:
		category = CategoryBadCredentials
	case KindUnreachable:
		category = CategoryUnreachable
	case KindUnknownDatabase:
		category = CategoryDatabaseMissing
	case KindAccessDenied:
		category = CategoryPrivileges
	}
	return &ConnectivityError{Category: category, Stage: stage, Err: err}
}
