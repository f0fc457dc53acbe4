// Package db holds the backend-facing pieces of the storage layer: dialect
// selection, connection opening, the Database Adapter (parameter styles and
// RETURNING emulation), a small query builder, error classification, retry
// with backoff, a circuit breaker and Prometheus metrics.
package db

import (
	"fmt"
	"strings"
)

// Dialect selects backend-specific behavior. It is always supplied
// explicitly by the caller.
type Dialect string

const (
	Postgres  Dialect = "postgres"
	MySQL     Dialect = "mysql"
	SQLServer Dialect = "sqlserver"
)

// ParamStyle is the placeholder syntax a backend driver accepts.
type ParamStyle string

const (
	// ParamPositional is $1, $2, ...
	ParamPositional ParamStyle = "positional"
	// ParamQMark is ?, ?, ...
	ParamQMark ParamStyle = "qmark"
)

// ParseDialect accepts the common spellings of each backend.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlserver", "mssql", "sql-server":
		return SQLServer, nil
	}
	return "", fmt.Errorf("unsupported dialect %q (expected postgres, mysql or sqlserver)", s)
}

// DefaultSchema is the schema used when a descriptor does not name one.
// MySQL has no schemas inside a database; an empty schema means the current
// database.
func (d Dialect) DefaultSchema() string {
	switch d {
	case Postgres:
		return "public"
	case SQLServer:
		return "dbo"
	}
	return ""
}

// SupportsPartialIndexes reports whether CREATE INDEX ... WHERE is available.
func (d Dialect) SupportsPartialIndexes() bool {
	return d != MySQL
}

// SupportsTransactionalDDL reports whether DDL can be rolled back.
func (d Dialect) SupportsTransactionalDDL() bool {
	return d != MySQL
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case Postgres:
		return "pgx"
	case MySQL:
		return "mysql"
	case SQLServer:
		// the "mssql" registration accepts ? placeholders
		return "mssql"
	}
	return ""
}

func (d Dialect) String() string {
	return string(d)
}
