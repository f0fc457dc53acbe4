package db

import (
	"context"
	"database/sql"

	"github.com/fenixflow/ff-storage-sub000/internal/logger"
)

// ExecContextWithLogging executes SQL with debug logging if debug mode is enabled.
// It logs the SQL statement before execution and the result/error after execution.
func ExecContextWithLogging(ctx context.Context, q Querier, sqlStmt string, description string, args ...any) (sql.Result, error) {
	isDebug := logger.IsDebug()
	if isDebug {
		logger.Get().Debug("Executing SQL", "description", description, "sql", sqlStmt, "args", len(args))
	}

	result, err := q.ExecContext(ctx, sqlStmt, args...)

	if isDebug {
		if err != nil {
			logger.Get().Debug("SQL execution failed", "description", description, "error", err)
		} else {
			logger.Get().Debug("SQL execution succeeded", "description", description)
		}
	}

	return result, err
}

// QueryContextWithLogging is the row-returning counterpart of ExecContextWithLogging.
func QueryContextWithLogging(ctx context.Context, q Querier, sqlStmt string, description string, args ...any) (*sql.Rows, error) {
	isDebug := logger.IsDebug()
	if isDebug {
		logger.Get().Debug("Executing query", "description", description, "sql", sqlStmt, "args", len(args))
	}

	rows, err := q.QueryContext(ctx, sqlStmt, args...)
	if isDebug && err != nil {
		logger.Get().Debug("Query failed", "description", description, "error", err)
	}
	return rows, err
}
