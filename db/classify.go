package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/fenixflow/ff-storage-sub000/storeerr"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/omeid/pgerror"
)

// MySQL server error numbers.
const (
	mysqlDupEntry           = 1062
	mysqlLockDeadlock       = 1213
	mysqlLockWaitTimeout    = 1205
	mysqlTooManyConnections = 1040
	mysqlQueryInterrupted   = 1317
	mysqlMaxExecutionTime   = 3024
)

// SQL Server error numbers.
const (
	mssqlUniqueConstraint = 2627
	mssqlUniqueIndex      = 2601
	mssqlDeadlockVictim   = 1205
	mssqlLockTimeout      = 1222
)

// Classify maps a driver error to a typed storage error. Errors that are
// already typed, and nil, are returned unchanged. The driver error stays in
// the chain so errors.As can still reach it.
func Classify(err error, d Dialect) error {
	if err == nil {
		return nil
	}
	var se *storeerr.Error
	if errors.As(err, &se) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &storeerr.Error{Kind: storeerr.KindQueryTimeout, Op: "query", Retryable: true, Err: err}
	case errors.Is(err, context.Canceled):
		return &storeerr.Error{Kind: storeerr.KindQuery, Op: "query", Message: "canceled", Err: err}
	case errors.Is(err, driver.ErrBadConn):
		return &storeerr.Error{Kind: storeerr.KindConnection, Op: "query", Retryable: true, Err: err}
	}

	var kind storeerr.Kind
	var retryable bool
	switch d {
	case Postgres:
		kind, retryable = classifyPostgres(err)
	case MySQL:
		kind, retryable = classifyMySQL(err)
	case SQLServer:
		kind, retryable = classifySQLServer(err)
	}

	if kind == storeerr.KindUnknown {
		var netErr net.Error
		if errors.As(err, &netErr) {
			kind, retryable = storeerr.KindConnection, true
			if netErr.Timeout() {
				kind = storeerr.KindQueryTimeout
			}
		} else {
			kind = storeerr.KindQuery
		}
	}
	return &storeerr.Error{Kind: kind, Op: "query", Retryable: retryable, Err: err}
}

func classifyPostgres(err error) (storeerr.Kind, bool) {
	if pgconn.Timeout(err) {
		return storeerr.KindQueryTimeout, true
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		var connErr *pgconn.ConnectError
		if errors.As(err, &connErr) {
			return storeerr.KindConnection, true
		}
		return storeerr.KindUnknown, false
	}

	// pgerror matches on *pq.Error, so carry the SQLSTATE over.
	pqErr := &pq.Error{Code: pq.ErrorCode(pgErr.Code), Message: pgErr.Message}
	switch {
	case pgerror.ConnectionException(pqErr) != nil,
		pgerror.ConnectionDoesNotExist(pqErr) != nil,
		pgerror.ConnectionFailure(pqErr) != nil,
		pgerror.SQLclientUnableToEstablishSQLconnection(pqErr) != nil,
		pgerror.TooManyConnections(pqErr) != nil,
		pgerror.AdminShutdown(pqErr) != nil,
		pgerror.CannotConnectNow(pqErr) != nil:
		return storeerr.KindConnection, true
	case pgerror.QueryCanceled(pqErr) != nil:
		return storeerr.KindQueryTimeout, true
	case pgerror.SerializationFailure(pqErr) != nil,
		pgerror.DeadlockDetected(pqErr) != nil,
		pgerror.LockNotAvailable(pqErr) != nil:
		return storeerr.KindQuery, true
	}
	return storeerr.KindQuery, false
}

func classifyMySQL(err error) (storeerr.Kind, bool) {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return storeerr.KindConnection, true
	}
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return storeerr.KindUnknown, false
	}
	switch myErr.Number {
	case mysqlTooManyConnections:
		return storeerr.KindConnection, true
	case mysqlQueryInterrupted, mysqlMaxExecutionTime:
		return storeerr.KindQueryTimeout, true
	case mysqlLockDeadlock, mysqlLockWaitTimeout:
		return storeerr.KindQuery, true
	}
	return storeerr.KindQuery, false
}

func classifySQLServer(err error) (storeerr.Kind, bool) {
	var msErr mssql.Error
	if !errors.As(err, &msErr) {
		return storeerr.KindUnknown, false
	}
	switch msErr.Number {
	case mssqlDeadlockVictim, mssqlLockTimeout:
		return storeerr.KindQuery, true
	}
	return storeerr.KindQuery, false
}

// IsUniqueViolation reports whether err is a unique or primary key
// violation on any supported backend.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerror.UniqueViolation(&pq.Error{Code: pq.ErrorCode(pgErr.Code)}) != nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgerror.UniqueViolation(pqErr) != nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDupEntry
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number == mssqlUniqueConstraint || msErr.Number == mssqlUniqueIndex
	}
	return false
}
