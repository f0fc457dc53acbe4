package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		dialect   Dialect
		err       error
		kind      storeerr.Kind
		retryable bool
	}{
		{"deadline", Postgres, fmt.Errorf("wrapped: %w", context.DeadlineExceeded), storeerr.KindQueryTimeout, true},
		{"bad conn", MySQL, driver.ErrBadConn, storeerr.KindConnection, true},
		{"pg connection failure", Postgres, &pgconn.PgError{Code: "08006"}, storeerr.KindConnection, true},
		{"pg too many connections", Postgres, &pgconn.PgError{Code: "53300"}, storeerr.KindConnection, true},
		{"pg serialization", Postgres, &pgconn.PgError{Code: "40001"}, storeerr.KindQuery, true},
		{"pg deadlock", Postgres, &pgconn.PgError{Code: "40P01"}, storeerr.KindQuery, true},
		{"pg query canceled", Postgres, &pgconn.PgError{Code: "57014"}, storeerr.KindQueryTimeout, true},
		{"pg unique violation", Postgres, &pgconn.PgError{Code: "23505"}, storeerr.KindQuery, false},
		{"mysql invalid conn", MySQL, mysql.ErrInvalidConn, storeerr.KindConnection, true},
		{"mysql deadlock", MySQL, &mysql.MySQLError{Number: 1213}, storeerr.KindQuery, true},
		{"mysql duplicate", MySQL, &mysql.MySQLError{Number: 1062}, storeerr.KindQuery, false},
		{"mssql deadlock", SQLServer, mssql.Error{Number: 1205}, storeerr.KindQuery, true},
		{"mssql syntax", SQLServer, mssql.Error{Number: 102}, storeerr.KindQuery, false},
		{"plain error", Postgres, errors.New("boom"), storeerr.KindQuery, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, tt.dialect)
			if kind := storeerr.KindOf(got); kind != tt.kind {
				t.Errorf("kind = %v, want %v", kind, tt.kind)
			}
			if r := storeerr.IsRetryable(got); r != tt.retryable {
				t.Errorf("retryable = %v, want %v", r, tt.retryable)
			}
			// mssql.Error holds a slice and is not comparable
			if tt.dialect != SQLServer && !errors.Is(got, tt.err) {
				t.Errorf("classified error does not wrap the driver error")
			}
		})
	}

	if Classify(nil, Postgres) != nil {
		t.Error("Classify(nil) should be nil")
	}
	typed := storeerr.New(storeerr.KindTenant, "op", "msg")
	if got := Classify(typed, Postgres); got != typed {
		t.Error("Classify should return typed errors unchanged")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"pgx", &pgconn.PgError{Code: "23505"}, true},
		{"pgx other", &pgconn.PgError{Code: "23503"}, false},
		{"mysql", &mysql.MySQLError{Number: 1062}, true},
		{"mssql constraint", mssql.Error{Number: 2627}, true},
		{"mssql index", mssql.Error{Number: 2601}, true},
		{"wrapped", Classify(&pgconn.PgError{Code: "23505"}, Postgres), true},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.want {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}
