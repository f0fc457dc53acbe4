package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Adapter hides the differences between backends in parameter binding and
// "return the affected row" semantics. Queries handed to an adapter use $n
// placeholders; the adapter rewrites them for its driver.
type Adapter interface {
	Dialect() Dialect
	ParamStyle() ParamStyle
	// Placeholder returns the marker for the n-th (1-based) argument.
	Placeholder(n int) string
	QuoteIdentifier(name string) string
	// ConvertParams rewrites $n references into the driver's style and
	// returns the argument list in binding order.
	ConvertParams(query string, args []any) (string, []any, error)
	// ExecuteWithReturning runs an INSERT, UPDATE or DELETE that ends in
	// RETURNING * and returns the affected row, or nil when no row matched.
	// table is the quoted, qualified table the statement targets.
	ExecuteWithReturning(ctx context.Context, q Querier, query string, args []any, table string, opts ...ReturningOption) (Row, error)
}

// NewAdapter returns the adapter for a dialect.
func NewAdapter(d Dialect) (Adapter, error) {
	switch d {
	case Postgres:
		return &postgresAdapter{}, nil
	case MySQL:
		return &mysqlAdapter{}, nil
	case SQLServer:
		return &sqlServerAdapter{}, nil
	}
	return nil, storeerr.NewConfigurationError("db.NewAdapter",
		fmt.Sprintf("unsupported dialect %q", d),
		"use one of postgres, mysql or sqlserver")
}

// MustAdapter is NewAdapter for dialect constants known to be valid.
func MustAdapter(d Dialect) Adapter {
	a, err := NewAdapter(d)
	if err != nil {
		panic(err)
	}
	return a
}

// ReturningOption supplies the key of the affected row to backends that
// cannot return it natively.
type ReturningOption func(*returningConfig)

type keyPart struct {
	column string
	value  any
}

type returningConfig struct {
	key []keyPart
}

// WithReturningKey adds one column of the affected row's key. Repeat it for
// composite keys.
func WithReturningKey(column string, value any) ReturningOption {
	return func(c *returningConfig) {
		c.key = append(c.key, keyPart{column: column, value: value})
	}
}

// WithReturningID is WithReturningKey for the conventional id column.
func WithReturningID(id any) ReturningOption {
	return WithReturningKey("id", id)
}

func applyReturningOptions(opts []ReturningOption) returningConfig {
	var cfg returningConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

var returningSuffix = regexp.MustCompile(`(?is)\s+RETURNING\s+\*\s*;?\s*$`)

// splitReturning removes a trailing RETURNING * and reports whether it was
// present.
func splitReturning(query string) (string, bool) {
	loc := returningSuffix.FindStringIndex(query)
	if loc == nil {
		return query, false
	}
	return query[:loc[0]], true
}

// statementKind returns the leading keyword of a DML statement.
func statementKind(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// Exec converts and runs a statement that returns no rows.
func Exec(ctx context.Context, a Adapter, q Querier, query string, args ...any) (sql.Result, error) {
	converted, bound, err := a.ConvertParams(query, args)
	if err != nil {
		return nil, Classify(err, a.Dialect())
	}
	result, err := ExecContextWithLogging(ctx, q, converted, "exec", bound...)
	if err != nil {
		return nil, Classify(err, a.Dialect())
	}
	return result, nil
}

// Query converts and runs a statement and scans every row.
func Query(ctx context.Context, a Adapter, q Querier, query string, args ...any) ([]Row, error) {
	converted, bound, err := a.ConvertParams(query, args)
	if err != nil {
		return nil, Classify(err, a.Dialect())
	}
	return queryRows(ctx, a.Dialect(), q, converted, bound)
}

// QueryOne is Query returning the first row, or nil when there is none.
func QueryOne(ctx context.Context, a Adapter, q Querier, query string, args ...any) (Row, error) {
	rows, err := Query(ctx, a, q, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func queryRows(ctx context.Context, d Dialect, q Querier, query string, args []any) ([]Row, error) {
	rows, err := QueryContextWithLogging(ctx, q, query, "query", args...)
	if err != nil {
		return nil, Classify(err, d)
	}
	defer rows.Close()

	result, err := ScanRows(rows)
	if err != nil {
		return nil, Classify(err, d)
	}
	return result, nil
}

func firstRow(rows []Row) Row {
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

// postgresAdapter binds $n natively and supports RETURNING.
type postgresAdapter struct{}

func (a *postgresAdapter) Dialect() Dialect       { return Postgres }
func (a *postgresAdapter) ParamStyle() ParamStyle { return ParamPositional }

func (a *postgresAdapter) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (a *postgresAdapter) QuoteIdentifier(name string) string {
	return QuoteIdentifier(Postgres, name)
}

func (a *postgresAdapter) ConvertParams(query string, args []any) (string, []any, error) {
	return checkPositional(query, args)
}

func (a *postgresAdapter) ExecuteWithReturning(ctx context.Context, q Querier, query string, args []any, table string, opts ...ReturningOption) (Row, error) {
	if _, ok := splitReturning(query); !ok {
		query += " RETURNING *"
	}
	converted, bound, err := a.ConvertParams(query, args)
	if err != nil {
		return nil, Classify(err, Postgres)
	}
	rows, err := queryRows(ctx, Postgres, q, converted, bound)
	if err != nil {
		return nil, err
	}
	return firstRow(rows), nil
}

// sqlServerAdapter binds ? through the mssql driver and turns RETURNING
// into an OUTPUT clause.
type sqlServerAdapter struct{}

func (a *sqlServerAdapter) Dialect() Dialect       { return SQLServer }
func (a *sqlServerAdapter) ParamStyle() ParamStyle { return ParamQMark }

func (a *sqlServerAdapter) Placeholder(int) string { return "?" }

func (a *sqlServerAdapter) QuoteIdentifier(name string) string {
	return QuoteIdentifier(SQLServer, name)
}

func (a *sqlServerAdapter) ConvertParams(query string, args []any) (string, []any, error) {
	return toQMark(query, args)
}

func (a *sqlServerAdapter) ExecuteWithReturning(ctx context.Context, q Querier, query string, args []any, table string, opts ...ReturningOption) (Row, error) {
	rewritten, err := rewriteOutput(query)
	if err != nil {
		return nil, err
	}
	converted, bound, err := a.ConvertParams(rewritten, args)
	if err != nil {
		return nil, Classify(err, SQLServer)
	}
	rows, err := queryRows(ctx, SQLServer, q, converted, bound)
	if err != nil {
		return nil, err
	}
	return firstRow(rows), nil
}

// rewriteOutput moves RETURNING * into the position SQL Server expects for
// OUTPUT: before VALUES/SELECT for INSERT, before WHERE for UPDATE and
// DELETE.
func rewriteOutput(query string) (string, error) {
	body, _ := splitReturning(query)

	var clause string
	var anchors []string
	switch statementKind(body) {
	case "INSERT":
		clause, anchors = "OUTPUT INSERTED.*", []string{"VALUES", "SELECT", "DEFAULT"}
	case "UPDATE":
		clause, anchors = "OUTPUT INSERTED.*", []string{"WHERE"}
	case "DELETE":
		clause, anchors = "OUTPUT DELETED.*", []string{"WHERE"}
	default:
		return "", fmt.Errorf("cannot add OUTPUT clause to %q statement", statementKind(body))
	}

	for _, kw := range anchors {
		if pos := findTopLevelKeyword(body, kw); pos >= 0 {
			return body[:pos] + clause + " " + body[pos:], nil
		}
	}
	if statementKind(body) == "INSERT" {
		return "", fmt.Errorf("INSERT has no VALUES or SELECT: %q", body)
	}
	return strings.TrimRight(body, " ;") + " " + clause, nil
}

// findTopLevelKeyword returns the byte offset of kw as a whole word outside
// quotes and parentheses, or -1.
func findTopLevelKeyword(query, kw string) int {
	depth := 0
	var quote byte
	upper := strings.ToUpper(query)
	for i := 0; i < len(query); i++ {
		c := query[i]
		if quote != 0 {
			closing := quote
			if quote == '[' {
				closing = ']'
			}
			if c == closing {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`', '[':
			quote = c
			continue
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth != 0 || !strings.HasPrefix(upper[i:], kw) {
			continue
		}
		before := i == 0 || !isWordByte(query[i-1])
		end := i + len(kw)
		after := end == len(query) || !isWordByte(query[end])
		if before && after {
			return i
		}
	}
	return -1
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// mysqlAdapter emulates RETURNING by re-selecting the affected row. The
// row's key has to come from the caller (WithReturningKey) unless the table
// uses an auto-increment id.
type mysqlAdapter struct{}

func (a *mysqlAdapter) Dialect() Dialect       { return MySQL }
func (a *mysqlAdapter) ParamStyle() ParamStyle { return ParamQMark }

func (a *mysqlAdapter) Placeholder(int) string { return "?" }

func (a *mysqlAdapter) QuoteIdentifier(name string) string {
	return QuoteIdentifier(MySQL, name)
}

func (a *mysqlAdapter) ConvertParams(query string, args []any) (string, []any, error) {
	return toQMark(query, args)
}

func (a *mysqlAdapter) ExecuteWithReturning(ctx context.Context, q Querier, query string, args []any, table string, opts ...ReturningOption) (Row, error) {
	body, _ := splitReturning(query)
	cfg := applyReturningOptions(opts)
	kind := statementKind(body)

	switch kind {
	case "INSERT":
		result, err := Exec(ctx, a, q, body, args...)
		if err != nil {
			return nil, err
		}
		if len(cfg.key) == 0 {
			id, err := result.LastInsertId()
			if err != nil || id == 0 {
				return nil, fmt.Errorf("mysql INSERT on %s without a key: %w", table, storeerr.ErrReturningUnsupported)
			}
			cfg.key = []keyPart{{column: "id", value: id}}
		}
		return a.selectByKey(ctx, q, table, cfg.key)

	case "UPDATE":
		if len(cfg.key) == 0 {
			return nil, fmt.Errorf("mysql UPDATE on %s requires WithReturningKey: %w", table, storeerr.ErrReturningUnsupported)
		}
		result, err := Exec(ctx, a, q, body, args...)
		if err != nil {
			return nil, err
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return nil, nil
		}
		return a.selectByKey(ctx, q, table, cfg.key)

	case "DELETE":
		if len(cfg.key) == 0 {
			return nil, fmt.Errorf("mysql DELETE on %s requires WithReturningKey: %w", table, storeerr.ErrReturningUnsupported)
		}
		row, err := a.selectByKey(ctx, q, table, cfg.key)
		if err != nil {
			return nil, err
		}
		result, err := Exec(ctx, a, q, body, args...)
		if err != nil {
			return nil, err
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return nil, nil
		}
		return row, nil
	}
	return nil, fmt.Errorf("mysql %s statement: %w", kind, storeerr.ErrReturningUnsupported)
}

func (a *mysqlAdapter) selectByKey(ctx context.Context, q Querier, table string, key []keyPart) (Row, error) {
	conds := make([]string, len(key))
	args := make([]any, len(key))
	for i, k := range key {
		conds[i] = fmt.Sprintf("%s = $%d", a.QuoteIdentifier(k.column), i+1)
		args[i] = k.value
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", table, strings.Join(conds, " AND "))
	row, err := QueryOne(ctx, a, q, query, args...)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// IsReturningUnsupported reports whether err came from a backend that could
// not produce the affected row.
func IsReturningUnsupported(err error) bool {
	return errors.Is(err, storeerr.ErrReturningUnsupported)
}
