package db

import (
	"fmt"
	"sort"
	"strings"
)

// Statement is a rendered DML statement. SQL uses $n placeholders; pass it
// through an Adapter to execute.
type Statement struct {
	SQL  string
	Args []any
	// Table is the quoted, qualified target table.
	Table string
}

// Returning appends RETURNING * for use with Adapter.ExecuteWithReturning.
func (s Statement) Returning() Statement {
	s.SQL += " RETURNING *"
	return s
}

// Op is a comparison operator in a Condition.
type Op string

const (
	OpEq        Op = "="
	OpNe        Op = "<>"
	OpLt        Op = "<"
	OpLte       Op = "<="
	OpGt        Op = ">"
	OpGte       Op = ">="
	OpLike      Op = "LIKE"
	OpIn        Op = "IN"
	OpIsNull    Op = "IS NULL"
	OpIsNotNull Op = "IS NOT NULL"
	// OpNullOrGreater matches col IS NULL OR col > value, the open end of a
	// validity interval.
	OpNullOrGreater Op = "NULL_OR_GT"
)

// Condition is one AND-ed predicate of a WHERE clause.
type Condition struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, value any) Condition  { return Condition{column, OpEq, value} }
func Lt(column string, value any) Condition  { return Condition{column, OpLt, value} }
func Lte(column string, value any) Condition { return Condition{column, OpLte, value} }
func Gt(column string, value any) Condition  { return Condition{column, OpGt, value} }
func IsNull(column string) Condition         { return Condition{Column: column, Op: OpIsNull} }
func IsNotNull(column string) Condition      { return Condition{Column: column, Op: OpIsNotNull} }

// In matches any of values. An empty list matches nothing.
func In(column string, values ...any) Condition { return Condition{column, OpIn, values} }

func NullOrGreater(column string, value any) Condition {
	return Condition{column, OpNullOrGreater, value}
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// SelectQuery describes a single-table SELECT.
type SelectQuery struct {
	// Columns defaults to *.
	Columns []string
	Where   []Condition
	OrderBy []Order
	Limit   int
	Offset  int
	// ForUpdate locks the selected rows until the transaction ends.
	ForUpdate bool
}

// Builder renders DML for one table in one dialect. Identifiers are always
// quoted and values are always bound as parameters.
type Builder struct {
	dialect Dialect
	table   string
}

// NewBuilder returns a builder for schema.table. An empty schema leaves the
// table unqualified.
func NewBuilder(d Dialect, schema, table string) *Builder {
	return &Builder{dialect: d, table: QualifiedName(d, schema, table)}
}

// Table returns the quoted, qualified table name.
func (b *Builder) Table() string { return b.table }

func (b *Builder) quote(name string) string { return QuoteIdentifier(b.dialect, name) }

// Insert renders an INSERT of values. Columns are emitted in sorted order.
func (b *Builder) Insert(values map[string]any) Statement {
	cols := sortedKeys(values)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = b.quote(c)
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[c]
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	return Statement{SQL: sql, Args: args, Table: b.table}
}

// Update renders UPDATE ... SET for the given values filtered by where.
func (b *Builder) Update(set map[string]any, where ...Condition) Statement {
	cols := sortedKeys(set)
	assignments := make([]string, len(cols))
	args := make([]any, 0, len(cols))
	for i, c := range cols {
		args = append(args, set[c])
		assignments[i] = fmt.Sprintf("%s = $%d", b.quote(c), len(args))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s", b.table, strings.Join(assignments, ", "))
	clause, args := b.where(where, args)
	return Statement{SQL: sql + clause, Args: args, Table: b.table}
}

// Delete renders DELETE FROM filtered by where.
func (b *Builder) Delete(where ...Condition) Statement {
	clause, args := b.where(where, nil)
	return Statement{SQL: "DELETE FROM " + b.table + clause, Args: args, Table: b.table}
}

// Count renders SELECT COUNT(*) filtered by where.
func (b *Builder) Count(where ...Condition) Statement {
	clause, args := b.where(where, nil)
	return Statement{SQL: "SELECT COUNT(*) AS count FROM " + b.table + clause, Args: args, Table: b.table}
}

// Select renders a SELECT with optional ordering, paging and row locks.
func (b *Builder) Select(q SelectQuery) Statement {
	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			quoted[i] = b.quote(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, b.table)
	if q.ForUpdate && b.dialect == SQLServer {
		sb.WriteString(" WITH (UPDLOCK, ROWLOCK)")
	}

	clause, args := b.where(q.Where, nil)
	sb.WriteString(clause)

	if len(q.OrderBy) > 0 {
		terms := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			terms[i] = b.quote(o.Column)
			if o.Desc {
				terms[i] += " DESC"
			}
		}
		sb.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}

	sb.WriteString(b.paging(q))

	if q.ForUpdate && b.dialect != SQLServer {
		sb.WriteString(" FOR UPDATE")
	}
	return Statement{SQL: sb.String(), Args: args, Table: b.table}
}

func (b *Builder) paging(q SelectQuery) string {
	if q.Limit <= 0 && q.Offset <= 0 {
		return ""
	}
	if b.dialect == SQLServer {
		var sb strings.Builder
		if len(q.OrderBy) == 0 {
			// OFFSET/FETCH requires an ORDER BY
			sb.WriteString(" ORDER BY (SELECT NULL)")
		}
		fmt.Fprintf(&sb, " OFFSET %d ROWS", max(q.Offset, 0))
		if q.Limit > 0 {
			fmt.Fprintf(&sb, " FETCH NEXT %d ROWS ONLY", q.Limit)
		}
		return sb.String()
	}

	var sb strings.Builder
	switch {
	case q.Limit > 0:
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	case b.dialect == MySQL:
		// MySQL accepts OFFSET only after LIMIT
		sb.WriteString(" LIMIT 18446744073709551615")
	}
	if q.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", q.Offset)
	}
	return sb.String()
}

// where renders the conditions, numbering placeholders after args.
func (b *Builder) where(conds []Condition, args []any) (string, []any) {
	if len(conds) == 0 {
		return "", args
	}
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		col := b.quote(c.Column)
		switch c.Op {
		case OpIsNull, OpIsNotNull:
			parts = append(parts, col+" "+string(c.Op))
		case OpIn:
			values, _ := c.Value.([]any)
			if len(values) == 0 {
				parts = append(parts, "1 = 0")
				continue
			}
			marks := make([]string, len(values))
			for i, v := range values {
				args = append(args, v)
				marks[i] = fmt.Sprintf("$%d", len(args))
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")))
		case OpNullOrGreater:
			args = append(args, c.Value)
			parts = append(parts, fmt.Sprintf("(%s IS NULL OR %s > $%d)", col, col, len(args)))
		default:
			args = append(args, c.Value)
			parts = append(parts, fmt.Sprintf("%s %s $%d", col, c.Op, len(args)))
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
