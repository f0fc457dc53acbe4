package ir

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/internal/logger"
)

// Inspector reads table definitions back from a live database. Primary-key
// and unique-constraint indexes are not reported; index columns keep the
// engine's definition order.
type Inspector interface {
	GetTables(ctx context.Context, schema string) (map[string]*TableDefinition, error)
	GetTable(ctx context.Context, table, schema string) (*TableDefinition, bool, error)
	GetColumns(ctx context.Context, table, schema string) ([]*ColumnDefinition, error)
	GetIndexes(ctx context.Context, table, schema string) ([]*IndexDefinition, error)
	TableExists(ctx context.Context, table, schema string) (bool, error)
}

// maxConcurrentTables bounds GetTables fan-out so introspection never holds
// more than a few pool connections.
const maxConcurrentTables = 4

// catalog holds the backend-specific catalog queries. Every query takes the
// schema and (except tablesQuery) the table name as its two arguments.
type catalog struct {
	tablesQuery  string
	existsQuery  string
	columnsQuery string
	indexesQuery string
	// fixDefault adjusts a raw default as read from the catalog.
	fixDefault func(col columnRow) *string
}

// columnRow is one row of a columnsQuery.
type columnRow struct {
	name       string
	nativeType string
	nullable   string
	defaultVal sql.NullString
	primaryKey sql.NullBool
	reference  sql.NullString
	extra      sql.NullString
}

// inspector implements Inspector over a catalog.
type inspector struct {
	dialect db.Dialect
	q       db.Querier
	catalog catalog
}

// NewInspector returns the introspector for d reading through q.
func NewInspector(d db.Dialect, q db.Querier) (Inspector, error) {
	var c catalog
	switch d {
	case db.Postgres:
		c = postgresCatalog
	case db.MySQL:
		c = mysqlCatalog
	case db.SQLServer:
		c = sqlServerCatalog
	default:
		return nil, fmt.Errorf("no inspector for dialect %q", d)
	}
	return &inspector{dialect: d, q: q, catalog: c}, nil
}

func (i *inspector) schemaOrDefault(schema string) string {
	if schema == "" {
		return i.dialect.DefaultSchema()
	}
	return schema
}

// GetTables introspects every base table of schema.
func (i *inspector) GetTables(ctx context.Context, schema string) (map[string]*TableDefinition, error) {
	schema = i.schemaOrDefault(schema)

	rows, err := db.QueryContextWithLogging(ctx, i.q, i.catalog.tablesQuery, "list tables", schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables in schema %q: %w", schema, err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tables in schema %q: %w", schema, err)
	}

	var (
		mu     sync.Mutex
		tables = make(map[string]*TableDefinition, len(names))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTables)
	for _, name := range names {
		g.Go(func() error {
			t, err := i.readTable(gctx, name, schema)
			if err != nil {
				return err
			}
			mu.Lock()
			tables[strings.ToLower(name)] = t
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Get().Debug("Introspected schema", "dialect", i.dialect, "schema", schema, "tables", len(tables))
	return tables, nil
}

// GetTable returns the table, or false when it does not exist.
func (i *inspector) GetTable(ctx context.Context, table, schema string) (*TableDefinition, bool, error) {
	schema = i.schemaOrDefault(schema)
	exists, err := i.TableExists(ctx, table, schema)
	if err != nil || !exists {
		return nil, false, err
	}
	t, err := i.readTable(ctx, table, schema)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// readTable fetches columns and indexes concurrently.
func (i *inspector) readTable(ctx context.Context, table, schema string) (*TableDefinition, error) {
	t := &TableDefinition{Name: table, Schema: schema}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cols, err := i.GetColumns(gctx, table, schema)
		t.Columns = cols
		return err
	})
	g.Go(func() error {
		idx, err := i.GetIndexes(gctx, table, schema)
		t.Indexes = idx
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return t, nil
}

// TableExists reports whether schema.table is a base table.
func (i *inspector) TableExists(ctx context.Context, table, schema string) (bool, error) {
	schema = i.schemaOrDefault(schema)
	var count int
	err := i.q.QueryRowContext(ctx, i.catalog.existsQuery, schema, table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return count > 0, nil
}

// GetColumns returns the columns of schema.table in ordinal order.
func (i *inspector) GetColumns(ctx context.Context, table, schema string) ([]*ColumnDefinition, error) {
	schema = i.schemaOrDefault(schema)
	rows, err := db.QueryContextWithLogging(ctx, i.q, i.catalog.columnsQuery, "columns of "+table, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []*ColumnDefinition
	for rows.Next() {
		var r columnRow
		if err := rows.Scan(&r.name, &r.nativeType, &r.nullable, &r.defaultVal, &r.primaryKey, &r.reference, &r.extra); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		columns = append(columns, i.buildColumn(r))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	return columns, nil
}

func (i *inspector) buildColumn(r columnRow) *ColumnDefinition {
	native := strings.TrimSpace(r.nativeType)
	col := &ColumnDefinition{
		Name:         r.name,
		NativeType:   native,
		ColumnType:   ColumnTypeFromNative(native),
		Nullable:     strings.EqualFold(r.nullable, "YES"),
		IsPrimaryKey: r.primaryKey.Valid && r.primaryKey.Bool,
	}
	if r.defaultVal.Valid {
		if i.catalog.fixDefault != nil {
			col.Default = i.catalog.fixDefault(r)
		} else {
			v := r.defaultVal.String
			col.Default = &v
		}
	}
	if r.reference.Valid && r.reference.String != "" {
		col.IsForeignKey = true
		col.References = r.reference.String
	}

	params := ParseTypeParams(native)
	switch col.ColumnType {
	case ColumnString:
		if len(params) > 0 {
			col.MaxLength = params[0]
		}
	case ColumnDecimal:
		if len(params) > 0 {
			col.Precision = params[0]
		}
		if len(params) > 1 {
			col.Scale = params[1]
		}
	case ColumnArray:
		elem := strings.TrimSuffix(strings.TrimPrefix(strings.ToUpper(native), "_"), "[]")
		col.ElementType = ColumnTypeFromNative(elem)
	}
	return col
}

// GetIndexes returns the secondary indexes of schema.table sorted by name.
func (i *inspector) GetIndexes(ctx context.Context, table, schema string) ([]*IndexDefinition, error) {
	schema = i.schemaOrDefault(schema)
	rows, err := db.QueryContextWithLogging(ctx, i.q, i.catalog.indexesQuery, "indexes of "+table, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes of %s: %w", table, err)
	}
	defer rows.Close()

	byName := make(map[string]*IndexDefinition)
	for rows.Next() {
		var (
			name, indexType, column string
			unique                  bool
			where                   sql.NullString
		)
		if err := rows.Scan(&name, &unique, &indexType, &where, &column); err != nil {
			return nil, fmt.Errorf("failed to scan index of %s: %w", table, err)
		}
		idx, ok := byName[name]
		if !ok {
			idx = &IndexDefinition{
				Name:        name,
				TableName:   table,
				Unique:      unique,
				IndexType:   strings.ToLower(indexType),
				WhereClause: where.String,
			}
			byName[name] = idx
		}
		// rows arrive in key order within each index
		idx.Columns = append(idx.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read indexes of %s: %w", table, err)
	}

	indexes := make([]*IndexDefinition, 0, len(byName))
	for _, idx := range byName {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(a, b int) bool { return indexes[a].Name < indexes[b].Name })
	return indexes, nil
}
