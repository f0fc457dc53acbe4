// Package ir is the intermediate representation shared by the model
// extractor, the schema introspectors and the differ: tables, columns and
// indexes in a backend-neutral shape, plus the Normalizer that makes two
// descriptions of the same schema compare equal.
package ir

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tiendc/go-deepcopy"
)

// ColumnType is the backend-neutral category of a column.
type ColumnType string

const (
	ColumnString      ColumnType = "STRING"
	ColumnText        ColumnType = "TEXT"
	ColumnInteger     ColumnType = "INTEGER"
	ColumnBigInt      ColumnType = "BIGINT"
	ColumnSmallInt    ColumnType = "SMALLINT"
	ColumnBoolean     ColumnType = "BOOLEAN"
	ColumnDecimal     ColumnType = "DECIMAL"
	ColumnFloat       ColumnType = "FLOAT"
	ColumnTimestamp   ColumnType = "TIMESTAMP"
	ColumnTimestampTZ ColumnType = "TIMESTAMPTZ"
	ColumnDate        ColumnType = "DATE"
	ColumnTime        ColumnType = "TIME"
	ColumnInterval    ColumnType = "INTERVAL"
	ColumnUUID        ColumnType = "UUID"
	ColumnJSONB       ColumnType = "JSONB"
	ColumnArray       ColumnType = "ARRAY"
	ColumnBinary      ColumnType = "BINARY"
)

// ColumnDefinition describes one column.
type ColumnDefinition struct {
	Name       string     `json:"name"`
	ColumnType ColumnType `json:"column_type"`
	// NativeType is the backend SQL spelling, e.g. "VARCHAR(255)" or "UUID[]".
	NativeType string  `json:"native_type"`
	Nullable   bool    `json:"nullable"`
	Default    *string `json:"default,omitempty"`
	MaxLength  int     `json:"max_length,omitempty"`
	Precision  int     `json:"precision,omitempty"`
	Scale      int     `json:"scale,omitempty"`

	IsPrimaryKey bool `json:"is_primary_key,omitempty"`
	IsForeignKey bool `json:"is_foreign_key,omitempty"`
	// References is schema.table(column) for foreign keys.
	References string `json:"references,omitempty"`

	// ElementType is set for ARRAY columns only.
	ElementType ColumnType `json:"element_type,omitempty"`
}

// IndexDefinition describes a secondary index. Columns keep the order the
// index was defined with.
type IndexDefinition struct {
	Name        string   `json:"name"`
	TableName   string   `json:"table_name"`
	Columns     []string `json:"columns"`
	Unique      bool     `json:"unique,omitempty"`
	IndexType   string   `json:"index_type,omitempty"`
	WhereClause string   `json:"where_clause,omitempty"`
}

// TableDefinition describes a table with its ordered columns and indexes.
type TableDefinition struct {
	Name    string              `json:"name"`
	Schema  string              `json:"schema"`
	Columns []*ColumnDefinition `json:"columns"`
	Indexes []*IndexDefinition  `json:"indexes,omitempty"`
}

// QualifiedName returns schema.name, or name when the schema is empty.
func (t *TableDefinition) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Column returns the column with the given name.
func (t *TableDefinition) Column(name string) (*ColumnDefinition, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Index returns the index with the given name.
func (t *TableDefinition) Index(name string) (*IndexDefinition, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}

// PrimaryKey returns the primary key column names in column order.
func (t *TableDefinition) PrimaryKey() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// Clone returns a deep copy of t.
func (t *TableDefinition) Clone() (*TableDefinition, error) {
	var out TableDefinition
	if err := deepcopy.Copy(&out, t); err != nil {
		return nil, fmt.Errorf("failed to copy table %s: %w", t.Name, err)
	}
	return &out, nil
}

// StringPtr returns a pointer to s, for Default values.
func StringPtr(s string) *string {
	return &s
}

var typeParams = regexp.MustCompile(`\(([^)]*)\)`)

// ParseTypeParams returns the numeric parameters of a native type, e.g.
// 10 and 2 for NUMERIC(10,2). MAX and non-numeric values are skipped.
func ParseTypeParams(native string) []int {
	m := typeParams.FindStringSubmatch(native)
	if m == nil {
		return nil
	}
	var params []int
	for _, p := range strings.Split(m[1], ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			params = append(params, n)
		}
	}
	return params
}

// ColumnTypeFromNative maps a native type spelling of any supported backend
// back to its ColumnType. Unknown spellings are STRING.
func ColumnTypeFromNative(native string) ColumnType {
	t := strings.ToUpper(strings.TrimSpace(native))
	if strings.HasSuffix(t, "[]") || strings.HasPrefix(t, "_") {
		return ColumnArray
	}
	base := t
	if i := strings.IndexByte(base, '('); i >= 0 {
		rest := ""
		if j := strings.IndexByte(base, ')'); j > i {
			rest = base[j+1:]
		}
		base = base[:i] + " " + rest
	}
	base = strings.Join(strings.Fields(base), " ")

	switch {
	case base == "UUID" || base == "UNIQUEIDENTIFIER" || t == "CHAR(36)":
		return ColumnUUID
	case base == "BOOLEAN" || base == "BOOL" || base == "BIT" || t == "TINYINT(1)":
		return ColumnBoolean
	case base == "BIGINT" || base == "INT8" || base == "BIGSERIAL":
		return ColumnBigInt
	case base == "SMALLINT" || base == "INT2" || base == "TINYINT":
		return ColumnSmallInt
	case base == "INTEGER" || base == "INT" || base == "INT4" || base == "MEDIUMINT" || base == "SERIAL":
		return ColumnInteger
	case base == "NUMERIC" || base == "DECIMAL" || base == "MONEY":
		return ColumnDecimal
	case base == "DOUBLE PRECISION" || base == "DOUBLE" || base == "FLOAT" || base == "FLOAT8" ||
		base == "FLOAT4" || base == "REAL":
		return ColumnFloat
	case strings.HasSuffix(base, "WITH TIME ZONE") && strings.HasPrefix(base, "TIMESTAMP"),
		base == "TIMESTAMPTZ", base == "DATETIMEOFFSET":
		return ColumnTimestampTZ
	case strings.HasPrefix(base, "TIMESTAMP"), base == "DATETIME", base == "DATETIME2", base == "SMALLDATETIME":
		return ColumnTimestamp
	case base == "DATE":
		return ColumnDate
	case strings.HasPrefix(base, "TIME"):
		return ColumnTime
	case strings.HasPrefix(base, "INTERVAL"):
		return ColumnInterval
	case base == "JSON" || base == "JSONB":
		return ColumnJSONB
	case base == "BYTEA" || strings.HasSuffix(base, "BLOB") || base == "VARBINARY" || base == "BINARY" || base == "IMAGE":
		return ColumnBinary
	case base == "TEXT" || base == "MEDIUMTEXT" || base == "LONGTEXT" || base == "TINYTEXT" || base == "CLOB" ||
		base == "NTEXT" || t == "NVARCHAR(MAX)" || t == "VARCHAR(MAX)":
		return ColumnText
	}
	return ColumnString
}
