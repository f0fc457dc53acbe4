package db

import (
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
)

// binaryTypes keep their []byte values; every other []byte column is text.
var binaryTypes = map[string]bool{
	"BYTEA":      true,
	"BLOB":       true,
	"TINYBLOB":   true,
	"MEDIUMBLOB": true,
	"LONGBLOB":   true,
	"BINARY":     true,
	"VARBINARY":  true,
	"IMAGE":      true,
}

// ScanRows reads all remaining rows into maps keyed by lower-cased column
// name. Text columns returned as []byte are converted to string and SQL
// Server UNIQUEIDENTIFIER values are decoded to their canonical form.
func ScanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			v, err := convertValue(col.DatabaseTypeName(), values[i])
			if err != nil {
				return nil, fmt.Errorf("failed to decode column %s: %w", col.Name(), err)
			}
			row[strings.ToLower(col.Name())] = v
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return result, nil
}

func convertValue(typeName string, v any) (any, error) {
	b, ok := v.([]byte)
	if !ok {
		return v, nil
	}
	typeName = strings.ToUpper(typeName)
	switch {
	case typeName == "UNIQUEIDENTIFIER":
		var u mssql.UniqueIdentifier
		if err := u.Scan(b); err != nil {
			return nil, err
		}
		return u.String(), nil
	case binaryTypes[typeName]:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	}
	return string(b), nil
}
