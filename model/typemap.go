package model

import (
	"fmt"
	"strings"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/ir"
)

const (
	defaultStringLength = 255
	defaultPrecision    = 15
	defaultScale        = 2
)

// MappedType is the column shape of a field on one dialect.
type MappedType struct {
	ColumnType  ir.ColumnType
	NativeType  string
	ElementType ir.ColumnType
	MaxLength   int
	Precision   int
	Scale       int
	// Nullable is set by Optional fields.
	Nullable bool
}

var primitiveColumnTypes = map[FieldType]ir.ColumnType{
	TypeUUID:     ir.ColumnUUID,
	TypeBool:     ir.ColumnBoolean,
	TypeInt:      ir.ColumnInteger,
	TypeInt64:    ir.ColumnBigInt,
	TypeFloat:    ir.ColumnFloat,
	TypeString:   ir.ColumnString,
	TypeText:     ir.ColumnText,
	TypeDate:     ir.ColumnDate,
	TypeTime:     ir.ColumnTime,
	TypeDateTime: ir.ColumnTimestampTZ,
	TypeDuration: ir.ColumnInterval,
	TypeDecimal:  ir.ColumnDecimal,
	TypeBytes:    ir.ColumnBinary,
}

// MapField maps a field to its column type and native spelling. A DBType
// override always wins.
func MapField(f Field, d db.Dialect) (MappedType, error) {
	m := MappedType{Nullable: f.Optional}

	if f.DBType != "" {
		m.NativeType = f.DBType
		m.ColumnType = ir.ColumnTypeFromNative(f.DBType)
		params := ir.ParseTypeParams(f.DBType)
		switch m.ColumnType {
		case ir.ColumnString:
			if len(params) > 0 {
				m.MaxLength = params[0]
			}
		case ir.ColumnDecimal:
			if len(params) > 1 {
				m.Precision, m.Scale = params[0], params[1]
			}
		case ir.ColumnArray:
			elem := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(f.DBType)), "[]")
			m.ElementType = ir.ColumnTypeFromNative(elem)
		}
		return m, nil
	}

	switch f.Type {
	case TypeList, TypeSet:
		elem, ok := primitiveColumnTypes[f.Elem]
		if !ok || f.Elem == TypeBytes {
			m.ColumnType = ir.ColumnJSONB
			break
		}
		m.ColumnType = ir.ColumnArray
		m.ElementType = elem
	case TypeTuple, TypeMap, TypeJSON, TypeStruct:
		m.ColumnType = ir.ColumnJSONB
	default:
		ct, ok := primitiveColumnTypes[f.Type]
		if !ok {
			return MappedType{}, fmt.Errorf("field %s: unsupported type %q", f.Name, f.Type)
		}
		m.ColumnType = ct
	}

	switch m.ColumnType {
	case ir.ColumnString:
		m.MaxLength = f.MaxLength
		if m.MaxLength <= 0 {
			m.MaxLength = defaultStringLength
		}
	case ir.ColumnDecimal:
		m.Precision = firstPositive(f.DBPrecision, f.Precision, defaultPrecision)
		m.Scale = firstPositive(f.DBScale, f.Scale, defaultScale)
	}

	m.NativeType = NativeType(d, m.ColumnType, m.MaxLength, m.Precision, m.Scale, m.ElementType)
	return m, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// NativeType spells a column type for d. Array element strings become TEXT
// since element lengths are not enforced.
func NativeType(d db.Dialect, ct ir.ColumnType, length, precision, scale int, elem ir.ColumnType) string {
	switch ct {
	case ir.ColumnString:
		if length <= 0 {
			length = defaultStringLength
		}
		if d == db.SQLServer {
			return fmt.Sprintf("NVARCHAR(%d)", length)
		}
		return fmt.Sprintf("VARCHAR(%d)", length)
	case ir.ColumnDecimal:
		if precision <= 0 {
			precision, scale = defaultPrecision, defaultScale
		}
		if d == db.Postgres {
			return fmt.Sprintf("NUMERIC(%d,%d)", precision, scale)
		}
		return fmt.Sprintf("DECIMAL(%d,%d)", precision, scale)
	case ir.ColumnArray:
		if d != db.Postgres {
			return jsonNative(d)
		}
		if elem == ir.ColumnString || elem == "" {
			elem = ir.ColumnText
		}
		return NativeType(d, elem, 0, 0, 0, "") + "[]"
	case ir.ColumnJSONB:
		return jsonNative(d)
	}
	return fixedNative[d][ct]
}

func jsonNative(d db.Dialect) string {
	switch d {
	case db.MySQL:
		return "JSON"
	case db.SQLServer:
		return "NVARCHAR(MAX)"
	}
	return "JSONB"
}

// spellings of the parameterless column types.
var fixedNative = map[db.Dialect]map[ir.ColumnType]string{
	db.Postgres: {
		ir.ColumnUUID:        "UUID",
		ir.ColumnBoolean:     "BOOLEAN",
		ir.ColumnInteger:     "INTEGER",
		ir.ColumnBigInt:      "BIGINT",
		ir.ColumnSmallInt:    "SMALLINT",
		ir.ColumnFloat:       "DOUBLE PRECISION",
		ir.ColumnText:        "TEXT",
		ir.ColumnTimestampTZ: "TIMESTAMP WITH TIME ZONE",
		ir.ColumnTimestamp:   "TIMESTAMP",
		ir.ColumnDate:        "DATE",
		ir.ColumnTime:        "TIME",
		ir.ColumnInterval:    "INTERVAL",
		ir.ColumnBinary:      "BYTEA",
	},
	db.MySQL: {
		ir.ColumnUUID:        "CHAR(36)",
		ir.ColumnBoolean:     "BOOLEAN",
		ir.ColumnInteger:     "INT",
		ir.ColumnBigInt:      "BIGINT",
		ir.ColumnSmallInt:    "SMALLINT",
		ir.ColumnFloat:       "DOUBLE",
		ir.ColumnText:        "TEXT",
		ir.ColumnTimestampTZ: "DATETIME(6)",
		ir.ColumnTimestamp:   "DATETIME(6)",
		ir.ColumnDate:        "DATE",
		ir.ColumnTime:        "TIME",
		ir.ColumnInterval:    "BIGINT",
		ir.ColumnBinary:      "LONGBLOB",
	},
	db.SQLServer: {
		ir.ColumnUUID:        "UNIQUEIDENTIFIER",
		ir.ColumnBoolean:     "BIT",
		ir.ColumnInteger:     "INT",
		ir.ColumnBigInt:      "BIGINT",
		ir.ColumnSmallInt:    "SMALLINT",
		ir.ColumnFloat:       "FLOAT",
		ir.ColumnText:        "NVARCHAR(MAX)",
		ir.ColumnTimestampTZ: "DATETIMEOFFSET",
		ir.ColumnTimestamp:   "DATETIME2",
		ir.ColumnDate:        "DATE",
		ir.ColumnTime:        "TIME",
		ir.ColumnInterval:    "BIGINT",
		ir.ColumnBinary:      "VARBINARY(MAX)",
	},
}

// NowExpression is the dialect's current-timestamp default for the
// timestamp columns the strategies own.
func NowExpression(d db.Dialect) string {
	switch d {
	case db.MySQL:
		return "CURRENT_TIMESTAMP(6)"
	case db.SQLServer:
		return "SYSDATETIMEOFFSET()"
	}
	return "NOW()"
}
