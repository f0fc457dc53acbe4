package ir

import (
	"regexp"
	"strings"

	"github.com/fenixflow/ff-storage-sub000/db"
)

var postgresCatalog = catalog{
	tablesQuery: `
SELECT c.relname
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relkind IN ('r', 'p')
ORDER BY c.relname`,

	existsQuery: `
SELECT COUNT(*)
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2 AND c.relkind IN ('r', 'p')`,

	columnsQuery: `
SELECT
    a.attname,
    format_type(a.atttypid, a.atttypmod),
    CASE WHEN a.attnotnull THEN 'NO' ELSE 'YES' END,
    pg_get_expr(d.adbin, d.adrelid),
    EXISTS (
        SELECT 1 FROM pg_catalog.pg_index ix
        WHERE ix.indrelid = c.oid AND ix.indisprimary AND a.attnum = ANY(ix.indkey)
    ),
    (
        SELECT fn.nspname || '.' || fc.relname || '(' || fa.attname || ')'
        FROM pg_catalog.pg_constraint con
        JOIN pg_catalog.pg_class fc ON fc.oid = con.confrelid
        JOIN pg_catalog.pg_namespace fn ON fn.oid = fc.relnamespace
        JOIN pg_catalog.pg_attribute fa
            ON fa.attrelid = con.confrelid AND fa.attnum = con.confkey[array_position(con.conkey, a.attnum)]
        WHERE con.conrelid = c.oid AND con.contype = 'f' AND a.attnum = ANY(con.conkey)
        LIMIT 1
    ),
    NULL
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_catalog.pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
WHERE n.nspname = $1 AND c.relname = $2 AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`,

	// indkey ordinality keeps the definition order of the key columns
	indexesQuery: `
SELECT
    i.relname,
    ix.indisunique,
    am.amname,
    pg_get_expr(ix.indpred, ix.indrelid),
    a.attname
FROM pg_catalog.pg_index ix
JOIN pg_catalog.pg_class t ON t.oid = ix.indrelid
JOIN pg_catalog.pg_class i ON i.oid = ix.indexrelid
JOIN pg_catalog.pg_namespace n ON n.oid = t.relnamespace
JOIN pg_catalog.pg_am am ON am.oid = i.relam
CROSS JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord)
JOIN pg_catalog.pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
WHERE n.nspname = $1 AND t.relname = $2
  AND NOT ix.indisprimary
  AND NOT EXISTS (
      SELECT 1 FROM pg_catalog.pg_constraint con
      WHERE con.conindid = ix.indexrelid AND con.contype IN ('p', 'u')
  )
ORDER BY i.relname, k.ord`,
}

// MySQL's schema is the database; an empty schema means the current one.
var mysqlCatalog = catalog{
	tablesQuery: `
SELECT TABLE_NAME
FROM information_schema.TABLES
WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_TYPE = 'BASE TABLE'
ORDER BY TABLE_NAME`,

	existsQuery: `
SELECT COUNT(*)
FROM information_schema.TABLES
WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ? AND TABLE_TYPE = 'BASE TABLE'`,

	columnsQuery: `
SELECT
    c.COLUMN_NAME,
    c.COLUMN_TYPE,
    c.IS_NULLABLE,
    c.COLUMN_DEFAULT,
    c.COLUMN_KEY = 'PRI',
    (
        SELECT CONCAT(k.REFERENCED_TABLE_SCHEMA, '.', k.REFERENCED_TABLE_NAME, '(', k.REFERENCED_COLUMN_NAME, ')')
        FROM information_schema.KEY_COLUMN_USAGE k
        WHERE k.TABLE_SCHEMA = c.TABLE_SCHEMA AND k.TABLE_NAME = c.TABLE_NAME
          AND k.COLUMN_NAME = c.COLUMN_NAME AND k.REFERENCED_TABLE_NAME IS NOT NULL
        LIMIT 1
    ),
    c.EXTRA
FROM information_schema.COLUMNS c
WHERE c.TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND c.TABLE_NAME = ?
ORDER BY c.ORDINAL_POSITION`,

	// MySQL reports unique indexes as UNIQUE constraints too, so only the
	// primary key and the indexes backing foreign keys are skipped.
	indexesQuery: `
SELECT
    s.INDEX_NAME,
    s.NON_UNIQUE = 0,
    s.INDEX_TYPE,
    NULL,
    s.COLUMN_NAME
FROM information_schema.STATISTICS s
WHERE s.TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND s.TABLE_NAME = ?
  AND s.INDEX_NAME <> 'PRIMARY'
  AND NOT EXISTS (
      SELECT 1 FROM information_schema.TABLE_CONSTRAINTS tc
      WHERE tc.TABLE_SCHEMA = s.TABLE_SCHEMA AND tc.TABLE_NAME = s.TABLE_NAME
        AND tc.CONSTRAINT_NAME = s.INDEX_NAME AND tc.CONSTRAINT_TYPE = 'FOREIGN KEY'
  )
ORDER BY s.INDEX_NAME, s.SEQ_IN_INDEX`,

	fixDefault: mysqlDefault,
}

var sqlServerCatalog = catalog{
	tablesQuery: `
SELECT t.name
FROM sys.tables t
JOIN sys.schemas s ON s.schema_id = t.schema_id
WHERE s.name = ?
ORDER BY t.name`,

	existsQuery: `
SELECT COUNT(*)
FROM sys.tables t
JOIN sys.schemas s ON s.schema_id = t.schema_id
WHERE s.name = ? AND t.name = ?`,

	columnsQuery: `
SELECT
    c.name,
    CASE
        WHEN ty.name IN ('nvarchar', 'nchar') THEN ty.name + '(' +
            CASE WHEN c.max_length = -1 THEN 'MAX' ELSE CAST(c.max_length / 2 AS varchar(10)) END + ')'
        WHEN ty.name IN ('varchar', 'char', 'varbinary', 'binary') THEN ty.name + '(' +
            CASE WHEN c.max_length = -1 THEN 'MAX' ELSE CAST(c.max_length AS varchar(10)) END + ')'
        WHEN ty.name IN ('decimal', 'numeric') THEN ty.name + '(' +
            CAST(c.precision AS varchar(10)) + ',' + CAST(c.scale AS varchar(10)) + ')'
        WHEN ty.name IN ('datetime2', 'datetimeoffset', 'time') THEN ty.name + '(' +
            CAST(c.scale AS varchar(10)) + ')'
        ELSE ty.name
    END,
    CASE WHEN c.is_nullable = 1 THEN 'YES' ELSE 'NO' END,
    dc.definition,
    CAST(CASE WHEN pk.column_id IS NULL THEN 0 ELSE 1 END AS bit),
    fk.reference,
    NULL
FROM sys.columns c
JOIN sys.tables t ON t.object_id = c.object_id
JOIN sys.schemas s ON s.schema_id = t.schema_id
JOIN sys.types ty ON ty.user_type_id = c.user_type_id
LEFT JOIN sys.default_constraints dc ON dc.object_id = c.default_object_id
OUTER APPLY (
    SELECT TOP 1 ic.column_id
    FROM sys.indexes i
    JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
    WHERE i.object_id = t.object_id AND i.is_primary_key = 1 AND ic.column_id = c.column_id
) pk
OUTER APPLY (
    SELECT TOP 1 rs.name + '.' + rt.name + '(' + rc.name + ')' AS reference
    FROM sys.foreign_key_columns fkc
    JOIN sys.tables rt ON rt.object_id = fkc.referenced_object_id
    JOIN sys.schemas rs ON rs.schema_id = rt.schema_id
    JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
    WHERE fkc.parent_object_id = t.object_id AND fkc.parent_column_id = c.column_id
) fk
WHERE s.name = ? AND t.name = ?
ORDER BY c.column_id`,

	indexesQuery: `
SELECT
    i.name,
    i.is_unique,
    i.type_desc,
    i.filter_definition,
    c.name
FROM sys.indexes i
JOIN sys.tables t ON t.object_id = i.object_id
JOIN sys.schemas s ON s.schema_id = t.schema_id
JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
WHERE s.name = ? AND t.name = ?
  AND i.is_primary_key = 0 AND i.is_unique_constraint = 0 AND i.type > 0
  AND ic.is_included_column = 0
ORDER BY i.name, ic.key_ordinal`,
}

var numericLiteral = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// mysqlDefault re-quotes literal defaults: information_schema reports
// 'draft' as draft while expression defaults are flagged DEFAULT_GENERATED.
func mysqlDefault(col columnRow) *string {
	v := col.defaultVal.String
	upper := strings.ToUpper(v)
	switch {
	case strings.Contains(strings.ToUpper(col.extra.String), "DEFAULT_GENERATED"),
		strings.HasPrefix(upper, "CURRENT_TIMESTAMP"),
		strings.EqualFold(v, "NULL"),
		strings.HasPrefix(v, "'"),
		numericLiteral.MatchString(v) && isNumericNative(col.nativeType):
		return &v
	}
	quoted := db.QuoteLiteral(db.MySQL, v)
	return &quoted
}

func isNumericNative(native string) bool {
	switch ColumnTypeFromNative(native) {
	case ColumnInteger, ColumnBigInt, ColumnSmallInt, ColumnDecimal, ColumnFloat, ColumnBoolean:
		return true
	}
	return false
}
