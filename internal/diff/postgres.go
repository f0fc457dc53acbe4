package diff

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/ir"
)

type postgresDDL struct{}

func (postgresDDL) createTable(t *ir.TableDefinition) (string, error) {
	return createTableSQL("CREATE TABLE IF NOT EXISTS ", t, db.Postgres)
}

// addColumn adds a NOT NULL column without a default in two steps so the
// NOT NULL failure, if any rows exist, names the column.
func (postgresDDL) addColumn(t tableRef, c *ir.ColumnDefinition) []string {
	if c.Nullable || c.Default != nil {
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", t.quoted(), columnSQL(t, c))}
	}
	nullable := *c
	nullable.Nullable = true
	return []string{
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", t.quoted(), columnSQL(t, &nullable)),
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", t.quoted(), t.quote(c.Name)),
	}
}

func (postgresDDL) alterColumnType(t tableRef, _, c *ir.ColumnDefinition) []string {
	col := t.quote(c.Name)
	return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
		t.quoted(), col, c.NativeType, col, c.NativeType)}
}

func (postgresDDL) setNotNull(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", t.quoted(), t.quote(c.Name))}
}

func (postgresDDL) dropNotNull(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", t.quoted(), t.quote(c.Name))}
}

func (postgresDDL) setDefault(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s",
		t.quoted(), t.quote(c.Name), renderDefault(db.Postgres, c))}
}

func (postgresDDL) dropDefault(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", t.quoted(), t.quote(c.Name))}
}

func (postgresDDL) dropColumn(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", t.quoted(), t.quote(c.Name))}
}

func (postgresDDL) createIndex(t tableRef, idx *ir.IndexDefinition) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX IF NOT EXISTS ")
	b.WriteString(t.quote(idx.Name))
	b.WriteString(" ON ")
	b.WriteString(t.quoted())
	if m := ir.NormalizeIndexType(idx.IndexType); m != "btree" {
		b.WriteString(" USING ")
		b.WriteString(m)
	}
	b.WriteString(" (")
	b.WriteString(quoteList(db.Postgres, idx.Columns))
	b.WriteString(")")
	if idx.WhereClause != "" {
		b.WriteString(" WHERE ")
		b.WriteString(idx.WhereClause)
	}
	return b.String()
}

// dropIndex qualifies the index with the table's schema; PostgreSQL indexes
// live in the schema, not the table.
func (postgresDDL) dropIndex(t tableRef, idx *ir.IndexDefinition) string {
	return "DROP INDEX IF EXISTS " + db.QualifiedName(db.Postgres, t.schema, idx.Name)
}

func (postgresDDL) dropTable(t tableRef) string {
	return "DROP TABLE IF EXISTS " + t.quoted()
}

// validatePostgres parses stmt with the PostgreSQL parser.
func validatePostgres(stmt string) error {
	if _, err := pg_query.Parse(stmt); err != nil {
		return fmt.Errorf("generated invalid SQL %q: %w", stmt, err)
	}
	return nil
}
