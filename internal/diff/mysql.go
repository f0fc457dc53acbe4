package diff

import (
	"fmt"
	"strings"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/ir"
)

// mysqlDDL targets MySQL 8. MySQL has no ADD COLUMN IF NOT EXISTS or
// CREATE INDEX IF NOT EXISTS; the differ only emits those changes when the
// object is missing.
type mysqlDDL struct{}

func (mysqlDDL) createTable(t *ir.TableDefinition) (string, error) {
	return createTableSQL("CREATE TABLE IF NOT EXISTS ", t, db.MySQL)
}

func (mysqlDDL) addColumn(t tableRef, c *ir.ColumnDefinition) []string {
	if c.Nullable || c.Default != nil {
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", t.quoted(), columnSQL(t, c))}
	}
	nullable := *c
	nullable.Nullable = true
	return []string{
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", t.quoted(), columnSQL(t, &nullable)),
		modifyColumn(t, c),
	}
}

// alterColumnType keeps the old nullability; a NOT NULL change is a
// separate step that runs after the backfill.
func (mysqlDDL) alterColumnType(t tableRef, old, c *ir.ColumnDefinition) []string {
	col := *c
	col.Nullable = old.Nullable
	return []string{modifyColumn(t, &col)}
}

func (mysqlDDL) setNotNull(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{modifyColumn(t, c)}
}

func (mysqlDDL) dropNotNull(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{modifyColumn(t, c)}
}

func (mysqlDDL) setDefault(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s",
		t.quoted(), t.quote(c.Name), renderDefault(db.MySQL, c))}
}

func (mysqlDDL) dropDefault(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", t.quoted(), t.quote(c.Name))}
}

func (mysqlDDL) dropColumn(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", t.quoted(), t.quote(c.Name))}
}

// createIndex never writes a predicate: MySQL has no partial indexes.
func (mysqlDDL) createIndex(t tableRef, idx *ir.IndexDefinition) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	b.WriteString(t.quote(idx.Name))
	b.WriteString(" ON ")
	b.WriteString(t.quoted())
	b.WriteString(" (")
	b.WriteString(quoteList(db.MySQL, idx.Columns))
	b.WriteString(")")
	if m := ir.NormalizeIndexType(idx.IndexType); m == "hash" {
		b.WriteString(" USING HASH")
	}
	return b.String()
}

func (mysqlDDL) dropIndex(t tableRef, idx *ir.IndexDefinition) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", t.quote(idx.Name), t.quoted())
}

func (mysqlDDL) dropTable(t tableRef) string {
	return "DROP TABLE IF EXISTS " + t.quoted()
}

// modifyColumn restates the full column definition, which is how MySQL
// changes type, nullability or both.
func modifyColumn(t tableRef, c *ir.ColumnDefinition) string {
	def := columnSQL(t, c)
	if c.Nullable {
		// explicit NULL so a MODIFY that relaxes NOT NULL reads clearly
		name := t.quote(c.Name) + " " + c.NativeType
		def = name + " NULL" + strings.TrimPrefix(def, name)
	}
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", t.quoted(), def)
}
