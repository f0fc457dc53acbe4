package diff

import (
	"fmt"
	"strings"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/ir"
)

// sqlServerDDL targets SQL Server 2016 and later. CREATE statements are
// guarded with catalog lookups since T-SQL has no IF NOT EXISTS for them.
type sqlServerDDL struct{}

// objectLiteral is the N'[schema].[name]' argument of OBJECT_ID and friends.
func objectLiteral(t tableRef) string {
	return "N" + db.QuoteLiteral(db.SQLServer, t.quoted())
}

func (sqlServerDDL) createTable(t *ir.TableDefinition) (string, error) {
	ref := tableRef{dialect: db.SQLServer, schema: t.Schema, name: t.Name}
	prefix := fmt.Sprintf("IF OBJECT_ID(%s, N'U') IS NULL CREATE TABLE ", objectLiteral(ref))
	return createTableSQL(prefix, t, db.SQLServer)
}

func (sqlServerDDL) addColumn(t tableRef, c *ir.ColumnDefinition) []string {
	guard := fmt.Sprintf("IF COL_LENGTH(%s, N%s) IS NULL ",
		objectLiteral(t), db.QuoteLiteral(db.SQLServer, c.Name))
	if c.Nullable || c.Default != nil {
		return []string{guard + fmt.Sprintf("ALTER TABLE %s ADD %s", t.quoted(), columnSQL(t, c))}
	}
	nullable := *c
	nullable.Nullable = true
	return []string{
		guard + fmt.Sprintf("ALTER TABLE %s ADD %s", t.quoted(), columnSQL(t, &nullable)),
		alterColumn(t, c.Name, c.NativeType, false),
	}
}

func (sqlServerDDL) alterColumnType(t tableRef, old, c *ir.ColumnDefinition) []string {
	return []string{alterColumn(t, c.Name, c.NativeType, old.Nullable)}
}

func (sqlServerDDL) setNotNull(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{alterColumn(t, c.Name, c.NativeType, false)}
}

func (sqlServerDDL) dropNotNull(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{alterColumn(t, c.Name, c.NativeType, true)}
}

// setDefault replaces whatever default constraint the column has.
func (sqlServerDDL) setDefault(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{
		dropDefaultConstraint(t, c.Name),
		fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s DEFAULT %s FOR %s",
			t.quoted(), t.quote(defaultConstraintName(t.name, c.Name)),
			renderDefault(db.SQLServer, c), t.quote(c.Name)),
	}
}

func (sqlServerDDL) dropDefault(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{dropDefaultConstraint(t, c.Name)}
}

// dropColumn removes the default constraint first; SQL Server refuses to
// drop a column that one depends on.
func (sqlServerDDL) dropColumn(t tableRef, c *ir.ColumnDefinition) []string {
	return []string{
		dropDefaultConstraint(t, c.Name),
		fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", t.quoted(), t.quote(c.Name)),
	}
}

func (sqlServerDDL) createIndex(t tableRef, idx *ir.IndexDefinition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N%s AND object_id = OBJECT_ID(%s)) ",
		db.QuoteLiteral(db.SQLServer, idx.Name), objectLiteral(t))
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("NONCLUSTERED INDEX ")
	b.WriteString(t.quote(idx.Name))
	b.WriteString(" ON ")
	b.WriteString(t.quoted())
	b.WriteString(" (")
	b.WriteString(quoteList(db.SQLServer, idx.Columns))
	b.WriteString(")")
	if idx.WhereClause != "" {
		b.WriteString(" WHERE ")
		b.WriteString(idx.WhereClause)
	}
	return b.String()
}

func (sqlServerDDL) dropIndex(t tableRef, idx *ir.IndexDefinition) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s ON %s", t.quote(idx.Name), t.quoted())
}

func (sqlServerDDL) dropTable(t tableRef) string {
	return "DROP TABLE IF EXISTS " + t.quoted()
}

func alterColumn(t tableRef, name, native string, nullable bool) string {
	null := "NOT NULL"
	if nullable {
		null = "NULL"
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s %s", t.quoted(), t.quote(name), native, null)
}

// dropDefaultConstraint looks the constraint up by column, so defaults
// created outside this package are handled too.
func dropDefaultConstraint(t tableRef, column string) string {
	exec := "N" + db.QuoteLiteral(db.SQLServer, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT [", t.quoted()))
	return fmt.Sprintf("DECLARE @df sysname; "+
		"SELECT @df = dc.name FROM sys.default_constraints dc "+
		"JOIN sys.columns c ON c.object_id = dc.parent_object_id AND c.column_id = dc.parent_column_id "+
		"WHERE dc.parent_object_id = OBJECT_ID(%s) AND c.name = N%s; "+
		"IF @df IS NOT NULL EXEC(%s + @df + N']')",
		objectLiteral(t), db.QuoteLiteral(db.SQLServer, column), exec)
}
