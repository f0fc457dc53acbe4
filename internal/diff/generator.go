package diff

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/ir"
)

// Generator renders schema changes as DDL for one backend. Identifiers are
// always quoted and statements carry no trailing semicolon.
type Generator interface {
	Dialect() db.Dialect
	// Generate returns the statements for one change, in execution order.
	Generate(change SchemaChange) ([]string, error)
	// CreateTable returns the CREATE TABLE statement followed by the
	// table's indexes.
	CreateTable(t *ir.TableDefinition) ([]string, error)
}

// dialectDDL holds the statements that differ between backends.
type dialectDDL interface {
	createTable(t *ir.TableDefinition) (string, error)
	addColumn(t tableRef, c *ir.ColumnDefinition) []string
	alterColumnType(t tableRef, old, c *ir.ColumnDefinition) []string
	setNotNull(t tableRef, c *ir.ColumnDefinition) []string
	dropNotNull(t tableRef, c *ir.ColumnDefinition) []string
	setDefault(t tableRef, c *ir.ColumnDefinition) []string
	dropDefault(t tableRef, c *ir.ColumnDefinition) []string
	dropColumn(t tableRef, c *ir.ColumnDefinition) []string
	createIndex(t tableRef, idx *ir.IndexDefinition) string
	dropIndex(t tableRef, idx *ir.IndexDefinition) string
	dropTable(t tableRef) string
}

type tableRef struct {
	dialect db.Dialect
	schema  string
	name    string
}

// quoted is the quoted, schema-qualified table name.
func (t tableRef) quoted() string {
	return db.QualifiedName(t.dialect, t.schema, t.name)
}

func (t tableRef) quote(name string) string {
	return db.QuoteIdentifier(t.dialect, name)
}

type generator struct {
	dialect db.Dialect
	ddl     dialectDDL
	// validate checks generated statements when the dialect has a parser.
	validate func(stmt string) error
}

// NewGenerator returns the DDL generator for d.
func NewGenerator(d db.Dialect) (Generator, error) {
	switch d {
	case db.Postgres:
		return &generator{dialect: d, ddl: postgresDDL{}, validate: validatePostgres}, nil
	case db.MySQL:
		return &generator{dialect: d, ddl: mysqlDDL{}}, nil
	case db.SQLServer:
		return &generator{dialect: d, ddl: sqlServerDDL{}}, nil
	default:
		return nil, fmt.Errorf("no DDL generator for dialect %q", d)
	}
}

func (g *generator) Dialect() db.Dialect { return g.dialect }

func (g *generator) ref(schema, table string) tableRef {
	return tableRef{dialect: g.dialect, schema: schema, name: table}
}

func (g *generator) Generate(change SchemaChange) ([]string, error) {
	t := g.ref(change.Schema, change.Table)
	var stmts []string

	switch change.Type {
	case ChangeAddTable:
		if change.TableDef == nil {
			return nil, fmt.Errorf("%s %s: missing table definition", change.Type, change.Path())
		}
		stmt, err := g.ddl.createTable(change.TableDef)
		if err != nil {
			return nil, err
		}
		stmts = []string{stmt}
	case ChangeDropTable:
		stmts = []string{g.ddl.dropTable(t)}
	case ChangeAddColumn:
		if change.Column == nil {
			return nil, fmt.Errorf("%s %s: missing column", change.Type, change.Path())
		}
		stmts = g.ddl.addColumn(t, change.Column)
		if change.Column.References != "" {
			fk, err := addForeignKey(t, change.Column)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, fk)
		}
	case ChangeAlterColumnType:
		if change.Column == nil || change.OldColumn == nil {
			return nil, fmt.Errorf("%s %s: missing column", change.Type, change.Path())
		}
		stmts = g.ddl.alterColumnType(t, change.OldColumn, change.Column)
	case ChangeAlterColumnNullable:
		if change.Column == nil {
			return nil, fmt.Errorf("%s %s: missing column", change.Type, change.Path())
		}
		if change.Column.Nullable {
			stmts = g.ddl.dropNotNull(t, change.Column)
			break
		}
		if change.Column.Default == nil {
			return nil, fmt.Errorf("%s %s: NOT NULL needs a default to backfill", change.Type, change.Path())
		}
		stmts = append([]string{backfill(t, change.Column)}, g.ddl.setNotNull(t, change.Column)...)
	case ChangeAlterColumnDefault:
		if change.Column == nil {
			return nil, fmt.Errorf("%s %s: missing column", change.Type, change.Path())
		}
		if change.Column.Default == nil {
			stmts = g.ddl.dropDefault(t, change.Column)
		} else {
			stmts = g.ddl.setDefault(t, change.Column)
		}
	case ChangeDropColumn:
		col := change.OldColumn
		if col == nil {
			col = change.Column
		}
		if col == nil {
			return nil, fmt.Errorf("%s %s: missing column", change.Type, change.Path())
		}
		stmts = g.ddl.dropColumn(t, col)
	case ChangeAddIndex:
		if change.Index == nil {
			return nil, fmt.Errorf("%s %s: missing index", change.Type, change.Path())
		}
		stmts = []string{g.ddl.createIndex(t, change.Index)}
	case ChangeDropIndex:
		if change.Index == nil {
			return nil, fmt.Errorf("%s %s: missing index", change.Type, change.Path())
		}
		stmts = []string{g.ddl.dropIndex(t, change.Index)}
	default:
		return nil, fmt.Errorf("unknown change type %q", change.Type)
	}

	if err := g.check(stmts); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (g *generator) CreateTable(t *ir.TableDefinition) ([]string, error) {
	stmt, err := g.ddl.createTable(t)
	if err != nil {
		return nil, err
	}
	stmts := []string{stmt}
	ref := g.ref(t.Schema, t.Name)
	for _, idx := range t.Indexes {
		stmts = append(stmts, g.ddl.createIndex(ref, idx))
	}
	if err := g.check(stmts); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (g *generator) check(stmts []string) error {
	if g.validate == nil {
		return nil
	}
	for _, s := range stmts {
		if err := g.validate(s); err != nil {
			return err
		}
	}
	return nil
}

// GenerateAll renders changes in order.
func GenerateAll(g Generator, changes []SchemaChange) ([]string, error) {
	var stmts []string
	for _, c := range changes {
		s, err := g.Generate(c)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s...)
	}
	return stmts, nil
}

// backfill replaces NULLs with the column default before NOT NULL is set.
func backfill(t tableRef, c *ir.ColumnDefinition) string {
	col := t.quote(c.Name)
	return fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL",
		t.quoted(), col, renderDefault(t.dialect, c), col)
}

// renderDefault adapts a normalized default to the backend: SQL Server has
// no boolean literals and MySQL wants function defaults in parentheses.
func renderDefault(d db.Dialect, c *ir.ColumnDefinition) string {
	v := *c.Default
	switch d {
	case db.SQLServer:
		switch strings.ToUpper(v) {
		case "TRUE":
			return "1"
		case "FALSE":
			return "0"
		}
	case db.MySQL:
		if strings.HasSuffix(v, ")") && !strings.HasPrefix(v, "'") &&
			!strings.HasPrefix(strings.ToUpper(v), "CURRENT_TIMESTAMP") && !strings.HasPrefix(v, "(") {
			return "(" + v + ")"
		}
	}
	return v
}

// columnSQL renders `name TYPE [NOT] NULL [DEFAULT x]`; SQL Server names
// its default constraints so they can be dropped later.
func columnSQL(t tableRef, c *ir.ColumnDefinition) string {
	var b strings.Builder
	b.WriteString(t.quote(c.Name))
	b.WriteString(" ")
	b.WriteString(c.NativeType)
	if c.Nullable {
		if t.dialect == db.SQLServer {
			b.WriteString(" NULL")
		}
	} else {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		if t.dialect == db.SQLServer {
			b.WriteString(" CONSTRAINT ")
			b.WriteString(t.quote(defaultConstraintName(t.name, c.Name)))
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(renderDefault(t.dialect, c))
	}
	return b.String()
}

// createTableSQL renders the CREATE TABLE body shared by all backends.
func createTableSQL(prefix string, t *ir.TableDefinition, d db.Dialect) (string, error) {
	ref := tableRef{dialect: d, schema: t.Schema, name: t.Name}
	var lines []string
	for _, c := range t.Columns {
		lines = append(lines, "    "+columnSQL(ref, c))
	}
	if pk := t.PrimaryKey(); len(pk) > 0 {
		lines = append(lines, "    PRIMARY KEY ("+quoteList(d, pk)+")")
	}
	for _, c := range t.Columns {
		if c.References == "" {
			continue
		}
		target, err := referenceSQL(ref, c.References)
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("    CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s",
			ref.quote(foreignKeyName(t.Name, c.Name)), ref.quote(c.Name), target))
	}
	return fmt.Sprintf("%s%s (\n%s\n)", prefix, ref.quoted(), strings.Join(lines, ",\n")), nil
}

func addForeignKey(t tableRef, c *ir.ColumnDefinition) (string, error) {
	target, err := referenceSQL(t, c.References)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s",
		t.quoted(), t.quote(foreignKeyName(t.name, c.Name)), t.quote(c.Name), target), nil
}

var referencePattern = regexp.MustCompile(`^\s*(?:(\w+)\.)?(\w+)\s*\(\s*(\w+)\s*\)\s*$`)

// referenceSQL renders schema.table(column) as a quoted REFERENCES target.
// A reference without a schema points into the referencing table's schema.
func referenceSQL(t tableRef, ref string) (string, error) {
	m := referencePattern.FindStringSubmatch(ref)
	if m == nil {
		return "", fmt.Errorf("invalid foreign key reference %q: want schema.table(column)", ref)
	}
	schema := m[1]
	if schema == "" {
		schema = t.schema
	}
	return fmt.Sprintf("%s (%s)", db.QualifiedName(t.dialect, schema, m[2]), t.quote(m[3])), nil
}

func quoteList(d db.Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = db.QuoteIdentifier(d, n)
	}
	return strings.Join(quoted, ", ")
}

func foreignKeyName(table, column string) string {
	return fmt.Sprintf("fk_%s_%s", table, column)
}

func defaultConstraintName(table, column string) string {
	return fmt.Sprintf("df_%s_%s", table, column)
}
