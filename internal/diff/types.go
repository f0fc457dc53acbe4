package diff

import (
	"fmt"

	"github.com/fenixflow/ff-storage-sub000/ir"
)

// ChangeType identifies one kind of schema change.
type ChangeType string

const (
	ChangeAddTable            ChangeType = "ADD_TABLE"
	ChangeAddColumn           ChangeType = "ADD_COLUMN"
	ChangeAlterColumnType     ChangeType = "ALTER_COLUMN_TYPE"
	ChangeAlterColumnNullable ChangeType = "ALTER_COLUMN_NULLABLE"
	ChangeAlterColumnDefault  ChangeType = "ALTER_COLUMN_DEFAULT"
	ChangeDropColumn          ChangeType = "DROP_COLUMN"
	ChangeAddIndex            ChangeType = "ADD_INDEX"
	ChangeDropIndex           ChangeType = "DROP_INDEX"
	ChangeDropTable           ChangeType = "DROP_TABLE"
)

// Operation returns create, alter or drop.
func (c ChangeType) Operation() string {
	switch c {
	case ChangeAddTable, ChangeAddColumn, ChangeAddIndex:
		return "create"
	case ChangeDropColumn, ChangeDropIndex, ChangeDropTable:
		return "drop"
	default:
		return "alter"
	}
}

// ObjectType returns table, column or index.
func (c ChangeType) ObjectType() string {
	switch c {
	case ChangeAddTable, ChangeDropTable:
		return "table"
	case ChangeAddIndex, ChangeDropIndex:
		return "index"
	default:
		return "column"
	}
}

// applyOrder is the position of each change type in a migration: indexes
// are dropped before anything else, columns are dropped after new ones
// exist, tables go last.
var applyOrder = map[ChangeType]int{
	ChangeDropIndex:           0,
	ChangeAddTable:            1,
	ChangeAddColumn:           2,
	ChangeAlterColumnType:     3,
	ChangeAlterColumnDefault:  3,
	ChangeAlterColumnNullable: 3,
	ChangeAddIndex:            4,
	ChangeDropColumn:          5,
	ChangeDropTable:           6,
}

// alterOrder orders alterations of the same column.
var alterOrder = map[ChangeType]int{
	ChangeAlterColumnType:     0,
	ChangeAlterColumnDefault:  1,
	ChangeAlterColumnNullable: 2,
}

// SchemaChange is one step that moves the current schema toward the desired
// one. Column changes carry the desired column in Column and the existing
// one in OldColumn.
type SchemaChange struct {
	Type        ChangeType           `json:"type"`
	Schema      string               `json:"schema,omitempty"`
	Table       string               `json:"table"`
	Column      *ir.ColumnDefinition `json:"column,omitempty"`
	OldColumn   *ir.ColumnDefinition `json:"old_column,omitempty"`
	Index       *ir.IndexDefinition  `json:"index,omitempty"`
	TableDef    *ir.TableDefinition  `json:"table_definition,omitempty"`
	Destructive bool                 `json:"destructive"`
	Description string               `json:"description"`
}

// Path is schema.table[.object] for display and sorting.
func (c SchemaChange) Path() string {
	p := c.Table
	if c.Schema != "" {
		p = c.Schema + "." + p
	}
	if name := c.objectName(); name != "" {
		p += "." + name
	}
	return p
}

func (c SchemaChange) objectName() string {
	switch {
	case c.Column != nil:
		return c.Column.Name
	case c.OldColumn != nil:
		return c.OldColumn.Name
	case c.Index != nil:
		return c.Index.Name
	}
	return ""
}

func (c SchemaChange) String() string {
	if c.Description != "" {
		return c.Description
	}
	return fmt.Sprintf("%s %s", c.Type, c.Path())
}
