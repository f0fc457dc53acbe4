package diff

import (
	"fmt"

	"github.com/fenixflow/ff-storage-sub000/ir"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// diffColumns compares normalized tables column by column. Added columns
// keep the desired column order; dropped ones keep the current order.
func diffColumns(want, have *ir.TableDefinition) ([]SchemaChange, error) {
	var changes []SchemaChange
	for _, col := range want.Columns {
		old, ok := have.Column(col.Name)
		if !ok {
			changes = append(changes, SchemaChange{
				Type:        ChangeAddColumn,
				Schema:      want.Schema,
				Table:       want.Name,
				Column:      col,
				Description: fmt.Sprintf("add column %s.%s %s", want.QualifiedName(), col.Name, col.NativeType),
			})
			continue
		}
		cc, err := diffColumn(want, old, col)
		if err != nil {
			return nil, err
		}
		changes = append(changes, cc...)
	}

	for _, old := range have.Columns {
		if _, ok := want.Column(old.Name); ok {
			continue
		}
		changes = append(changes, SchemaChange{
			Type:        ChangeDropColumn,
			Schema:      want.Schema,
			Table:       want.Name,
			OldColumn:   old,
			Destructive: true,
			Description: fmt.Sprintf("drop column %s.%s", want.QualifiedName(), old.Name),
		})
	}
	return changes, nil
}

// diffColumn compares one column present on both sides.
func diffColumn(t *ir.TableDefinition, old, col *ir.ColumnDefinition) ([]SchemaChange, error) {
	var changes []SchemaChange
	path := t.QualifiedName() + "." + col.Name
	change := func(ct ChangeType, destructive bool, desc string) {
		changes = append(changes, SchemaChange{
			Type:        ct,
			Schema:      t.Schema,
			Table:       t.Name,
			Column:      col,
			OldColumn:   old,
			Destructive: destructive,
			Description: desc,
		})
	}

	if old.NativeType != col.NativeType {
		change(ChangeAlterColumnType, true,
			fmt.Sprintf("change type of %s from %s to %s", path, old.NativeType, col.NativeType))
	}
	if !defaultsEqual(old.Default, col.Default) {
		if col.Default == nil {
			change(ChangeAlterColumnDefault, false, fmt.Sprintf("drop default of %s", path))
		} else {
			change(ChangeAlterColumnDefault, false, fmt.Sprintf("set default of %s to %s", path, *col.Default))
		}
	}
	if old.Nullable != col.Nullable {
		if col.Nullable {
			change(ChangeAlterColumnNullable, false, fmt.Sprintf("allow NULL in %s", path))
		} else {
			if col.Default == nil {
				return nil, storeerr.NewConfigurationError("compute schema changes",
					fmt.Sprintf("column %s becomes NOT NULL but has no default to backfill existing NULLs", path),
					"add a default value to the field",
					"keep the field optional",
					"backfill the column manually, then sync again")
			}
			change(ChangeAlterColumnNullable, true,
				fmt.Sprintf("set %s NOT NULL, backfilling NULLs with %s", path, *col.Default))
		}
	}
	return changes, nil
}

func defaultsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
