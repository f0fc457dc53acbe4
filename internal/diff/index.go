package diff

import (
	"fmt"
	"slices"

	"github.com/fenixflow/ff-storage-sub000/ir"
)

// diffIndexes compares indexes by name. An index whose definition changed
// is dropped and created again.
func diffIndexes(want, have *ir.TableDefinition) []SchemaChange {
	var changes []SchemaChange
	for _, idx := range want.Indexes {
		old, ok := have.Index(idx.Name)
		if ok && indexesEqual(old, idx) {
			continue
		}
		if ok {
			changes = append(changes, dropIndexChange(have, old))
		}
		changes = append(changes, addIndexChange(want, idx))
	}
	for _, old := range have.Indexes {
		if _, ok := want.Index(old.Name); !ok {
			changes = append(changes, dropIndexChange(have, old))
		}
	}
	return changes
}

// indexesEqual compares the (columns, unique, type, predicate) tuple of two
// normalized indexes.
func indexesEqual(a, b *ir.IndexDefinition) bool {
	return slices.Equal(a.Columns, b.Columns) &&
		a.Unique == b.Unique &&
		a.IndexType == b.IndexType &&
		a.WhereClause == b.WhereClause
}

func addIndexChange(t *ir.TableDefinition, idx *ir.IndexDefinition) SchemaChange {
	return SchemaChange{
		Type:        ChangeAddIndex,
		Schema:      t.Schema,
		Table:       t.Name,
		Index:       idx,
		Description: fmt.Sprintf("create index %s on %s %v", idx.Name, t.QualifiedName(), idx.Columns),
	}
}

func dropIndexChange(t *ir.TableDefinition, idx *ir.IndexDefinition) SchemaChange {
	return SchemaChange{
		Type:        ChangeDropIndex,
		Schema:      t.Schema,
		Table:       t.Name,
		Index:       idx,
		Description: fmt.Sprintf("drop index %s on %s", idx.Name, t.QualifiedName()),
	}
}
