// Package diff compares desired and current table definitions and turns
// the difference into ordered schema changes and dialect-specific DDL.
package diff

import (
	"fmt"
	"sort"

	"github.com/fenixflow/ff-storage-sub000/ir"
)

// ComputeChanges returns the changes that turn current into desired. A nil
// current means the table does not exist yet; a nil desired drops it. Both
// sides are normalized with n before comparison, so spelling differences
// between the model and the catalog never show up as changes.
func ComputeChanges(desired, current *ir.TableDefinition, n *ir.Normalizer) ([]SchemaChange, error) {
	var want, have *ir.TableDefinition
	var err error
	if desired != nil {
		if want, err = n.NormalizeTable(desired); err != nil {
			return nil, err
		}
	}
	if current != nil {
		if have, err = n.NormalizeTable(current); err != nil {
			return nil, err
		}
	}

	var changes []SchemaChange
	switch {
	case want == nil && have == nil:
		return nil, nil
	case have == nil:
		changes = addTableChanges(want)
	case want == nil:
		changes = []SchemaChange{dropTableChange(have)}
	default:
		colChanges, err := diffColumns(want, have)
		if err != nil {
			return nil, err
		}
		changes = append(colChanges, diffIndexes(want, have)...)
	}
	sortChanges(changes)
	return changes, nil
}

// ComputeSchemaChanges diffs every table of two schemas keyed by table name.
// Tables present only in current are dropped.
func ComputeSchemaChanges(desired, current map[string]*ir.TableDefinition, n *ir.Normalizer) ([]SchemaChange, error) {
	have := make(map[string]*ir.TableDefinition, len(current))
	for name, t := range current {
		have[n.NormalizeIdentifier(name)] = t
	}

	var changes []SchemaChange
	seen := make(map[string]bool, len(desired))
	for _, name := range sortedNames(desired) {
		key := n.NormalizeIdentifier(name)
		seen[key] = true
		tc, err := ComputeChanges(desired[name], have[key], n)
		if err != nil {
			return nil, err
		}
		changes = append(changes, tc...)
	}
	for _, name := range sortedNames(have) {
		if seen[name] {
			continue
		}
		tc, err := ComputeChanges(nil, have[name], n)
		if err != nil {
			return nil, err
		}
		changes = append(changes, tc...)
	}
	sortChanges(changes)
	return changes, nil
}

func addTableChanges(t *ir.TableDefinition) []SchemaChange {
	changes := []SchemaChange{{
		Type:        ChangeAddTable,
		Schema:      t.Schema,
		Table:       t.Name,
		TableDef:    t,
		Description: fmt.Sprintf("create table %s", t.QualifiedName()),
	}}
	for _, idx := range t.Indexes {
		changes = append(changes, addIndexChange(t, idx))
	}
	return changes
}

func dropTableChange(t *ir.TableDefinition) SchemaChange {
	return SchemaChange{
		Type:        ChangeDropTable,
		Schema:      t.Schema,
		Table:       t.Name,
		TableDef:    t,
		Destructive: true,
		Description: fmt.Sprintf("drop table %s", t.QualifiedName()),
	}
}

// sortChanges puts changes in apply order; ties keep a stable order by
// path so identical inputs always produce identical migrations.
func sortChanges(changes []SchemaChange) {
	sort.SliceStable(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if applyOrder[a.Type] != applyOrder[b.Type] {
			return applyOrder[a.Type] < applyOrder[b.Type]
		}
		if a.Schema != b.Schema {
			return a.Schema < b.Schema
		}
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if a.Type == ChangeAddColumn || a.Type == ChangeDropColumn {
			// keep the table's column order
			return false
		}
		if pa, pb := a.Path(), b.Path(); pa != pb {
			return pa < pb
		}
		return alterOrder[a.Type] < alterOrder[b.Type]
	})
}

func sortedNames(m map[string]*ir.TableDefinition) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasDestructive reports whether any change may lose data.
func HasDestructive(changes []SchemaChange) bool {
	for _, c := range changes {
		if c.Destructive {
			return true
		}
	}
	return false
}

// Filter splits changes into the ones to apply and the destructive ones
// skipped when allowDestructive is false.
func Filter(changes []SchemaChange, allowDestructive bool) (apply, skipped []SchemaChange) {
	for _, c := range changes {
		if c.Destructive && !allowDestructive {
			skipped = append(skipped, c)
			continue
		}
		apply = append(apply, c)
	}
	return apply, skipped
}
