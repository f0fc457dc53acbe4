package model

import (
	"fmt"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/ir"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// Names of the strategy-owned columns.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
	FieldCreatedBy = "created_by"
	FieldUpdatedBy = "updated_by"
	FieldDeletedAt = "deleted_at"
	FieldDeletedBy = "deleted_by"
	FieldVersion   = "version"
	FieldValidFrom = "valid_from"
	FieldValidTo   = "valid_to"
)

// Columns of the Copy-on-Change audit table.
const (
	AuditID        = "audit_id"
	AuditRecordID  = "record_id"
	AuditFieldName = "field_name"
	AuditOldValue  = "old_value"
	AuditNewValue  = "new_value"
	AuditOperation = "operation"
	AuditChangedBy = "changed_by"
	AuditChangedAt = "changed_at"
)

// AuditTableName is the auxiliary table of a Copy-on-Change model.
func AuditTableName(table string) string {
	return table + "_audit"
}

// ReservedFields lists the columns the descriptor's strategy manages.
func ReservedFields(d *Descriptor) []string {
	names := []string{FieldID}
	if d.MultiTenant() {
		names = append(names, d.TenantField())
	}
	names = append(names, FieldCreatedAt, FieldUpdatedAt, FieldCreatedBy, FieldUpdatedBy)
	if d.SoftDelete() {
		names = append(names, FieldDeletedAt, FieldDeletedBy)
	}
	if d.StrategyKind() == StrategySCD2 {
		names = append(names, FieldVersion, FieldValidFrom, FieldValidTo)
	}
	return names
}

func column(d db.Dialect, name string, ct ir.ColumnType, nullable bool, def string) *ir.ColumnDefinition {
	c := &ir.ColumnDefinition{
		Name:       name,
		ColumnType: ct,
		NativeType: NativeType(d, ct, 0, 0, 0, ""),
		Nullable:   nullable,
	}
	if def != "" {
		c.Default = ir.StringPtr(def)
	}
	return c
}

// TemporalFields returns the strategy-owned columns other than id and the
// tenant column, in table order.
func TemporalFields(desc *Descriptor, d db.Dialect) []*ir.ColumnDefinition {
	now := NowExpression(d)
	cols := []*ir.ColumnDefinition{
		column(d, FieldCreatedAt, ir.ColumnTimestampTZ, false, now),
		column(d, FieldUpdatedAt, ir.ColumnTimestampTZ, false, now),
		column(d, FieldCreatedBy, ir.ColumnUUID, true, ""),
		column(d, FieldUpdatedBy, ir.ColumnUUID, true, ""),
	}
	if desc.SoftDelete() {
		cols = append(cols,
			column(d, FieldDeletedAt, ir.ColumnTimestampTZ, true, ""),
			column(d, FieldDeletedBy, ir.ColumnUUID, true, ""),
		)
	}
	if desc.StrategyKind() == StrategySCD2 {
		cols = append(cols,
			column(d, FieldVersion, ir.ColumnInteger, false, "1"),
			column(d, FieldValidFrom, ir.ColumnTimestampTZ, false, now),
			column(d, FieldValidTo, ir.ColumnTimestampTZ, true, ""),
		)
	}
	return cols
}

// TemporalIndexes returns the indexes the strategy needs on the main table.
func TemporalIndexes(desc *Descriptor) []*ir.IndexDefinition {
	t := desc.Table
	tenant := desc.TenantField()
	var indexes []*ir.IndexDefinition

	if desc.MultiTenant() {
		indexes = append(indexes, &ir.IndexDefinition{
			Name:      fmt.Sprintf("idx_%s_%s", t, tenant),
			TableName: t,
			Columns:   []string{tenant},
			IndexType: "btree",
		})
		created := &ir.IndexDefinition{
			Name:      fmt.Sprintf("idx_%s_%s_created", t, tenant),
			TableName: t,
			Columns:   []string{tenant, FieldCreatedAt},
			IndexType: "btree",
		}
		if desc.SoftDelete() {
			created.WhereClause = "deleted_at IS NULL"
		}
		indexes = append(indexes, created)
	}
	if desc.SoftDelete() {
		indexes = append(indexes, &ir.IndexDefinition{
			Name:        fmt.Sprintf("idx_%s_not_deleted", t),
			TableName:   t,
			Columns:     []string{FieldDeletedAt},
			IndexType:   "btree",
			WhereClause: "deleted_at IS NULL",
		})
	}
	if desc.StrategyKind() == StrategySCD2 {
		indexes = append(indexes,
			&ir.IndexDefinition{
				Name:        fmt.Sprintf("idx_%s_current", t),
				TableName:   t,
				Columns:     []string{FieldID},
				IndexType:   "btree",
				WhereClause: "valid_to IS NULL",
			},
			&ir.IndexDefinition{
				Name:      fmt.Sprintf("idx_%s_valid", t),
				TableName: t,
				Columns:   []string{FieldValidFrom, FieldValidTo},
				IndexType: "btree",
			},
		)
	}
	return indexes
}

// ExtractTableDefinition builds the desired definition of the model's main
// table: id, tenant column, declared fields, then the strategy columns.
// MySQL definitions carry no partial-index predicates.
func ExtractTableDefinition(desc *Descriptor, d db.Dialect) (*ir.TableDefinition, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	t := &ir.TableDefinition{Name: desc.Table, Schema: desc.SchemaFor(d)}

	id := column(d, FieldID, ir.ColumnUUID, false, "")
	id.IsPrimaryKey = true
	t.Columns = append(t.Columns, id)
	if desc.MultiTenant() {
		t.Columns = append(t.Columns, column(d, desc.TenantField(), ir.ColumnUUID, false, ""))
	}

	for _, f := range desc.Fields {
		m, err := MapField(f, d)
		if err != nil {
			return nil, storeerr.NewConfigurationError("extract model",
				fmt.Sprintf("model %s: %v", desc.ModelName(), err),
				"use a supported field type",
				"set db_type to a native type")
		}
		t.Columns = append(t.Columns, &ir.ColumnDefinition{
			Name:         f.Name,
			ColumnType:   m.ColumnType,
			NativeType:   m.NativeType,
			Nullable:     m.Nullable,
			Default:      f.Default,
			MaxLength:    m.MaxLength,
			Precision:    m.Precision,
			Scale:        m.Scale,
			ElementType:  m.ElementType,
			IsForeignKey: f.References != "",
			References:   f.References,
		})
	}

	t.Columns = append(t.Columns, TemporalFields(desc, d)...)
	if desc.StrategyKind() == StrategySCD2 {
		// (id, version) identifies a row; id alone identifies the record
		for _, c := range t.Columns {
			if c.Name == FieldVersion {
				c.IsPrimaryKey = true
			}
		}
	}

	for _, idx := range desc.Indexes {
		t.Indexes = append(t.Indexes, &ir.IndexDefinition{
			Name:        idx.Name,
			TableName:   desc.Table,
			Columns:     append([]string(nil), idx.Columns...),
			Unique:      idx.Unique,
			IndexType:   idx.Type,
			WhereClause: idx.Where,
		})
	}
	t.Indexes = append(t.Indexes, TemporalIndexes(desc)...)

	if !d.SupportsPartialIndexes() {
		for _, idx := range t.Indexes {
			idx.WhereClause = ""
		}
	}
	return t, nil
}

// AuxiliaryTables returns the tables a strategy keeps next to the main
// table: the audit log for Copy-on-Change, nothing otherwise.
func AuxiliaryTables(desc *Descriptor, d db.Dialect) []*ir.TableDefinition {
	if desc.StrategyKind() != StrategyCopyOnChange {
		return nil
	}
	name := AuditTableName(desc.Table)

	id := column(d, AuditID, ir.ColumnUUID, false, "")
	id.IsPrimaryKey = true
	cols := []*ir.ColumnDefinition{id, column(d, AuditRecordID, ir.ColumnUUID, false, "")}
	if desc.MultiTenant() {
		cols = append(cols, column(d, desc.TenantField(), ir.ColumnUUID, false, ""))
	}
	field := column(d, AuditFieldName, ir.ColumnString, false, "")
	field.NativeType = NativeType(d, ir.ColumnString, defaultStringLength, 0, 0, "")
	field.MaxLength = defaultStringLength
	op := column(d, AuditOperation, ir.ColumnString, false, "")
	op.NativeType = NativeType(d, ir.ColumnString, 20, 0, 0, "")
	op.MaxLength = 20
	cols = append(cols,
		field,
		column(d, AuditOldValue, ir.ColumnJSONB, true, ""),
		column(d, AuditNewValue, ir.ColumnJSONB, true, ""),
		op,
		column(d, AuditChangedBy, ir.ColumnUUID, true, ""),
		column(d, AuditChangedAt, ir.ColumnTimestampTZ, false, NowExpression(d)),
	)

	indexes := []*ir.IndexDefinition{{
		Name:      fmt.Sprintf("idx_%s_record", name),
		TableName: name,
		Columns:   []string{AuditRecordID, AuditChangedAt},
		IndexType: "btree",
	}}
	if desc.MultiTenant() {
		indexes = append(indexes, &ir.IndexDefinition{
			Name:      fmt.Sprintf("idx_%s_%s", name, desc.TenantField()),
			TableName: name,
			Columns:   []string{desc.TenantField()},
			IndexType: "btree",
		})
	}

	return []*ir.TableDefinition{{
		Name:    name,
		Schema:  desc.SchemaFor(d),
		Columns: cols,
		Indexes: indexes,
	}}
}

// ExtractAll returns the desired tables of every model keyed by table name,
// auxiliary tables included.
func ExtractAll(descs []*Descriptor, d db.Dialect) (map[string]*ir.TableDefinition, error) {
	tables := make(map[string]*ir.TableDefinition)
	for _, desc := range descs {
		t, err := ExtractTableDefinition(desc, d)
		if err != nil {
			return nil, err
		}
		if _, dup := tables[t.Name]; dup {
			return nil, storeerr.NewConfigurationError("extract model",
				fmt.Sprintf("table %s is declared by more than one model", t.Name))
		}
		tables[t.Name] = t
		for _, aux := range AuxiliaryTables(desc, d) {
			tables[aux.Name] = aux
		}
	}
	return tables, nil
}
