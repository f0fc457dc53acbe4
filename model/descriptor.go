// Package model describes application models explicitly and turns those
// descriptors into the desired table definitions, including the fields,
// indexes and auxiliary tables the temporal strategies own.
package model

import (
	"fmt"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// FieldType is the application-level type of a field.
type FieldType string

const (
	TypeUUID     FieldType = "uuid"
	TypeBool     FieldType = "bool"
	TypeInt      FieldType = "int"
	TypeInt64    FieldType = "int64"
	TypeFloat    FieldType = "float"
	TypeString   FieldType = "string"
	TypeText     FieldType = "text"
	TypeDate     FieldType = "date"
	TypeTime     FieldType = "time"
	TypeDateTime FieldType = "datetime"
	TypeDuration FieldType = "duration"
	TypeDecimal  FieldType = "decimal"
	TypeBytes    FieldType = "bytes"

	// Collections. List and Set of a primitive Elem become arrays; anything
	// else is stored as JSON.
	TypeList  FieldType = "list"
	TypeSet   FieldType = "set"
	TypeTuple FieldType = "tuple"
	TypeMap   FieldType = "map"
	TypeJSON  FieldType = "json"
	// TypeStruct is a nested structured value.
	TypeStruct FieldType = "struct"
)

// Field describes one model field.
type Field struct {
	Name string    `yaml:"name"`
	Type FieldType `yaml:"type"`
	// Elem is the element type of a list or set. Empty means untyped.
	Elem FieldType `yaml:"elem,omitempty"`
	// Optional unwraps to Type and makes the column nullable.
	Optional bool `yaml:"optional,omitempty"`

	MaxLength int `yaml:"max_length,omitempty"`
	// Precision and Scale are type constraints (max digits, decimal places).
	Precision int `yaml:"precision,omitempty"`
	Scale     int `yaml:"scale,omitempty"`
	// DBPrecision and DBScale override the constraints for the column only.
	DBPrecision int `yaml:"db_precision,omitempty"`
	DBScale     int `yaml:"db_scale,omitempty"`
	// DBType is a native type spelling that replaces the mapped type.
	DBType string `yaml:"db_type,omitempty"`

	// Default is a SQL default expression, e.g. 'draft', 0 or NOW().
	Default *string `yaml:"default,omitempty"`
	// References marks a foreign key as schema.table(column).
	References string `yaml:"references,omitempty"`
}

// Index is a secondary index declared on the model.
type Index struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
	Type    string   `yaml:"type,omitempty"`
	Where   string   `yaml:"where,omitempty"`
}

// StrategyKind selects the temporal strategy of a model.
type StrategyKind string

const (
	StrategyNone         StrategyKind = "none"
	StrategyCopyOnChange StrategyKind = "copy_on_change"
	StrategySCD2         StrategyKind = "scd2"
)

// Temporal configures the strategy-owned part of a model. Nil flags take
// their defaults: soft delete and multi-tenancy on, tenant field tenant_id.
type Temporal struct {
	Strategy    StrategyKind `yaml:"strategy,omitempty"`
	SoftDelete  *bool        `yaml:"soft_delete,omitempty"`
	MultiTenant *bool        `yaml:"multi_tenant,omitempty"`
	TenantField string       `yaml:"tenant_field,omitempty"`
}

// Descriptor is the explicit description of one model. It is built once,
// in code or from a YAML file, and never inspected by reflection.
type Descriptor struct {
	Name     string   `yaml:"name,omitempty"`
	Table    string   `yaml:"table"`
	Schema   string   `yaml:"schema,omitempty"`
	Fields   []Field  `yaml:"fields"`
	Indexes  []Index  `yaml:"indexes,omitempty"`
	Temporal Temporal `yaml:"temporal,omitempty"`
}

// ModelName is the descriptor name used in errors and metrics.
func (d *Descriptor) ModelName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Table
}

// StrategyKind returns the configured strategy, StrategyNone when unset.
func (d *Descriptor) StrategyKind() StrategyKind {
	if d.Temporal.Strategy == "" {
		return StrategyNone
	}
	return d.Temporal.Strategy
}

// SoftDelete reports whether deletes only mark records.
func (d *Descriptor) SoftDelete() bool {
	return d.Temporal.SoftDelete == nil || *d.Temporal.SoftDelete
}

// MultiTenant reports whether records carry a tenant id.
func (d *Descriptor) MultiTenant() bool {
	return d.Temporal.MultiTenant == nil || *d.Temporal.MultiTenant
}

// TenantField is the name of the tenant column.
func (d *Descriptor) TenantField() string {
	if d.Temporal.TenantField == "" {
		return "tenant_id"
	}
	return d.Temporal.TenantField
}

// SchemaFor returns the descriptor schema or the dialect default.
func (d *Descriptor) SchemaFor(dialect db.Dialect) string {
	if d.Schema != "" {
		return d.Schema
	}
	return dialect.DefaultSchema()
}

// Field returns the declared field with the given name.
func (d *Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Bool returns a pointer to b, for Temporal flags.
func Bool(b bool) *bool { return &b }

// Validate checks names and the temporal configuration. Declared fields may
// not reuse the names of strategy-owned fields.
func (d *Descriptor) Validate() error {
	const op = "validate model"
	if err := db.ValidateIdentifier(d.Table); err != nil {
		return storeerr.WithContext(err, op, d.ModelName(), "", "")
	}
	if d.Schema != "" {
		if err := db.ValidateIdentifier(d.Schema); err != nil {
			return storeerr.WithContext(err, op, d.ModelName(), "", "")
		}
	}
	switch d.StrategyKind() {
	case StrategyNone, StrategyCopyOnChange, StrategySCD2:
	default:
		return storeerr.NewConfigurationError(op,
			fmt.Sprintf("model %s: unknown temporal strategy %q", d.ModelName(), d.Temporal.Strategy),
			"use one of none, copy_on_change, scd2")
	}
	if err := db.ValidateIdentifier(d.TenantField()); err != nil {
		return storeerr.WithContext(err, op, d.ModelName(), "", "")
	}

	reserved := make(map[string]bool)
	for _, name := range ReservedFields(d) {
		reserved[name] = true
	}
	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if err := db.ValidateIdentifier(f.Name); err != nil {
			return storeerr.WithContext(err, op, d.ModelName(), "", "")
		}
		if seen[f.Name] {
			return storeerr.NewConfigurationError(op,
				fmt.Sprintf("model %s: field %s declared twice", d.ModelName(), f.Name))
		}
		seen[f.Name] = true
		if reserved[f.Name] {
			return storeerr.NewConfigurationError(op,
				fmt.Sprintf("model %s: field %s is managed by the %s strategy", d.ModelName(), f.Name, d.StrategyKind()),
				"rename the field",
				"remove the field and use the managed column")
		}
	}

	for _, idx := range d.Indexes {
		if err := db.ValidateIdentifier(idx.Name); err != nil {
			return storeerr.WithContext(err, op, d.ModelName(), "", "")
		}
		if len(idx.Columns) == 0 {
			return storeerr.NewConfigurationError(op,
				fmt.Sprintf("model %s: index %s has no columns", d.ModelName(), idx.Name))
		}
	}
	return nil
}
