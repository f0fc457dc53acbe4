package ffstorage

import (
	"github.com/google/uuid"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/internal/plan"
	"github.com/fenixflow/ff-storage-sub000/internal/schema"
	"github.com/fenixflow/ff-storage-sub000/ir"
	"github.com/fenixflow/ff-storage-sub000/model"
	"github.com/fenixflow/ff-storage-sub000/temporal"
)

// Re-export important types for external consumption

// Plan is an ordered set of schema changes with their DDL.
type Plan = plan.Plan

// SyncOptions controls whether destructive changes run and whether DDL
// runs at all.
type SyncOptions = schema.SyncOptions

// Dialect selects the backend.
type Dialect = db.Dialect

const (
	Postgres  = db.Postgres
	MySQL     = db.MySQL
	SQLServer = db.SQLServer
)

// ConnectionConfig holds the connection parameters for Open.
type ConnectionConfig = db.ConnectionConfig

// Descriptor declares a model: its table, fields, indexes and temporal
// behavior.
type Descriptor = model.Descriptor

// Field is one declared column of a model.
type Field = model.Field

// Repository runs tenant-scoped temporal CRUD for one model.
type Repository = temporal.Repository

// Record is one row as a column-to-value map.
type Record = temporal.Record

// Filters are equality filters for List and Count.
type Filters = temporal.Filters

// GetOptions and ListOptions select deleted rows and SCD2 point-in-time
// reads.
type (
	GetOptions  = temporal.GetOptions
	ListOptions = temporal.ListOptions
)

// AuditEntry is one Copy-on-Change audit row.
type AuditEntry = temporal.AuditEntry

// FieldComparison is one field of an SCD2 version comparison.
type FieldComparison = temporal.FieldComparison

// TenantID identifies a tenant.
type TenantID = uuid.UUID

// TableDefinition is the normalized form of a table.
type TableDefinition = ir.TableDefinition
