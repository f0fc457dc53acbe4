// Package temporal implements record versioning, audit, soft delete and
// tenant isolation on top of the db package.
//
// A Strategy owns the temporal columns of a table and decides how writes
// are persisted: in place (None), in place with a field-level audit log
// (CopyOnChange), or as a chain of immutable versions (SCD2). A Repository
// binds a strategy to a pool, a tenant scope and an optional cache.
package temporal

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/ir"
	"github.com/fenixflow/ff-storage-sub000/model"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// Scope identifies who performs an operation and which tenants it may see.
// Writes use Tenants[0]; reads match any of Tenants.
type Scope struct {
	Tenants []uuid.UUID
	UserID  uuid.UUID
}

// GetOptions modifies a single-record read.
type GetOptions struct {
	IncludeDeleted bool
	// AsOf reads the SCD2 version valid at that instant.
	AsOf *time.Time
}

// ListOptions modifies List and Count.
type ListOptions struct {
	IncludeDeleted bool
	AsOf           *time.Time
	Limit          int
	Offset         int
}

// Filters are AND-ed equality conditions keyed by column. A nil value
// matches NULL; a slice matches any of its elements.
type Filters map[string]any

// Strategy persists records of one model.
type Strategy interface {
	Kind() model.StrategyKind
	Descriptor() *model.Descriptor

	// Fields, Indexes and AuxiliaryTables describe the schema the strategy
	// needs next to the declared fields.
	Fields() []*ir.ColumnDefinition
	Indexes() []*ir.IndexDefinition
	AuxiliaryTables() []*ir.TableDefinition

	Create(ctx context.Context, pool db.Pool, data Record, scope Scope) (Record, error)
	Update(ctx context.Context, pool db.Pool, id uuid.UUID, data Record, scope Scope) (Record, error)
	// Delete reports false when no live record has id.
	Delete(ctx context.Context, pool db.Pool, id uuid.UUID, scope Scope) (bool, error)
	Restore(ctx context.Context, pool db.Pool, id uuid.UUID, scope Scope) (Record, error)
	// Get returns nil when no record matches.
	Get(ctx context.Context, q db.Querier, id uuid.UUID, scope Scope, opts GetOptions) (Record, error)
	List(ctx context.Context, q db.Querier, filters Filters, scope Scope, opts ListOptions) ([]Record, error)
	Count(ctx context.Context, q db.Querier, filters Filters, scope Scope, opts ListOptions) (int64, error)
}

// Auditor is implemented by strategies that keep a field-level audit log.
type Auditor interface {
	AuditHistory(ctx context.Context, q db.Querier, id uuid.UUID, scope Scope) ([]AuditEntry, error)
	FieldHistory(ctx context.Context, q db.Querier, id uuid.UUID, field string, scope Scope) ([]AuditEntry, error)
}

// Versioner is implemented by strategies that keep every version.
type Versioner interface {
	Version(ctx context.Context, q db.Querier, id uuid.UUID, version int, scope Scope) (Record, error)
	VersionHistory(ctx context.Context, q db.Querier, id uuid.UUID, scope Scope) ([]Record, error)
	CompareVersions(ctx context.Context, q db.Querier, id uuid.UUID, v1, v2 int, scope Scope) (map[string]FieldComparison, error)
}

// FieldComparison is one field of CompareVersions.
type FieldComparison struct {
	Old     any  `json:"old"`
	New     any  `json:"new"`
	Changed bool `json:"changed"`
}

// NewStrategy returns the strategy configured by desc for dialect d.
func NewStrategy(desc *model.Descriptor, d db.Dialect) (Strategy, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	adapter, err := db.NewAdapter(d)
	if err != nil {
		return nil, err
	}
	b := newBase(desc, adapter)

	switch desc.StrategyKind() {
	case model.StrategyNone:
		return &None{base: b}, nil
	case model.StrategyCopyOnChange:
		return newCopyOnChange(b), nil
	case model.StrategySCD2:
		return &SCD2{base: b}, nil
	}
	return nil, storeerr.NewConfigurationError("new strategy",
		fmt.Sprintf("unknown temporal strategy %q", desc.Temporal.Strategy))
}

// base holds what every strategy shares.
type base struct {
	desc    *model.Descriptor
	adapter db.Adapter
	dialect db.Dialect
	table   *db.Builder
	// now is replaced in tests.
	now func() time.Time

	columns    map[string]bool
	jsonFields map[string]bool
}

func newBase(desc *model.Descriptor, adapter db.Adapter) base {
	d := adapter.Dialect()
	b := base{
		desc:       desc,
		adapter:    adapter,
		dialect:    d,
		table:      db.NewBuilder(d, desc.SchemaFor(d), desc.Table),
		now:        func() time.Time { return time.Now().UTC() },
		columns:    make(map[string]bool),
		jsonFields: make(map[string]bool),
	}
	for _, name := range model.ReservedFields(desc) {
		b.columns[name] = true
	}
	for _, f := range desc.Fields {
		b.columns[f.Name] = true
		if m, err := model.MapField(f, d); err == nil && storedAsJSON(m, d) {
			b.jsonFields[f.Name] = true
		}
	}
	return b
}

func storedAsJSON(m model.MappedType, d db.Dialect) bool {
	switch m.ColumnType {
	case ir.ColumnJSONB:
		return true
	case ir.ColumnArray:
		return d != db.Postgres
	}
	return false
}

func (b *base) Descriptor() *model.Descriptor { return b.desc }

func (b *base) Fields() []*ir.ColumnDefinition {
	return model.TemporalFields(b.desc, b.dialect)
}

func (b *base) Indexes() []*ir.IndexDefinition {
	return model.TemporalIndexes(b.desc)
}

func (b *base) AuxiliaryTables() []*ir.TableDefinition {
	return model.AuxiliaryTables(b.desc, b.dialect)
}

// tenantConds restricts a query to the scope's tenants.
func (b *base) tenantConds(scope Scope) ([]db.Condition, error) {
	if !b.desc.MultiTenant() {
		return nil, nil
	}
	field := b.desc.TenantField()
	switch len(scope.Tenants) {
	case 0:
		return nil, storeerr.Newf(storeerr.KindTenantNotConfigured, "query",
			"model %s is multi-tenant and no tenant was given", b.desc.ModelName())
	case 1:
		return []db.Condition{db.Eq(field, scope.Tenants[0])}, nil
	}
	tenants := make([]any, len(scope.Tenants))
	for i, t := range scope.Tenants {
		tenants[i] = t
	}
	return []db.Condition{db.In(field, tenants...)}, nil
}

// writeTenant is the single tenant a write is stamped with.
func (b *base) writeTenant(scope Scope) (uuid.UUID, error) {
	if !b.desc.MultiTenant() {
		return uuid.Nil, nil
	}
	if len(scope.Tenants) != 1 {
		return uuid.Nil, storeerr.Newf(storeerr.KindTenantNotConfigured, "write",
			"model %s is multi-tenant; writes need exactly one tenant, got %d", b.desc.ModelName(), len(scope.Tenants))
	}
	return scope.Tenants[0], nil
}

// idConds selects id within the scope.
func (b *base) idConds(id uuid.UUID, scope Scope) ([]db.Condition, error) {
	conds, err := b.tenantConds(scope)
	if err != nil {
		return nil, err
	}
	return append([]db.Condition{db.Eq(model.FieldID, id)}, conds...), nil
}

// filterConds validates filter keys and turns them into conditions.
func (b *base) filterConds(filters Filters) ([]db.Condition, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]db.Condition, 0, len(keys))
	for _, k := range keys {
		if err := b.checkColumn("filter", k); err != nil {
			return nil, err
		}
		switch v := filters[k].(type) {
		case nil:
			conds = append(conds, db.IsNull(k))
		case []any:
			conds = append(conds, db.In(k, v...))
		case []string:
			values := make([]any, len(v))
			for i := range v {
				values[i] = v[i]
			}
			conds = append(conds, db.In(k, values...))
		case []uuid.UUID:
			values := make([]any, len(v))
			for i := range v {
				values[i] = v[i]
			}
			conds = append(conds, db.In(k, values...))
		default:
			conds = append(conds, db.Eq(k, v))
		}
	}
	return conds, nil
}

// checkColumn rejects names that are not columns of the table.
func (b *base) checkColumn(op, name string) error {
	if err := db.ValidateIdentifier(name); err != nil {
		return err
	}
	if !b.columns[name] {
		return storeerr.NewConfigurationError(op,
			fmt.Sprintf("model %s has no field %s", b.desc.ModelName(), name))
	}
	return nil
}

// encode prepares caller values for the driver.
func (b *base) encode(data Record) (Record, error) {
	out := make(Record, len(data))
	for k, v := range data {
		if err := b.checkColumn("write", k); err != nil {
			return nil, err
		}
		if b.jsonFields[k] {
			if _, isString := v.(string); !isString {
				encoded, err := encodeJSON(v)
				if err != nil {
					return nil, fmt.Errorf("failed to encode field %s: %w", k, err)
				}
				v = encoded
			}
		}
		out[k] = v
	}
	return out, nil
}

// decode turns a driver row into a record.
func (b *base) decode(row db.Row) (Record, error) {
	r := fromRow(row)
	for k := range b.jsonFields {
		v, ok := r[k]
		if !ok {
			continue
		}
		decoded, err := decodeJSON(v)
		if err != nil {
			return nil, fmt.Errorf("failed to decode field %s: %w", k, err)
		}
		r[k] = decoded
	}
	return r, nil
}

func (b *base) decodeAll(rows []db.Row) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		r, err := b.decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// queryOne runs a SELECT and decodes the first row.
func (b *base) queryOne(ctx context.Context, q db.Querier, stmt db.Statement) (Record, error) {
	row, err := db.QueryOne(ctx, b.adapter, q, stmt.SQL, stmt.Args...)
	if err != nil || row == nil {
		return nil, err
	}
	return b.decode(row)
}

func (b *base) queryAll(ctx context.Context, q db.Querier, stmt db.Statement) ([]Record, error) {
	rows, err := db.Query(ctx, b.adapter, q, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	return b.decodeAll(rows)
}

// returning executes stmt and decodes the affected row.
func (b *base) returning(ctx context.Context, q db.Querier, stmt db.Statement, opts ...db.ReturningOption) (Record, error) {
	row, err := b.adapter.ExecuteWithReturning(ctx, q, stmt.SQL, stmt.Args, stmt.Table, opts...)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return b.decode(row)
}

// selectRow reads one row by id. lock takes a row lock for the rest of
// the transaction.
func (b *base) selectRow(ctx context.Context, q db.Querier, conds []db.Condition, lock bool) (Record, error) {
	return b.queryOne(ctx, q, b.table.Select(db.SelectQuery{Where: conds, ForUpdate: lock}))
}

// listQuery renders the paged SELECT for List.
func (b *base) listQuery(conds []db.Condition, opts ListOptions) db.Statement {
	return b.table.Select(db.SelectQuery{
		Where:   conds,
		OrderBy: []db.Order{{Column: model.FieldCreatedAt}, {Column: model.FieldID}},
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

func (b *base) count(ctx context.Context, q db.Querier, conds []db.Condition) (int64, error) {
	stmt := b.table.Count(conds...)
	row, err := db.QueryOne(ctx, b.adapter, q, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, err
	}
	n, _ := intOf(row["count"])
	return int64(n), nil
}

// stamps returns the bookkeeping values of a new row.
func (b *base) stamps(id, tenant uuid.UUID, scope Scope, now time.Time) Record {
	r := Record{
		model.FieldID:        id,
		model.FieldCreatedAt: now,
		model.FieldUpdatedAt: now,
		model.FieldCreatedBy: userArg(scope.UserID),
		model.FieldUpdatedBy: userArg(scope.UserID),
	}
	if b.desc.MultiTenant() {
		r[b.desc.TenantField()] = tenant
	}
	return r
}

func (b *base) noAsOf(opts GetOptions) error {
	if opts.AsOf != nil {
		return storeerr.Newf(storeerr.KindTemporalStrategy, "get",
			"model %s uses the %s strategy; as-of reads need scd2", b.desc.ModelName(), b.desc.StrategyKind())
	}
	return nil
}

func (b *base) requireSoftDelete(op string) error {
	if !b.desc.SoftDelete() {
		return storeerr.Newf(storeerr.KindTemporalStrategy, op,
			"model %s does not use soft delete", b.desc.ModelName())
	}
	return nil
}

// userArg binds a missing user as NULL.
func userArg(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

// inTx runs fn in a transaction that is rolled back unless fn succeeds.
func inTx(ctx context.Context, pool db.Pool, d db.Dialect, fn func(tx *sql.Tx) error) error {
	tx, err := pool.BeginTx(ctx, nil)
	if err != nil {
		return db.Classify(err, d)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return db.Classify(err, d)
	}
	return nil
}
