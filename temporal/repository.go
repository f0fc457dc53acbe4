package temporal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/internal/logger"
	"github.com/fenixflow/ff-storage-sub000/model"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// Options configures a Repository.
type Options struct {
	Descriptor *model.Descriptor
	Pool       db.Pool
	Dialect    db.Dialect

	// TenantID scopes every operation to one tenant. TenantIDs instead
	// allows reads and counts across several tenants; writes then fail.
	TenantID  uuid.UUID
	TenantIDs []uuid.UUID

	// CacheTTL enables the Get cache when positive.
	CacheTTL time.Duration
	// Retry defaults to db.DefaultRetryPolicy when MaxAttempts is zero.
	Retry   db.RetryPolicy
	Breaker *db.CircuitBreaker
	Metrics *db.Metrics
}

// Repository runs the operations of one model through its strategy, with
// tenant scoping, retries, a circuit breaker, metrics and an optional
// cache.
type Repository struct {
	desc     *model.Descriptor
	pool     db.Pool
	strategy Strategy

	tenant  uuid.UUID
	tenants []uuid.UUID

	cache   *recordCache
	retry   db.RetryPolicy
	breaker *db.CircuitBreaker
	metrics *db.Metrics
}

// NewRepository validates opts and selects the strategy of the descriptor.
func NewRepository(opts Options) (*Repository, error) {
	if opts.Descriptor == nil {
		return nil, storeerr.NewConfigurationError("new repository", "descriptor is required")
	}
	if opts.Pool == nil {
		return nil, storeerr.NewConfigurationError("new repository", "connection pool is required")
	}
	strategy, err := NewStrategy(opts.Descriptor, opts.Dialect)
	if err != nil {
		return nil, err
	}

	r := &Repository{
		desc:     opts.Descriptor,
		pool:     opts.Pool,
		strategy: strategy,
		tenant:   opts.TenantID,
		tenants:  opts.TenantIDs,
		cache:    newRecordCache(opts.CacheTTL),
		retry:    opts.Retry,
		breaker:  opts.Breaker,
		metrics:  opts.Metrics,
	}
	if r.retry.MaxAttempts == 0 {
		r.retry = db.DefaultRetryPolicy()
	}
	if r.tenant != uuid.Nil {
		r.tenants = []uuid.UUID{r.tenant}
	}
	if opts.Descriptor.MultiTenant() && len(r.tenants) == 0 {
		return nil, storeerr.Newf(storeerr.KindTenantNotConfigured, "new repository",
			"model %s is multi-tenant but no tenant was given", opts.Descriptor.ModelName())
	}
	return r, nil
}

// Strategy returns the strategy the repository delegates to.
func (r *Repository) Strategy() Strategy { return r.strategy }

func (r *Repository) Descriptor() *model.Descriptor { return r.desc }

func (r *Repository) readScope() Scope {
	return Scope{Tenants: r.tenants}
}

func (r *Repository) writeScope(userID uuid.UUID) Scope {
	s := Scope{UserID: userID}
	if r.tenant != uuid.Nil {
		s.Tenants = []uuid.UUID{r.tenant}
	}
	return s
}

func (r *Repository) tenantLabel() string {
	if !r.desc.MultiTenant() {
		return ""
	}
	ids := make([]string, len(r.tenants))
	for i, t := range r.tenants {
		ids[i] = t.String()
	}
	return strings.Join(ids, ",")
}

// run executes fn under the retry policy and the breaker and wraps its
// error with the repository context.
func (r *Repository) run(ctx context.Context, op string, id uuid.UUID, fn func(ctx context.Context) error) error {
	name := r.desc.ModelName()
	start := time.Now()
	attempt := 0

	err := db.Retry(ctx, r.retry, op, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			r.metrics.IncRetry(name, op)
		}
		err := r.breaker.Execute(ctx, fn)
		if r.breaker != nil {
			r.metrics.SetCircuitState(name, r.breaker.State())
		}
		return err
	})
	r.metrics.ObserveQuery(name, op, start, err)
	if err == nil {
		return nil
	}

	recordID := ""
	if id != uuid.Nil {
		recordID = id.String()
	}
	err = storeerr.WithContext(err, op, name, recordID, r.tenantLabel())
	logger.Get().Error("Repository operation failed",
		"model", name, "op", op, "id", recordID, "error", err)
	return err
}

// checkTenant fails when rec belongs to a tenant outside the scope.
func (r *Repository) checkTenant(op string, rec Record) error {
	if rec == nil || !r.desc.MultiTenant() {
		return nil
	}
	actual, _ := uuidOf(rec[r.desc.TenantField()])
	for _, t := range r.tenants {
		if t == actual {
			return nil
		}
	}
	return storeerr.NewTenantIsolationError(op, rec.ID().String(), r.tenantLabel(), actual.String())
}

func (r *Repository) checkTenants(op string, recs []Record) error {
	for _, rec := range recs {
		if err := r.checkTenant(op, rec); err != nil {
			return err
		}
	}
	return nil
}

// createValues includes every declared field. Fields the caller left out
// are sent as NULL unless the column has a default; managed columns are
// dropped.
func (r *Repository) createValues(data Record) Record {
	managed := make(map[string]bool)
	for _, name := range model.ReservedFields(r.desc) {
		managed[name] = true
	}

	out := make(Record, len(r.desc.Fields))
	for k, v := range data {
		if !managed[k] {
			out[k] = v
		}
	}
	for _, f := range r.desc.Fields {
		if _, ok := out[f.Name]; !ok && f.Default == nil {
			out[f.Name] = nil
		}
	}
	return out
}

// immutableFields are never sent on update. updated_at is kept as the
// caller's view of the record for concurrent-modification checks.
func (r *Repository) immutableFields() map[string]bool {
	return map[string]bool{
		model.FieldID:        true,
		r.desc.TenantField(): true,
		model.FieldCreatedAt: true,
		model.FieldCreatedBy: true,
		model.FieldUpdatedBy: true,
		model.FieldDeletedAt: true,
		model.FieldDeletedBy: true,
		model.FieldVersion:   true,
		model.FieldValidFrom: true,
		model.FieldValidTo:   true,
	}
}

// updateValues keeps only the keys the caller set.
func (r *Repository) updateValues(data Record) Record {
	immutable := r.immutableFields()
	out := make(Record, len(data))
	for k, v := range data {
		if !immutable[k] {
			out[k] = v
		}
	}
	return out
}

// Create stores a new record.
func (r *Repository) Create(ctx context.Context, data Record, userID uuid.UUID) (Record, error) {
	values := r.createValues(data)
	var created Record
	err := r.run(ctx, "create", uuid.Nil, func(ctx context.Context) error {
		var err error
		created, err = r.strategy.Create(ctx, r.pool, values, r.writeScope(userID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateMany creates each record in turn. On failure it returns the
// records created so far with the error.
func (r *Repository) CreateMany(ctx context.Context, data []Record, userID uuid.UUID) ([]Record, error) {
	out := make([]Record, 0, len(data))
	for i, d := range data {
		created, err := r.Create(ctx, d, userID)
		if err != nil {
			return out, fmt.Errorf("failed to create record %d of %d: %w", i+1, len(data), err)
		}
		out = append(out, created)
	}
	return out, nil
}

// Update applies the keys of data to record id.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, data Record, userID uuid.UUID) (Record, error) {
	values := r.updateValues(data)
	var updated Record
	err := r.run(ctx, "update", id, func(ctx context.Context) error {
		var err error
		updated, err = r.strategy.Update(ctx, r.pool, id, values, r.writeScope(userID))
		return err
	})
	r.cache.invalidate(id)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes record id and reports whether a live record existed.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) (bool, error) {
	var deleted bool
	err := r.run(ctx, "delete", id, func(ctx context.Context) error {
		var err error
		deleted, err = r.strategy.Delete(ctx, r.pool, id, r.writeScope(userID))
		return err
	})
	r.cache.invalidate(id)
	return deleted, err
}

// Restore undoes a soft delete. It returns nil when id does not exist.
func (r *Repository) Restore(ctx context.Context, id uuid.UUID, userID uuid.UUID) (Record, error) {
	var restored Record
	err := r.run(ctx, "restore", id, func(ctx context.Context) error {
		var err error
		restored, err = r.strategy.Restore(ctx, r.pool, id, r.writeScope(userID))
		return err
	})
	r.cache.invalidate(id)
	if err != nil {
		return nil, err
	}
	return restored, nil
}

// Get returns record id, or nil when it does not exist in scope. Plain
// reads are served from the cache when it is enabled.
func (r *Repository) Get(ctx context.Context, id uuid.UUID, opts GetOptions) (Record, error) {
	cacheable := !opts.IncludeDeleted && opts.AsOf == nil
	if cacheable && r.cache != nil {
		rec, hit := r.cache.get(id)
		r.metrics.CacheLookup(r.desc.ModelName(), hit)
		if hit {
			return rec, nil
		}
	}

	var rec Record
	err := r.run(ctx, "get", id, func(ctx context.Context) error {
		var err error
		if rec, err = r.strategy.Get(ctx, r.pool, id, r.readScope(), opts); err != nil {
			return err
		}
		return r.checkTenant("get", rec)
	})
	if err != nil {
		return nil, err
	}
	if cacheable {
		r.cache.put(rec)
	}
	return rec, nil
}

// GetMany returns the records of ids that exist, in the order of ids.
func (r *Repository) GetMany(ctx context.Context, ids []uuid.UUID) ([]Record, error) {
	found := make(map[uuid.UUID]Record, len(ids))
	var missing []uuid.UUID
	for _, id := range ids {
		if rec, hit := r.cache.get(id); hit {
			r.metrics.CacheLookup(r.desc.ModelName(), true)
			found[id] = rec
			continue
		}
		if r.cache != nil {
			r.metrics.CacheLookup(r.desc.ModelName(), false)
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		var recs []Record
		err := r.run(ctx, "get many", uuid.Nil, func(ctx context.Context) error {
			var err error
			recs, err = r.strategy.List(ctx, r.pool, Filters{model.FieldID: missing}, r.readScope(), ListOptions{})
			if err != nil {
				return err
			}
			return r.checkTenants("get many", recs)
		})
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			r.cache.put(rec)
			if r.cache != nil {
				// the caller gets its own copy
				if c, err := rec.Clone(); err == nil {
					rec = c
				}
			}
			found[rec.ID()] = rec
		}
	}

	out := make([]Record, 0, len(found))
	for _, id := range ids {
		if rec, ok := found[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// List returns the records matching filters. A zero limit means
// DefaultListLimit.
func (r *Repository) List(ctx context.Context, filters Filters, opts ListOptions) ([]Record, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	var recs []Record
	err := r.run(ctx, "list", uuid.Nil, func(ctx context.Context) error {
		var err error
		if recs, err = r.strategy.List(ctx, r.pool, filters, r.readScope(), opts); err != nil {
			return err
		}
		return r.checkTenants("list", recs)
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Count returns the number of records matching filters. Limit and Offset
// are ignored.
func (r *Repository) Count(ctx context.Context, filters Filters, opts ListOptions) (int64, error) {
	var n int64
	err := r.run(ctx, "count", uuid.Nil, func(ctx context.Context) error {
		var err error
		n, err = r.strategy.Count(ctx, r.pool, filters, r.readScope(), opts)
		return err
	})
	return n, err
}

// InvalidateCache drops every cached record.
func (r *Repository) InvalidateCache() {
	r.cache.flush()
}

func (r *Repository) unsupported(op string) error {
	return storeerr.Newf(storeerr.KindTemporalStrategy, op,
		"model %s uses the %s strategy, which does not support %s", r.desc.ModelName(), r.strategy.Kind(), op)
}

// AuditHistory returns the audit log of id (Copy-on-Change only).
func (r *Repository) AuditHistory(ctx context.Context, id uuid.UUID) ([]AuditEntry, error) {
	auditor, ok := r.strategy.(Auditor)
	if !ok {
		return nil, r.unsupported("audit history")
	}
	var entries []AuditEntry
	err := r.run(ctx, "audit history", id, func(ctx context.Context) error {
		var err error
		entries, err = auditor.AuditHistory(ctx, r.pool, id, r.readScope())
		return err
	})
	return entries, err
}

// FieldHistory returns the audit log of one field of id (Copy-on-Change
// only).
func (r *Repository) FieldHistory(ctx context.Context, id uuid.UUID, field string) ([]AuditEntry, error) {
	auditor, ok := r.strategy.(Auditor)
	if !ok {
		return nil, r.unsupported("field history")
	}
	var entries []AuditEntry
	err := r.run(ctx, "field history", id, func(ctx context.Context) error {
		var err error
		entries, err = auditor.FieldHistory(ctx, r.pool, id, field, r.readScope())
		return err
	})
	return entries, err
}

// VersionHistory returns every version of id (SCD2 only).
func (r *Repository) VersionHistory(ctx context.Context, id uuid.UUID) ([]Record, error) {
	versioner, ok := r.strategy.(Versioner)
	if !ok {
		return nil, r.unsupported("version history")
	}
	var recs []Record
	err := r.run(ctx, "version history", id, func(ctx context.Context) error {
		var err error
		if recs, err = versioner.VersionHistory(ctx, r.pool, id, r.readScope()); err != nil {
			return err
		}
		return r.checkTenants("version history", recs)
	})
	return recs, err
}

// Version returns version n of id, or nil (SCD2 only).
func (r *Repository) Version(ctx context.Context, id uuid.UUID, version int) (Record, error) {
	versioner, ok := r.strategy.(Versioner)
	if !ok {
		return nil, r.unsupported("version")
	}
	var rec Record
	err := r.run(ctx, "version", id, func(ctx context.Context) error {
		var err error
		if rec, err = versioner.Version(ctx, r.pool, id, version, r.readScope()); err != nil {
			return err
		}
		return r.checkTenant("version", rec)
	})
	return rec, err
}

// CompareVersions diffs two versions of id field by field (SCD2 only).
func (r *Repository) CompareVersions(ctx context.Context, id uuid.UUID, v1, v2 int) (map[string]FieldComparison, error) {
	versioner, ok := r.strategy.(Versioner)
	if !ok {
		return nil, r.unsupported("compare versions")
	}
	var out map[string]FieldComparison
	err := r.run(ctx, "compare versions", id, func(ctx context.Context) error {
		var err error
		out, err = versioner.CompareVersions(ctx, r.pool, id, v1, v2, r.readScope())
		return err
	})
	return out, err
}
