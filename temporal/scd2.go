package temporal

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/model"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// SCD2 keeps every version of a record. A write closes the current row by
// setting valid_to and inserts the next version; closed rows are never
// touched again. Concurrent writers race on (id, version) and the loser
// gets a retryable TemporalVersionConflict.
type SCD2 struct {
	base
}

func (s *SCD2) Kind() model.StrategyKind { return model.StrategySCD2 }

// Create inserts version 1.
func (s *SCD2) Create(ctx context.Context, pool db.Pool, data Record, scope Scope) (Record, error) {
	tenant, err := s.writeTenant(scope)
	if err != nil {
		return nil, err
	}
	values, err := s.encode(data)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	now := s.now()
	for k, v := range s.stamps(id, tenant, scope, now) {
		values[k] = v
	}
	values[model.FieldVersion] = 1
	values[model.FieldValidFrom] = now
	values[model.FieldValidTo] = nil

	return s.returning(ctx, pool, s.table.Insert(values).Returning(),
		db.WithReturningID(id), db.WithReturningKey(model.FieldVersion, 1))
}

// Update closes the current version and inserts the next one with data
// applied on top of the unchanged fields.
func (s *SCD2) Update(ctx context.Context, pool db.Pool, id uuid.UUID, data Record, scope Scope) (Record, error) {
	changes, err := s.encode(data)
	if err != nil {
		return nil, err
	}
	return s.supersede(ctx, pool, id, scope, "update", func(current Record) (Record, error) {
		if err := checkTransition(ctx, current, EventUpdate); err != nil {
			return nil, err
		}
		return changes, nil
	})
}

// Delete closes the current version. With soft delete a deleted version is
// inserted after it; without, the record simply has no current version.
func (s *SCD2) Delete(ctx context.Context, pool db.Pool, id uuid.UUID, scope Scope) (bool, error) {
	if !s.desc.SoftDelete() {
		return s.closeCurrent(ctx, pool, id, scope)
	}
	next, err := s.supersede(ctx, pool, id, scope, "delete", func(current Record) (Record, error) {
		if err := checkTransition(ctx, current, EventDelete); err != nil {
			return nil, err
		}
		return Record{
			model.FieldDeletedAt: s.now(),
			model.FieldDeletedBy: userArg(scope.UserID),
		}, nil
	})
	if errors.Is(err, storeerr.ErrNotFound) {
		return false, nil
	}
	return next != nil, err
}

// Restore inserts an active version after the deleted one.
func (s *SCD2) Restore(ctx context.Context, pool db.Pool, id uuid.UUID, scope Scope) (Record, error) {
	if err := s.requireSoftDelete("restore"); err != nil {
		return nil, err
	}
	next, err := s.supersede(ctx, pool, id, scope, "restore", func(current Record) (Record, error) {
		if err := checkTransition(ctx, current, EventRestore); err != nil {
			return nil, err
		}
		return Record{
			model.FieldDeletedAt: nil,
			model.FieldDeletedBy: nil,
		}, nil
	})
	if errors.Is(err, storeerr.ErrNotFound) {
		return nil, nil
	}
	return next, err
}

// supersede runs the close-and-insert cycle in one transaction. next
// returns the encoded values that differ from the current row.
func (s *SCD2) supersede(ctx context.Context, pool db.Pool, id uuid.UUID, scope Scope, op string, next func(current Record) (Record, error)) (Record, error) {
	conds, err := s.idConds(id, scope)
	if err != nil {
		return nil, err
	}
	conds = append(conds, db.IsNull(model.FieldValidTo))

	var inserted Record
	err = inTx(ctx, pool, s.dialect, func(tx *sql.Tx) error {
		current, err := s.selectRow(ctx, tx, conds, false)
		if err != nil {
			return err
		}
		if current == nil {
			return storeerr.ErrNotFound
		}
		changes, err := next(current)
		if err != nil {
			return err
		}

		now := s.now()
		version := current.Version()
		if err := s.close(ctx, tx, id, version, now, op); err != nil {
			return err
		}

		values, err := s.carryOver(current)
		if err != nil {
			return err
		}
		for k, v := range changes {
			values[k] = v
		}
		values[model.FieldVersion] = version + 1
		values[model.FieldValidFrom] = now
		values[model.FieldValidTo] = nil
		values[model.FieldUpdatedAt] = now
		values[model.FieldUpdatedBy] = userArg(scope.UserID)

		inserted, err = s.returning(ctx, tx, s.table.Insert(values).Returning(),
			db.WithReturningID(id), db.WithReturningKey(model.FieldVersion, version+1))
		if err != nil && db.IsUniqueViolation(err) {
			return s.conflict(op, id, err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// close ends the validity of version. Zero affected rows means another
// writer closed it first.
func (s *SCD2) close(ctx context.Context, tx *sql.Tx, id uuid.UUID, version int, now time.Time, op string) error {
	stmt := s.table.Update(Record{model.FieldValidTo: now},
		db.Eq(model.FieldID, id),
		db.Eq(model.FieldVersion, version),
		db.IsNull(model.FieldValidTo),
	)
	result, err := db.Exec(ctx, s.adapter, tx, stmt.SQL, stmt.Args...)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return s.conflict(op, id, nil)
	}
	return nil
}

func (s *SCD2) closeCurrent(ctx context.Context, pool db.Pool, id uuid.UUID, scope Scope) (bool, error) {
	conds, err := s.idConds(id, scope)
	if err != nil {
		return false, err
	}
	conds = append(conds, db.IsNull(model.FieldValidTo))

	closed := false
	err = inTx(ctx, pool, s.dialect, func(tx *sql.Tx) error {
		current, err := s.selectRow(ctx, tx, conds, false)
		if err != nil || current == nil {
			return err
		}
		if err := checkTransition(ctx, current, EventSupersede); err != nil {
			return err
		}
		if err := s.close(ctx, tx, id, current.Version(), s.now(), "delete"); err != nil {
			return err
		}
		closed = true
		return nil
	})
	return closed, err
}

func (s *SCD2) conflict(op string, id uuid.UUID, cause error) error {
	return &storeerr.Error{
		Kind:      storeerr.KindTemporalVersionConflict,
		Op:        op,
		Model:     s.desc.ModelName(),
		RecordID:  id.String(),
		Message:   "current version was superseded by a concurrent write",
		Retryable: true,
		Err:       cause,
	}
}

// carryOver copies the columns of current that the next version inherits,
// re-encoded for the driver.
func (s *SCD2) carryOver(current Record) (Record, error) {
	values := make(Record, len(current))
	for k, v := range current {
		if !s.columns[k] {
			continue
		}
		values[k] = v
	}
	return s.encode(values)
}

// Get returns the current version, or the version valid at opts.AsOf.
func (s *SCD2) Get(ctx context.Context, q db.Querier, id uuid.UUID, scope Scope, opts GetOptions) (Record, error) {
	conds, err := s.idConds(id, scope)
	if err != nil {
		return nil, err
	}
	conds = append(conds, s.validConds(opts.AsOf)...)
	conds = append(conds, s.liveConds(opts.IncludeDeleted)...)
	return s.selectRow(ctx, q, conds, false)
}

func (s *SCD2) List(ctx context.Context, q db.Querier, filters Filters, scope Scope, opts ListOptions) ([]Record, error) {
	conds, err := s.readConds(filters, scope, opts)
	if err != nil {
		return nil, err
	}
	return s.queryAll(ctx, q, s.listQuery(conds, opts))
}

func (s *SCD2) Count(ctx context.Context, q db.Querier, filters Filters, scope Scope, opts ListOptions) (int64, error) {
	conds, err := s.readConds(filters, scope, opts)
	if err != nil {
		return 0, err
	}
	return s.count(ctx, q, conds)
}

func (s *SCD2) readConds(filters Filters, scope Scope, opts ListOptions) ([]db.Condition, error) {
	conds, err := s.tenantConds(scope)
	if err != nil {
		return nil, err
	}
	conds = append(conds, s.validConds(opts.AsOf)...)
	conds = append(conds, s.liveConds(opts.IncludeDeleted)...)
	fc, err := s.filterConds(filters)
	if err != nil {
		return nil, err
	}
	return append(conds, fc...), nil
}

// validConds selects the current version, or the one whose interval
// [valid_from, valid_to) contains asOf.
func (s *SCD2) validConds(asOf *time.Time) []db.Condition {
	if asOf == nil {
		return []db.Condition{db.IsNull(model.FieldValidTo)}
	}
	return []db.Condition{
		db.Lte(model.FieldValidFrom, *asOf),
		db.NullOrGreater(model.FieldValidTo, *asOf),
	}
}

// Version returns version n of id, or nil.
func (s *SCD2) Version(ctx context.Context, q db.Querier, id uuid.UUID, version int, scope Scope) (Record, error) {
	conds, err := s.idConds(id, scope)
	if err != nil {
		return nil, err
	}
	conds = append(conds, db.Eq(model.FieldVersion, version))
	return s.selectRow(ctx, q, conds, false)
}

// VersionHistory returns every version of id, oldest first.
func (s *SCD2) VersionHistory(ctx context.Context, q db.Querier, id uuid.UUID, scope Scope) ([]Record, error) {
	conds, err := s.idConds(id, scope)
	if err != nil {
		return nil, err
	}
	return s.queryAll(ctx, q, s.table.Select(db.SelectQuery{
		Where:   conds,
		OrderBy: []db.Order{{Column: model.FieldVersion}},
	}))
}

// versionMeta differs between every pair of versions and is left out of
// comparisons.
var versionMeta = map[string]bool{
	model.FieldVersion:   true,
	model.FieldValidFrom: true,
	model.FieldValidTo:   true,
	model.FieldUpdatedAt: true,
	model.FieldUpdatedBy: true,
}

// CompareVersions reports every column of v1 and v2 with whether it
// changed.
func (s *SCD2) CompareVersions(ctx context.Context, q db.Querier, id uuid.UUID, v1, v2 int, scope Scope) (map[string]FieldComparison, error) {
	a, err := s.Version(ctx, q, id, v1, scope)
	if err != nil {
		return nil, err
	}
	b, err := s.Version(ctx, q, id, v2, scope)
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, storeerr.Newf(storeerr.KindTemporalStrategy, "compare versions",
			"record %s has no version %d or %d", id, v1, v2)
	}

	out := make(map[string]FieldComparison)
	for k := range s.columns {
		if versionMeta[k] {
			continue
		}
		out[k] = FieldComparison{Old: a[k], New: b[k], Changed: !sameValue(a[k], b[k])}
	}
	return out, nil
}
