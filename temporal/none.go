package temporal

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/model"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// None updates rows in place and keeps no history.
type None struct {
	base
}

func (s *None) Kind() model.StrategyKind { return model.StrategyNone }

// Create inserts data with a fresh id.
func (s *None) Create(ctx context.Context, pool db.Pool, data Record, scope Scope) (Record, error) {
	return insertNew(ctx, &s.base, pool, data, scope)
}

func insertNew(ctx context.Context, b *base, q db.Querier, data Record, scope Scope) (Record, error) {
	tenant, err := b.writeTenant(scope)
	if err != nil {
		return nil, err
	}
	values, err := b.encode(data)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	for k, v := range b.stamps(id, tenant, scope, b.now()) {
		values[k] = v
	}
	return b.returning(ctx, q, b.table.Insert(values).Returning(), db.WithReturningID(id))
}

// Update sets data on the live record and returns it.
func (s *None) Update(ctx context.Context, pool db.Pool, id uuid.UUID, data Record, scope Scope) (Record, error) {
	conds, err := s.idConds(id, scope)
	if err != nil {
		return nil, err
	}
	values, err := s.encode(data)
	if err != nil {
		return nil, err
	}

	var updated Record
	err = inTx(ctx, pool, s.dialect, func(tx *sql.Tx) error {
		current, err := s.selectRow(ctx, tx, conds, false)
		if err != nil {
			return err
		}
		if current == nil {
			return storeerr.ErrNotFound
		}
		if err := checkTransition(ctx, current, EventUpdate); err != nil {
			return err
		}

		values[model.FieldUpdatedAt] = s.now()
		values[model.FieldUpdatedBy] = userArg(scope.UserID)
		updated, err = s.returning(ctx, tx, s.table.Update(values, conds...).Returning(), db.WithReturningID(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete soft-deletes the record, or removes it when soft delete is off.
func (s *None) Delete(ctx context.Context, pool db.Pool, id uuid.UUID, scope Scope) (bool, error) {
	conds, err := s.idConds(id, scope)
	if err != nil {
		return false, err
	}

	deleted := false
	err = inTx(ctx, pool, s.dialect, func(tx *sql.Tx) error {
		current, err := s.selectRow(ctx, tx, conds, false)
		if err != nil || current == nil {
			return err
		}
		if err := checkTransition(ctx, current, EventDelete); err != nil {
			return err
		}

		var stmt db.Statement
		if s.desc.SoftDelete() {
			stmt = s.table.Update(Record{
				model.FieldDeletedAt: s.now(),
				model.FieldDeletedBy: userArg(scope.UserID),
			}, conds...)
		} else {
			stmt = s.table.Delete(conds...)
		}
		result, err := db.Exec(ctx, s.adapter, tx, stmt.SQL, stmt.Args...)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		deleted = err == nil && n > 0
		return nil
	})
	return deleted, err
}

// Restore clears the soft-delete marks of a deleted record.
func (s *None) Restore(ctx context.Context, pool db.Pool, id uuid.UUID, scope Scope) (Record, error) {
	if err := s.requireSoftDelete("restore"); err != nil {
		return nil, err
	}
	conds, err := s.idConds(id, scope)
	if err != nil {
		return nil, err
	}

	var restored Record
	err = inTx(ctx, pool, s.dialect, func(tx *sql.Tx) error {
		current, err := s.selectRow(ctx, tx, conds, false)
		if err != nil || current == nil {
			return err
		}
		if err := checkTransition(ctx, current, EventRestore); err != nil {
			return err
		}
		restored, err = s.returning(ctx, tx, s.table.Update(Record{
			model.FieldDeletedAt: nil,
			model.FieldDeletedBy: nil,
			model.FieldUpdatedAt: s.now(),
			model.FieldUpdatedBy: userArg(scope.UserID),
		}, conds...).Returning(), db.WithReturningID(id))
		return err
	})
	return restored, err
}

func (s *None) Get(ctx context.Context, q db.Querier, id uuid.UUID, scope Scope, opts GetOptions) (Record, error) {
	if err := s.noAsOf(opts); err != nil {
		return nil, err
	}
	conds, err := s.idConds(id, scope)
	if err != nil {
		return nil, err
	}
	conds = append(conds, s.liveConds(opts.IncludeDeleted)...)
	return s.selectRow(ctx, q, conds, false)
}

func (s *None) List(ctx context.Context, q db.Querier, filters Filters, scope Scope, opts ListOptions) ([]Record, error) {
	conds, err := s.readConds(filters, scope, opts)
	if err != nil {
		return nil, err
	}
	return s.queryAll(ctx, q, s.listQuery(conds, opts))
}

func (s *None) Count(ctx context.Context, q db.Querier, filters Filters, scope Scope, opts ListOptions) (int64, error) {
	conds, err := s.readConds(filters, scope, opts)
	if err != nil {
		return 0, err
	}
	return s.count(ctx, q, conds)
}

// liveConds hides soft-deleted rows unless includeDeleted is set.
func (b *base) liveConds(includeDeleted bool) []db.Condition {
	if b.desc.SoftDelete() && !includeDeleted {
		return []db.Condition{db.IsNull(model.FieldDeletedAt)}
	}
	return nil
}

// readConds combines tenant scope, soft-delete visibility and filters for
// the in-place strategies.
func (b *base) readConds(filters Filters, scope Scope, opts ListOptions) ([]db.Condition, error) {
	if opts.AsOf != nil {
		return nil, b.noAsOf(GetOptions{AsOf: opts.AsOf})
	}
	conds, err := b.tenantConds(scope)
	if err != nil {
		return nil, err
	}
	conds = append(conds, b.liveConds(opts.IncludeDeleted)...)
	fc, err := b.filterConds(filters)
	if err != nil {
		return nil, err
	}
	return append(conds, fc...), nil
}
