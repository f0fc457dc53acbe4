package temporal

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/model"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// Audit operations.
const (
	AuditInsert  = "INSERT"
	AuditUpdate  = "UPDATE"
	AuditDelete  = "DELETE"
	AuditRestore = "RESTORE"
)

// AuditEntry is one row of a <table>_audit log.
type AuditEntry struct {
	AuditID   uuid.UUID `json:"audit_id"`
	RecordID  uuid.UUID `json:"record_id"`
	TenantID  uuid.UUID `json:"tenant_id,omitempty"`
	FieldName string    `json:"field_name"`
	OldValue  any       `json:"old_value"`
	NewValue  any       `json:"new_value"`
	Operation string    `json:"operation"`
	ChangedBy uuid.UUID `json:"changed_by,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// CopyOnChange updates rows in place like None and appends one audit row
// per changed field in the same transaction. Writers of one record are
// serialized by a row lock.
type CopyOnChange struct {
	None
	audit *db.Builder
}

func newCopyOnChange(b base) *CopyOnChange {
	d := b.dialect
	return &CopyOnChange{
		None:  None{base: b},
		audit: db.NewBuilder(d, b.desc.SchemaFor(d), model.AuditTableName(b.desc.Table)),
	}
}

func (s *CopyOnChange) Kind() model.StrategyKind { return model.StrategyCopyOnChange }

// Create inserts the record and logs every declared field as INSERT.
func (s *CopyOnChange) Create(ctx context.Context, pool db.Pool, data Record, scope Scope) (Record, error) {
	var created Record
	err := inTx(ctx, pool, s.dialect, func(tx *sql.Tx) error {
		var err error
		created, err = insertNew(ctx, &s.base, tx, data, scope)
		if err != nil {
			return err
		}
		if created == nil {
			return storeerr.Newf(storeerr.KindQuery, "create", "insert into %s returned no row", s.desc.Table)
		}
		for _, f := range s.desc.Fields {
			v, ok := created[f.Name]
			if !ok {
				continue
			}
			if err := s.logChange(ctx, tx, created, f.Name, nil, v, AuditInsert, scope); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update locks the record, logs each changed field and updates in place.
// A caller-supplied updated_at that differs from the stored one means the
// record changed since the caller read it.
func (s *CopyOnChange) Update(ctx context.Context, pool db.Pool, id uuid.UUID, data Record, scope Scope) (Record, error) {
	conds, err := s.idConds(id, scope)
	if err != nil {
		return nil, err
	}
	if _, err := s.encode(data); err != nil {
		return nil, err
	}

	var updated Record
	err = inTx(ctx, pool, s.dialect, func(tx *sql.Tx) error {
		current, err := s.selectRow(ctx, tx, conds, true)
		if err != nil {
			return err
		}
		if current == nil {
			return storeerr.ErrNotFound
		}
		if err := checkTransition(ctx, current, EventUpdate); err != nil {
			return err
		}
		if seen, ok := data[model.FieldUpdatedAt]; ok && seen != nil && !sameValue(seen, current[model.FieldUpdatedAt]) {
			return &storeerr.Error{
				Kind:        storeerr.KindTemporalStrategy,
				Op:          "update",
				Model:       s.desc.ModelName(),
				RecordID:    id.String(),
				Message:     "record was modified concurrently",
				Resolutions: []string{"reload the record and apply the change again"},
			}
		}

		changed := make(Record)
		for _, k := range s.changedFields(current, data) {
			changed[k] = data[k]
		}
		if len(changed) == 0 {
			updated = current
			return nil
		}
		for _, k := range sortedFields(changed) {
			if err := s.logChange(ctx, tx, current, k, current[k], changed[k], AuditUpdate, scope); err != nil {
				return err
			}
		}

		values, err := s.encode(changed)
		if err != nil {
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

// changedFields lists the data keys whose values differ from current.
// Bookkeeping columns are never diffed.
func (s *CopyOnChange) changedFields(current, data Record) []string {
	var out []string
	for k, v := range data {
		if _, declared := s.desc.Field(k); !declared {
			continue
		}
		if !sameValue(current[k], v) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Delete logs the deletion and then behaves like None.
func (s *CopyOnChange) Delete(ctx context.Context, pool db.Pool, id uuid.UUID, scope Scope) (bool, error) {
	conds, err := s.idConds(id, scope)
	if err != nil {
		return false, err
	}

	deleted := false
	err = inTx(ctx, pool, s.dialect, func(tx *sql.Tx) error {
		current, err := s.selectRow(ctx, tx, conds, true)
		if err != nil || current == nil {
			return err
		}
		if err := checkTransition(ctx, current, EventDelete); err != nil {
			return err
		}

		now := s.now()
		var stmt db.Statement
		if s.desc.SoftDelete() {
			err = s.logChange(ctx, tx, current, model.FieldDeletedAt, nil, now, AuditDelete, scope)
			stmt = s.table.Update(Record{
				model.FieldDeletedAt: now,
				model.FieldDeletedBy: userArg(scope.UserID),
			}, conds...)
		} else {
			err = s.logChange(ctx, tx, current, model.FieldID, id.String(), nil, AuditDelete, scope)
			stmt = s.table.Delete(conds...)
		}
		if err != nil {
			return err
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

// Restore logs the restore and clears the soft-delete marks.
func (s *CopyOnChange) Restore(ctx context.Context, pool db.Pool, id uuid.UUID, scope Scope) (Record, error) {
	if err := s.requireSoftDelete("restore"); err != nil {
		return nil, err
	}
	conds, err := s.idConds(id, scope)
	if err != nil {
		return nil, err
	}

	var restored Record
	err = inTx(ctx, pool, s.dialect, func(tx *sql.Tx) error {
		current, err := s.selectRow(ctx, tx, conds, true)
		if err != nil || current == nil {
			return err
		}
		if err := checkTransition(ctx, current, EventRestore); err != nil {
			return err
		}
		if err := s.logChange(ctx, tx, current, model.FieldDeletedAt, current[model.FieldDeletedAt], nil, AuditRestore, scope); err != nil {
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

// logChange appends one audit row for field of rec.
func (s *CopyOnChange) logChange(ctx context.Context, tx *sql.Tx, rec Record, field string, oldValue, newValue any, op string, scope Scope) error {
	oldJSON, err := encodeJSON(oldValue)
	if err != nil {
		return err
	}
	newJSON, err := encodeJSON(newValue)
	if err != nil {
		return err
	}

	values := map[string]any{
		model.AuditID:        uuid.New(),
		model.AuditRecordID:  rec.ID(),
		model.AuditFieldName: field,
		model.AuditOldValue:  oldJSON,
		model.AuditNewValue:  newJSON,
		model.AuditOperation: op,
		model.AuditChangedBy: userArg(scope.UserID),
		model.AuditChangedAt: s.now(),
	}
	if s.desc.MultiTenant() {
		tenant := s.desc.TenantField()
		values[tenant] = rec[tenant]
	}

	stmt := s.audit.Insert(values)
	_, err = db.Exec(ctx, s.adapter, tx, stmt.SQL, stmt.Args...)
	return err
}

// AuditHistory returns every audit entry of id, oldest first.
func (s *CopyOnChange) AuditHistory(ctx context.Context, q db.Querier, id uuid.UUID, scope Scope) ([]AuditEntry, error) {
	return s.history(ctx, q, id, "", scope)
}

// FieldHistory returns the audit entries of one field of id, oldest first.
func (s *CopyOnChange) FieldHistory(ctx context.Context, q db.Querier, id uuid.UUID, field string, scope Scope) ([]AuditEntry, error) {
	if err := s.checkColumn("field history", field); err != nil {
		return nil, err
	}
	return s.history(ctx, q, id, field, scope)
}

func (s *CopyOnChange) history(ctx context.Context, q db.Querier, id uuid.UUID, field string, scope Scope) ([]AuditEntry, error) {
	conds, err := s.tenantConds(scope)
	if err != nil {
		return nil, err
	}
	conds = append([]db.Condition{db.Eq(model.AuditRecordID, id)}, conds...)
	if field != "" {
		conds = append(conds, db.Eq(model.AuditFieldName, field))
	}

	stmt := s.audit.Select(db.SelectQuery{
		Where:   conds,
		OrderBy: []db.Order{{Column: model.AuditChangedAt}, {Column: model.AuditFieldName}},
	})
	rows, err := db.Query(ctx, s.adapter, q, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}

	entries := make([]AuditEntry, 0, len(rows))
	for _, row := range rows {
		e, err := s.auditEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *CopyOnChange) auditEntry(row db.Row) (AuditEntry, error) {
	var e AuditEntry
	e.AuditID, _ = uuidOf(row[model.AuditID])
	e.RecordID, _ = uuidOf(row[model.AuditRecordID])
	if s.desc.MultiTenant() {
		e.TenantID, _ = uuidOf(row[s.desc.TenantField()])
	}
	e.FieldName = stringOf(row[model.AuditFieldName])
	e.Operation = stringOf(row[model.AuditOperation])
	e.ChangedBy, _ = uuidOf(row[model.AuditChangedBy])
	e.ChangedAt, _ = timeOf(row[model.AuditChangedAt])

	var err error
	if e.OldValue, err = decodeJSON(row[model.AuditOldValue]); err != nil {
		return e, err
	}
	if e.NewValue, err = decodeJSON(row[model.AuditNewValue]); err != nil {
		return e, err
	}
	return e, nil
}

func stringOf(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func sortedFields(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
