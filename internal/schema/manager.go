// Package schema synchronizes live database tables with model descriptors.
//
// A sync run extracts the desired tables from the descriptors, introspects
// the matching live tables, diffs the normalized forms, renders DDL for the
// target dialect, and either reports or applies it.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/internal/diff"
	"github.com/fenixflow/ff-storage-sub000/internal/fingerprint"
	"github.com/fenixflow/ff-storage-sub000/internal/logger"
	"github.com/fenixflow/ff-storage-sub000/internal/plan"
	"github.com/fenixflow/ff-storage-sub000/ir"
	"github.com/fenixflow/ff-storage-sub000/model"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// SyncOptions controls a sync run.
type SyncOptions struct {
	// AllowDestructive permits type changes, NOT NULL backfills and drops.
	AllowDestructive bool
	// DryRun computes the changes without executing any DDL.
	DryRun bool
}

// Manager runs schema syncs against one database.
type Manager struct {
	conn       db.Pool
	dialect    db.Dialect
	normalizer *ir.Normalizer
	generator  diff.Generator
	inspector  ir.Inspector
}

// Option configures a Manager.
type Option func(*Manager)

// WithInspector replaces the catalog introspector.
func WithInspector(i ir.Inspector) Option {
	return func(m *Manager) { m.inspector = i }
}

// NewManager returns a Manager for conn speaking dialect.
func NewManager(conn db.Pool, dialect db.Dialect, opts ...Option) (*Manager, error) {
	g, err := diff.NewGenerator(dialect)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		conn:       conn,
		dialect:    dialect,
		normalizer: ir.NewNormalizer(dialect),
		generator:  g,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.inspector == nil {
		m.inspector, err = ir.NewInspector(dialect, conn)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Dialect returns the dialect the manager generates DDL for.
func (m *Manager) Dialect() db.Dialect {
	return m.dialect
}

// Plan computes the changes that bring the database in line with models.
// Destructive changes are kept as skipped steps unless opts allows them.
func (m *Manager) Plan(ctx context.Context, models []*model.Descriptor, opts SyncOptions) (*plan.Plan, error) {
	desired, err := model.ExtractAll(models, m.dialect)
	if err != nil {
		return nil, err
	}

	refs := tableRefs(desired)
	current, err := m.introspect(ctx, refs)
	if err != nil {
		return nil, err
	}

	changes, err := diff.ComputeSchemaChanges(desired, current, m.normalizer)
	if err != nil {
		return nil, err
	}

	p, err := plan.NewPlan(m.generator, changes, opts.AllowDestructive)
	if err != nil {
		return nil, err
	}
	p.Tables = refs
	p.Fingerprint, err = fingerprint.ComputeFingerprint(current, m.normalizer)
	if err != nil {
		return nil, err
	}

	logger.Get().Debug("Computed schema plan",
		"dialect", m.dialect,
		"tables", len(desired),
		"changes", len(changes),
		"skipped", len(p.Skipped()),
	)
	return p, nil
}

// SyncSchema brings the database in line with models and returns the number
// of changes applied, or that would be applied on a dry run. When the sync
// needs destructive changes that opts does not allow, it fails before any
// DDL runs.
func (m *Manager) SyncSchema(ctx context.Context, models []*model.Descriptor, opts SyncOptions) (int, error) {
	p, err := m.Plan(ctx, models, opts)
	if err != nil {
		return 0, err
	}

	if skipped := p.Skipped(); len(skipped) > 0 {
		return 0, destructiveError(skipped)
	}

	pending := p.Pending()
	if len(pending) == 0 {
		logger.Get().Info("Schema is up to date", "dialect", m.dialect)
		return 0, nil
	}

	if opts.DryRun {
		for _, s := range pending {
			logger.Get().Info("Would apply schema change",
				"change", s.Change.Type,
				"table", s.Change.Table,
				"description", s.Change.Description,
			)
		}
		return len(pending), nil
	}

	return m.Apply(ctx, p)
}

// Apply executes the pending steps of p and returns how many ran. The live
// tables must still match the fingerprint p was computed against. On
// PostgreSQL and SQL Server all steps run in one transaction; on MySQL each
// statement commits on its own.
func (m *Manager) Apply(ctx context.Context, p *plan.Plan) (int, error) {
	if p.Dialect != m.dialect {
		return 0, fmt.Errorf("plan was generated for %s, database is %s", p.Dialect, m.dialect)
	}
	if err := m.checkFingerprint(ctx, p); err != nil {
		return 0, err
	}

	pending := p.Pending()
	if len(pending) == 0 {
		return 0, nil
	}

	if p.EnableTransaction {
		if err := m.applyInTransaction(ctx, pending); err != nil {
			return 0, err
		}
	} else {
		for i, s := range pending {
			if err := m.applyStep(ctx, m.conn, s); err != nil {
				return i, err
			}
		}
	}

	logger.Get().Info("Applied schema changes", "dialect", m.dialect, "changes", len(pending))
	return len(pending), nil
}

func (m *Manager) applyInTransaction(ctx context.Context, steps []plan.Step) error {
	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", db.Classify(err, m.dialect))
	}
	defer tx.Rollback()

	for _, s := range steps {
		if err := m.applyStep(ctx, tx, s); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema changes: %w", db.Classify(err, m.dialect))
	}
	return nil
}

func (m *Manager) applyStep(ctx context.Context, q db.Querier, s plan.Step) error {
	for _, stmt := range s.SQL {
		if _, err := db.ExecContextWithLogging(ctx, q, stmt, s.Change.Description); err != nil {
			return fmt.Errorf("failed to apply %s: %w", s.Change.Path(), db.Classify(err, m.dialect))
		}
	}
	logger.Get().Debug("Applied schema change", "change", s.Change.Type, "table", s.Change.Table)
	return nil
}

func (m *Manager) checkFingerprint(ctx context.Context, p *plan.Plan) error {
	if p.Fingerprint == nil {
		return nil
	}
	current, err := m.introspect(ctx, p.Tables)
	if err != nil {
		return err
	}
	live, err := fingerprint.ComputeFingerprint(current, m.normalizer)
	if err != nil {
		return err
	}
	if err := fingerprint.Compare(p.Fingerprint, live); err != nil {
		return fmt.Errorf("schema changed since the plan was computed, plan again: %w", err)
	}
	return nil
}

// introspect reads the live definition of each ref that exists.
func (m *Manager) introspect(ctx context.Context, refs []plan.TableRef) (map[string]*ir.TableDefinition, error) {
	current := make(map[string]*ir.TableDefinition, len(refs))
	for _, ref := range refs {
		t, ok, err := m.inspector.GetTable(ctx, ref.Name, ref.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to introspect %s.%s: %w", ref.Schema, ref.Name, db.Classify(err, m.dialect))
		}
		if ok {
			current[ref.Name] = t
		}
	}
	return current, nil
}

func tableRefs(tables map[string]*ir.TableDefinition) []plan.TableRef {
	refs := make([]plan.TableRef, 0, len(tables))
	for _, t := range tables {
		refs = append(refs, plan.TableRef{Schema: t.Schema, Name: t.Name})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Schema != refs[j].Schema {
			return refs[i].Schema < refs[j].Schema
		}
		return refs[i].Name < refs[j].Name
	})
	return refs
}

func destructiveError(changes []diff.SchemaChange) error {
	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		lines = append(lines, "    - "+c.Description)
	}
	return storeerr.NewConfigurationError("sync schema",
		fmt.Sprintf("%d destructive change(s) need explicit approval:\n%s", len(changes), strings.Join(lines, "\n")),
		"rerun with destructive changes allowed",
		"revert the model so the change is not needed",
	)
}
