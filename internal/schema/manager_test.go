package schema

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/internal/fingerprint"
	"github.com/fenixflow/ff-storage-sub000/ir"
	"github.com/fenixflow/ff-storage-sub000/model"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// fakeInspector serves fixed table definitions.
type fakeInspector struct {
	tables map[string]*ir.TableDefinition
}

func (f *fakeInspector) GetTables(ctx context.Context, schema string) (map[string]*ir.TableDefinition, error) {
	return f.tables, nil
}

func (f *fakeInspector) GetTable(ctx context.Context, table, schema string) (*ir.TableDefinition, bool, error) {
	t, ok := f.tables[table]
	if !ok {
		return nil, false, nil
	}
	c, err := t.Clone()
	return c, true, err
}

func (f *fakeInspector) GetColumns(ctx context.Context, table, schema string) ([]*ir.ColumnDefinition, error) {
	if t, ok := f.tables[table]; ok {
		return t.Columns, nil
	}
	return nil, nil
}

func (f *fakeInspector) GetIndexes(ctx context.Context, table, schema string) ([]*ir.IndexDefinition, error) {
	if t, ok := f.tables[table]; ok {
		return t.Indexes, nil
	}
	return nil, nil
}

func (f *fakeInspector) TableExists(ctx context.Context, table, schema string) (bool, error) {
	_, ok := f.tables[table]
	return ok, nil
}

func widgetModel() *model.Descriptor {
	return &model.Descriptor{
		Table: "widgets",
		Fields: []model.Field{
			{Name: "name", Type: model.TypeString, MaxLength: 120},
			{Name: "price", Type: model.TypeDecimal, Precision: 10, Scale: 2, Optional: true},
		},
		Temporal: model.Temporal{
			SoftDelete:  model.Bool(false),
			MultiTenant: model.Bool(false),
		},
	}
}

func liveWidgets(t *testing.T, d db.Dialect) *ir.TableDefinition {
	t.Helper()
	table, err := model.ExtractTableDefinition(widgetModel(), d)
	if err != nil {
		t.Fatalf("ExtractTableDefinition() error = %v", err)
	}
	return table
}

func newManager(t *testing.T, d db.Dialect, tables map[string]*ir.TableDefinition) (*Manager, sqlmock.Sqlmock, *fakeInspector) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	insp := &fakeInspector{tables: tables}
	m, err := NewManager(conn, d, WithInspector(insp))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m, mock, insp
}

func TestSyncSchemaCreatesMissingTable(t *testing.T) {
	m, mock, _ := newManager(t, db.Postgres, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "public"."widgets"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := m.SyncSchema(context.Background(), []*model.Descriptor{widgetModel()}, SyncOptions{})
	if err != nil {
		t.Fatalf("SyncSchema() error = %v", err)
	}
	if n != 1 {
		t.Errorf("SyncSchema() = %d; want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSyncSchemaIsIdempotent(t *testing.T) {
	m, mock, _ := newManager(t, db.Postgres, map[string]*ir.TableDefinition{
		"widgets": liveWidgets(t, db.Postgres),
	})

	n, err := m.SyncSchema(context.Background(), []*model.Descriptor{widgetModel()}, SyncOptions{})
	if err != nil {
		t.Fatalf("SyncSchema() error = %v", err)
	}
	if n != 0 {
		t.Errorf("SyncSchema() on an up-to-date table = %d; want 0", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSyncSchemaDryRun(t *testing.T) {
	m, mock, _ := newManager(t, db.Postgres, nil)

	n, err := m.SyncSchema(context.Background(), []*model.Descriptor{widgetModel()}, SyncOptions{DryRun: true})
	if err != nil {
		t.Fatalf("SyncSchema() error = %v", err)
	}
	if n != 1 {
		t.Errorf("SyncSchema() = %d; want 1", n)
	}
	// no expectations: any statement fails the test
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSyncSchemaDestructive(t *testing.T) {
	live := liveWidgets(t, db.Postgres)
	live.Columns = append(live.Columns, &ir.ColumnDefinition{Name: "legacy", NativeType: "text", Nullable: true})

	t.Run("refused without opt-in", func(t *testing.T) {
		m, mock, _ := newManager(t, db.Postgres, map[string]*ir.TableDefinition{"widgets": live})

		_, err := m.SyncSchema(context.Background(), []*model.Descriptor{widgetModel()}, SyncOptions{})
		if !errors.Is(err, storeerr.ErrConfiguration) {
			t.Fatalf("SyncSchema() error = %v; want a ConfigurationError", err)
		}
		if !strings.Contains(err.Error(), "drop column public.widgets.legacy") {
			t.Errorf("error should list the destructive change: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("dry run still refuses", func(t *testing.T) {
		m, _, _ := newManager(t, db.Postgres, map[string]*ir.TableDefinition{"widgets": live})

		_, err := m.SyncSchema(context.Background(), []*model.Descriptor{widgetModel()}, SyncOptions{DryRun: true})
		if !errors.Is(err, storeerr.ErrConfiguration) {
			t.Fatalf("SyncSchema() error = %v; want a ConfigurationError", err)
		}
	})

	t.Run("applied with opt-in", func(t *testing.T) {
		m, mock, _ := newManager(t, db.Postgres, map[string]*ir.TableDefinition{"widgets": live})

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE "public"."widgets" DROP COLUMN IF EXISTS "legacy"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		n, err := m.SyncSchema(context.Background(), []*model.Descriptor{widgetModel()}, SyncOptions{AllowDestructive: true})
		if err != nil {
			t.Fatalf("SyncSchema() error = %v", err)
		}
		if n != 1 {
			t.Errorf("SyncSchema() = %d; want 1", n)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
}

func TestSyncSchemaRollsBackOnFailure(t *testing.T) {
	live := liveWidgets(t, db.Postgres)
	live.Columns = live.Columns[:len(live.Columns)-1] // updated_by missing
	live.Columns = append(live.Columns[:2], live.Columns[3:]...)

	m, mock, _ := newManager(t, db.Postgres, map[string]*ir.TableDefinition{"widgets": live})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`ADD COLUMN IF NOT EXISTS "price"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`ADD COLUMN IF NOT EXISTS "updated_by"`)).
		WillReturnError(errors.New("permission denied for table widgets"))
	mock.ExpectRollback()

	_, err := m.SyncSchema(context.Background(), []*model.Descriptor{widgetModel()}, SyncOptions{})
	if err == nil {
		t.Fatal("SyncSchema() should fail when a statement fails")
	}
	if !strings.Contains(err.Error(), "public.widgets.updated_by") {
		t.Errorf("error should name the failing change: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSyncSchemaMySQLRunsWithoutTransaction(t *testing.T) {
	live := liveWidgets(t, db.MySQL)
	live.Columns = append(live.Columns[:2], live.Columns[3:]...) // price missing

	m, mock, _ := newManager(t, db.MySQL, map[string]*ir.TableDefinition{"widgets": live})

	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE `widgets` ADD COLUMN `price` DECIMAL(10,2)")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := m.SyncSchema(context.Background(), []*model.Descriptor{widgetModel()}, SyncOptions{})
	if err != nil {
		t.Fatalf("SyncSchema() error = %v", err)
	}
	if n != 1 {
		t.Errorf("SyncSchema() = %d; want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyChecksFingerprint(t *testing.T) {
	m, mock, insp := newManager(t, db.Postgres, nil)

	p, err := m.Plan(context.Background(), []*model.Descriptor{widgetModel()}, SyncOptions{})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if p.Fingerprint == nil || len(p.Tables) != 1 {
		t.Fatalf("plan should carry a fingerprint of its tables: %+v", p)
	}

	// someone else creates the table between plan and apply
	insp.tables = map[string]*ir.TableDefinition{"widgets": liveWidgets(t, db.Postgres)}

	_, err = m.Apply(context.Background(), p)
	if !errors.Is(err, fingerprint.ErrMismatch) {
		t.Fatalf("Apply() error = %v; want a fingerprint mismatch", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyRejectsOtherDialect(t *testing.T) {
	pg, _, _ := newManager(t, db.Postgres, nil)
	p, err := pg.Plan(context.Background(), []*model.Descriptor{widgetModel()}, SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}

	my, _, _ := newManager(t, db.MySQL, nil)
	if _, err := my.Apply(context.Background(), p); err == nil {
		t.Error("Apply() of a PostgreSQL plan on MySQL should fail")
	}
}

func TestPlanIncludesAuditTable(t *testing.T) {
	desc := widgetModel()
	desc.Temporal.Strategy = model.StrategyCopyOnChange

	m, _, _ := newManager(t, db.Postgres, nil)
	p, err := m.Plan(context.Background(), []*model.Descriptor{desc}, SyncOptions{})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	var created []string
	for _, s := range p.Steps {
		if s.Change.TableDef != nil {
			created = append(created, s.Change.Table)
		}
	}
	if len(created) != 2 || created[0] != "widgets" || created[1] != "widgets_audit" {
		t.Errorf("created tables = %v; want [widgets widgets_audit]", created)
	}
}
