package diff

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/ir"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// widgets is the desired definition as the model extractor spells it.
func widgets() *ir.TableDefinition {
	return &ir.TableDefinition{
		Name:   "widgets",
		Schema: "public",
		Columns: []*ir.ColumnDefinition{
			{Name: "id", ColumnType: ir.ColumnUUID, NativeType: "UUID", IsPrimaryKey: true},
			{Name: "name", ColumnType: ir.ColumnString, NativeType: "VARCHAR(255)", MaxLength: 255},
			{Name: "status", ColumnType: ir.ColumnString, NativeType: "VARCHAR(20)", Default: ir.StringPtr("'draft'")},
			{Name: "active", ColumnType: ir.ColumnBoolean, NativeType: "BOOLEAN", Default: ir.StringPtr("true")},
			{Name: "created_at", ColumnType: ir.ColumnTimestampTZ, NativeType: "TIMESTAMP WITH TIME ZONE",
				Default: ir.StringPtr("NOW()")},
			{Name: "deleted_at", ColumnType: ir.ColumnTimestampTZ, NativeType: "TIMESTAMP WITH TIME ZONE", Nullable: true},
		},
		Indexes: []*ir.IndexDefinition{
			{Name: "idx_widgets_name", TableName: "widgets", Columns: []string{"name"}},
			{Name: "idx_widgets_not_deleted", TableName: "widgets", Columns: []string{"deleted_at"},
				WhereClause: "deleted_at IS NULL"},
		},
	}
}

// widgetsFromCatalog is the same table as the PostgreSQL catalog reports it.
func widgetsFromCatalog() *ir.TableDefinition {
	return &ir.TableDefinition{
		Name:   "widgets",
		Schema: "public",
		Columns: []*ir.ColumnDefinition{
			{Name: "id", NativeType: "uuid", IsPrimaryKey: true},
			{Name: "name", NativeType: "character varying(255)"},
			{Name: "status", NativeType: "character varying(20)", Default: ir.StringPtr("'draft'::character varying")},
			{Name: "active", NativeType: "boolean", Default: ir.StringPtr("true")},
			{Name: "created_at", NativeType: "timestamp with time zone", Default: ir.StringPtr("now()")},
			{Name: "deleted_at", NativeType: "timestamp with time zone", Nullable: true},
		},
		Indexes: []*ir.IndexDefinition{
			{Name: "idx_widgets_name", TableName: "widgets", Columns: []string{"name"}, IndexType: "btree"},
			{Name: "idx_widgets_not_deleted", TableName: "widgets", Columns: []string{"deleted_at"},
				IndexType: "btree", WhereClause: "(deleted_at IS NULL)"},
		},
	}
}

func changeTypes(changes []SchemaChange) []ChangeType {
	types := make([]ChangeType, len(changes))
	for i, c := range changes {
		types[i] = c.Type
	}
	return types
}

func TestComputeChangesNewTable(t *testing.T) {
	n := ir.NewNormalizer(db.Postgres)
	changes, err := ComputeChanges(widgets(), nil, n)
	if err != nil {
		t.Fatalf("ComputeChanges() error = %v", err)
	}
	want := []ChangeType{ChangeAddTable, ChangeAddIndex, ChangeAddIndex}
	if diff := cmp.Diff(want, changeTypes(changes)); diff != "" {
		t.Errorf("change types mismatch (-want +got):\n%s", diff)
	}
	if changes[0].TableDef == nil || len(changes[0].TableDef.Columns) != 6 {
		t.Errorf("ADD_TABLE carries %+v", changes[0].TableDef)
	}
	if HasDestructive(changes) {
		t.Error("creating a table is not destructive")
	}
}

func TestComputeChangesNoDrift(t *testing.T) {
	n := ir.NewNormalizer(db.Postgres)
	changes, err := ComputeChanges(widgets(), widgetsFromCatalog(), n)
	if err != nil {
		t.Fatalf("ComputeChanges() error = %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("ComputeChanges() = %v; want no changes", changes)
	}

	// applying the desired state to itself is a no-op too
	changes, err = ComputeChanges(widgets(), widgets(), n)
	if err != nil || len(changes) != 0 {
		t.Errorf("ComputeChanges(desired, desired) = %v, %v", changes, err)
	}
}

func TestComputeChangesColumns(t *testing.T) {
	tests := []struct {
		name            string
		mutate          func(want, have *ir.TableDefinition)
		wantTypes       []ChangeType
		wantDestructive bool
	}{
		{
			name: "added column",
			mutate: func(want, _ *ir.TableDefinition) {
				want.Columns = append(want.Columns, &ir.ColumnDefinition{
					Name: "price", NativeType: "NUMERIC(10,2)", Nullable: true})
			},
			wantTypes: []ChangeType{ChangeAddColumn},
		},
		{
			name: "dropped column",
			mutate: func(_, have *ir.TableDefinition) {
				have.Columns = append(have.Columns, &ir.ColumnDefinition{Name: "legacy", NativeType: "text", Nullable: true})
			},
			wantTypes:       []ChangeType{ChangeDropColumn},
			wantDestructive: true,
		},
		{
			name: "type change",
			mutate: func(want, _ *ir.TableDefinition) {
				want.Columns[1].NativeType = "VARCHAR(500)"
			},
			wantTypes:       []ChangeType{ChangeAlterColumnType},
			wantDestructive: true,
		},
		{
			name: "default change",
			mutate: func(want, _ *ir.TableDefinition) {
				want.Columns[2].Default = ir.StringPtr("'active'")
			},
			wantTypes: []ChangeType{ChangeAlterColumnDefault},
		},
		{
			name: "default dropped",
			mutate: func(want, _ *ir.TableDefinition) {
				want.Columns[2].Default = nil
			},
			wantTypes: []ChangeType{ChangeAlterColumnDefault},
		},
		{
			name: "relaxed to nullable",
			mutate: func(want, _ *ir.TableDefinition) {
				want.Columns[1].Nullable = true
			},
			wantTypes: []ChangeType{ChangeAlterColumnNullable},
		},
		{
			name: "tightened to not null with default",
			mutate: func(_, have *ir.TableDefinition) {
				have.Columns[2].Nullable = true
			},
			wantTypes:       []ChangeType{ChangeAlterColumnNullable},
			wantDestructive: true,
		},
		{
			name: "type and default together",
			mutate: func(want, _ *ir.TableDefinition) {
				want.Columns[2].NativeType = "VARCHAR(40)"
				want.Columns[2].Default = ir.StringPtr("'new'")
			},
			wantTypes:       []ChangeType{ChangeAlterColumnType, ChangeAlterColumnDefault},
			wantDestructive: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, have := widgets(), widgetsFromCatalog()
			tt.mutate(want, have)
			changes, err := ComputeChanges(want, have, ir.NewNormalizer(db.Postgres))
			if err != nil {
				t.Fatalf("ComputeChanges() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantTypes, changeTypes(changes)); diff != "" {
				t.Errorf("change types mismatch (-want +got):\n%s", diff)
			}
			if got := HasDestructive(changes); got != tt.wantDestructive {
				t.Errorf("HasDestructive() = %v; want %v", got, tt.wantDestructive)
			}
		})
	}
}

func TestComputeChangesNotNullWithoutDefault(t *testing.T) {
	want, have := widgets(), widgetsFromCatalog()
	have.Columns[1].Nullable = true // name is NOT NULL in the model and has no default

	_, err := ComputeChanges(want, have, ir.NewNormalizer(db.Postgres))
	if !errors.Is(err, storeerr.ErrConfiguration) {
		t.Fatalf("ComputeChanges() error = %v; want ConfigurationError", err)
	}
	var se *storeerr.Error
	if !errors.As(err, &se) || len(se.Resolutions) != 3 {
		t.Errorf("error should offer three resolutions: %+v", se)
	}
}

func TestComputeChangesIndexes(t *testing.T) {
	want, have := widgets(), widgetsFromCatalog()
	want.Indexes[0].Columns = []string{"name", "status"}
	have.Indexes = append(have.Indexes, &ir.IndexDefinition{
		Name: "idx_widgets_manual", TableName: "widgets", Columns: []string{"status"}})

	changes, err := ComputeChanges(want, have, ir.NewNormalizer(db.Postgres))
	if err != nil {
		t.Fatalf("ComputeChanges() error = %v", err)
	}

	var got []string
	for _, c := range changes {
		got = append(got, string(c.Type)+" "+c.Index.Name)
	}
	wantOrder := []string{
		"DROP_INDEX idx_widgets_manual",
		"DROP_INDEX idx_widgets_name",
		"ADD_INDEX idx_widgets_name",
	}
	if diff := cmp.Diff(wantOrder, got); diff != "" {
		t.Errorf("index changes mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeChangesPredicateSpelling(t *testing.T) {
	want, have := widgets(), widgetsFromCatalog()
	want.Indexes[1].WhereClause = "deleted_at is null"
	have.Indexes[1].WhereClause = "((deleted_at IS NULL))"
	changes, err := ComputeChanges(want, have, ir.NewNormalizer(db.Postgres))
	if err != nil || len(changes) != 0 {
		t.Errorf("equivalent predicates produced %v, %v", changes, err)
	}
}

func TestComputeChangesMySQLIgnoresPredicates(t *testing.T) {
	want := widgets()
	want.Schema = ""
	want.Columns[0].NativeType = "CHAR(36)"
	have, err := want.Clone()
	if err != nil {
		t.Fatal(err)
	}
	for _, idx := range have.Indexes {
		idx.WhereClause = ""
	}

	changes, err := ComputeChanges(want, have, ir.NewNormalizer(db.MySQL))
	if err != nil {
		t.Fatalf("ComputeChanges() error = %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("MySQL compared index predicates: %v", changes)
	}
}

func TestComputeSchemaChanges(t *testing.T) {
	gadgets := &ir.TableDefinition{
		Name: "gadgets", Schema: "public",
		Columns: []*ir.ColumnDefinition{{Name: "id", NativeType: "UUID", IsPrimaryKey: true}},
	}
	old := &ir.TableDefinition{
		Name: "old_things", Schema: "public",
		Columns: []*ir.ColumnDefinition{{Name: "id", NativeType: "uuid", IsPrimaryKey: true}},
	}
	current := widgetsFromCatalog()
	current.Columns = append(current.Columns, &ir.ColumnDefinition{Name: "legacy", NativeType: "text", Nullable: true})
	current.Indexes = current.Indexes[:1]

	changes, err := ComputeSchemaChanges(
		map[string]*ir.TableDefinition{"widgets": widgets(), "gadgets": gadgets},
		map[string]*ir.TableDefinition{"widgets": current, "old_things": old},
		ir.NewNormalizer(db.Postgres),
	)
	if err != nil {
		t.Fatalf("ComputeSchemaChanges() error = %v", err)
	}

	var got []string
	for _, c := range changes {
		got = append(got, string(c.Type)+" "+c.Path())
	}
	want := []string{
		"ADD_TABLE public.gadgets",
		"ADD_INDEX public.widgets.idx_widgets_not_deleted",
		"DROP_COLUMN public.widgets.legacy",
		"DROP_TABLE public.old_things",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}

	apply, skipped := Filter(changes, false)
	if len(apply) != 2 || len(skipped) != 2 {
		t.Errorf("Filter() = %d to apply, %d skipped; want 2 and 2", len(apply), len(skipped))
	}
}

func TestComputeChangesAddColumnOrder(t *testing.T) {
	want, have := widgets(), widgetsFromCatalog()
	have.Columns = have.Columns[:2]

	changes, err := ComputeChanges(want, have, ir.NewNormalizer(db.Postgres))
	if err != nil {
		t.Fatalf("ComputeChanges() error = %v", err)
	}
	var cols []string
	for _, c := range changes {
		if c.Type == ChangeAddColumn {
			cols = append(cols, c.Column.Name)
		}
	}
	if diff := cmp.Diff([]string{"status", "active", "created_at", "deleted_at"}, cols); diff != "" {
		t.Errorf("added columns out of table order (-want +got):\n%s", diff)
	}
}
