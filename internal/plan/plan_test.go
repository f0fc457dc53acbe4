package plan

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/internal/diff"
	"github.com/fenixflow/ff-storage-sub000/internal/fingerprint"
	"github.com/fenixflow/ff-storage-sub000/ir"
)

func users() *ir.TableDefinition {
	return &ir.TableDefinition{
		Name:   "users",
		Schema: "public",
		Columns: []*ir.ColumnDefinition{
			{Name: "id", NativeType: "UUID", IsPrimaryKey: true},
			{Name: "email", NativeType: "VARCHAR(255)"},
		},
		Indexes: []*ir.IndexDefinition{
			{Name: "idx_users_email", TableName: "users", Columns: []string{"email"}, Unique: true},
		},
	}
}

func buildPlan(t *testing.T, desired, current map[string]*ir.TableDefinition, allowDestructive bool) *Plan {
	t.Helper()
	n := ir.NewNormalizer(db.Postgres)
	changes, err := diff.ComputeSchemaChanges(desired, current, n)
	if err != nil {
		t.Fatalf("ComputeSchemaChanges() error = %v", err)
	}
	g, err := diff.NewGenerator(db.Postgres)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPlan(g, changes, allowDestructive)
	if err != nil {
		t.Fatalf("NewPlan() error = %v", err)
	}
	return p
}

func TestNewPlan(t *testing.T) {
	current := users()
	current.Columns = append(current.Columns, &ir.ColumnDefinition{Name: "legacy", NativeType: "text", Nullable: true})
	desired := users()
	desired.Columns = append(desired.Columns, &ir.ColumnDefinition{Name: "name", NativeType: "TEXT", Nullable: true})

	p := buildPlan(t,
		map[string]*ir.TableDefinition{"users": desired},
		map[string]*ir.TableDefinition{"users": current}, false)

	if p.CreatedAt.IsZero() {
		t.Error("Plan should have a creation timestamp")
	}
	if !p.EnableTransaction {
		t.Error("PostgreSQL plans run in a transaction")
	}
	if len(p.Steps) != 2 {
		t.Fatalf("got %d steps; want 2", len(p.Steps))
	}

	skipped := p.Skipped()
	if len(skipped) != 1 || skipped[0].Type != diff.ChangeDropColumn {
		t.Errorf("Skipped() = %v; want the DROP_COLUMN", skipped)
	}
	want := []string{`ALTER TABLE "public"."users" ADD COLUMN IF NOT EXISTS "name" TEXT`}
	if d := cmp.Diff(want, p.Statements()); d != "" {
		t.Errorf("Statements() mismatch (-want +got):\n%s", d)
	}

	allowed := buildPlan(t,
		map[string]*ir.TableDefinition{"users": desired},
		map[string]*ir.TableDefinition{"users": current}, true)
	if len(allowed.Statements()) != 2 || len(allowed.Skipped()) != 0 {
		t.Errorf("allowing destructive changes: statements %v, skipped %v", allowed.Statements(), allowed.Skipped())
	}
}

func TestPlanSummary(t *testing.T) {
	current := users()
	current.Columns[1].NativeType = "VARCHAR(100)"
	posts := &ir.TableDefinition{
		Name: "posts", Schema: "public",
		Columns: []*ir.ColumnDefinition{{Name: "id", NativeType: "UUID", IsPrimaryKey: true}},
	}
	p := buildPlan(t,
		map[string]*ir.TableDefinition{"users": users(), "posts": posts},
		map[string]*ir.TableDefinition{"users": current}, true)

	got := p.Summary()
	want := PlanSummary{
		Add: 1, Change: 1, Total: 2,
		ByType: map[string]TypeSummary{
			"tables":  {Add: 1},
			"columns": {Change: 1},
		},
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("Summary() mismatch (-want +got):\n%s", d)
	}

	human := p.HumanColored(false)
	for _, s := range []string{
		"Plan: 1 to add, 1 to modify, 0 to drop.",
		"tables: 1 to add, 0 to modify, 0 to drop",
		"+ create table public.posts",
		"~ change type of public.users.email from VARCHAR(100) to VARCHAR(255)",
		"Transaction: true",
		`CREATE TABLE IF NOT EXISTS "public"."posts"`,
	} {
		if !strings.Contains(human, s) {
			t.Errorf("HumanColored() missing %q:\n%s", s, human)
		}
	}
}

func TestPlanNoChanges(t *testing.T) {
	p := buildPlan(t,
		map[string]*ir.TableDefinition{"users": users()},
		map[string]*ir.TableDefinition{"users": users()}, false)
	if p.HasChanges() {
		t.Errorf("HasChanges() = true; steps %v", p.Steps)
	}
	if got := p.HumanColored(false); got != "No changes detected.\n" {
		t.Errorf("HumanColored() = %q", got)
	}
	if got := p.ToSQL(); got != "" {
		t.Errorf("ToSQL() = %q", got)
	}
}

func TestPlanToJSON(t *testing.T) {
	p := buildPlan(t, map[string]*ir.TableDefinition{"users": users()}, nil, false)
	p.Fingerprint = &fingerprint.SchemaFingerprint{Hash: "abc123"}

	out, err := p.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	var decoded PlanJSON
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("plan JSON does not decode: %v", err)
	}
	if decoded.Dialect != "postgres" || decoded.Fingerprint != "abc123" || !decoded.Transaction {
		t.Errorf("plan header = %+v", decoded)
	}
	var addresses []string
	for _, c := range decoded.ObjectChanges {
		addresses = append(addresses, c.Type+" "+c.Address+" "+c.Change.Actions[0])
	}
	want := []string{
		"tables public.users create",
		"indexes public.users.idx_users_email create",
	}
	if d := cmp.Diff(want, addresses); d != "" {
		t.Errorf("object changes mismatch (-want +got):\n%s", d)
	}
	if decoded.ObjectChanges[1].Change.After["is_unique"] != true {
		t.Errorf("index after = %v", decoded.ObjectChanges[1].Change.After)
	}
}

func TestToSQL(t *testing.T) {
	p := buildPlan(t, map[string]*ir.TableDefinition{"users": users()}, nil, false)
	sql := p.ToSQL()
	if strings.Count(sql, ";\n") != 2 {
		t.Errorf("ToSQL() should terminate both statements:\n%s", sql)
	}
	if !strings.HasSuffix(sql, `CREATE UNIQUE INDEX IF NOT EXISTS "idx_users_email" ON "public"."users" ("email");`+"\n\n") {
		t.Errorf("ToSQL() = %s", sql)
	}
}

func TestNewPlanMySQLIsNotTransactional(t *testing.T) {
	g, err := diff.NewGenerator(db.MySQL)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPlan(g, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if p.EnableTransaction {
		t.Error("MySQL DDL commits implicitly; plan must not claim a transaction")
	}
}
