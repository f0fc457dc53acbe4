package diff

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/ir"
)

func mustGenerator(t *testing.T, d db.Dialect) Generator {
	t.Helper()
	g, err := NewGenerator(d)
	if err != nil {
		t.Fatalf("NewGenerator(%s) error = %v", d, err)
	}
	return g
}

func parts(schema, idType string) *ir.TableDefinition {
	return &ir.TableDefinition{
		Name:   "parts",
		Schema: schema,
		Columns: []*ir.ColumnDefinition{
			{Name: "id", NativeType: idType, IsPrimaryKey: true},
			{Name: "widget_id", NativeType: idType, Nullable: true, References: "widgets(id)"},
			{Name: "label", NativeType: "VARCHAR(40)", Default: ir.StringPtr("'none'")},
		},
		Indexes: []*ir.IndexDefinition{
			{Name: "idx_parts_widget", TableName: "parts", Columns: []string{"widget_id", "label"}, Unique: true},
		},
	}
}

func TestGeneratePostgres(t *testing.T) {
	status := &ir.ColumnDefinition{Name: "status", NativeType: "VARCHAR(20)", Default: ir.StringPtr("'draft'")}
	name := &ir.ColumnDefinition{Name: "name", NativeType: "VARCHAR(500)"}
	tests := []struct {
		name   string
		change SchemaChange
		want   []string
	}{
		{
			name: "add nullable column",
			change: SchemaChange{Type: ChangeAddColumn, Schema: "public", Table: "widgets",
				Column: &ir.ColumnDefinition{Name: "price", NativeType: "NUMERIC(10,2)", Nullable: true}},
			want: []string{`ALTER TABLE "public"."widgets" ADD COLUMN IF NOT EXISTS "price" NUMERIC(10,2)`},
		},
		{
			name: "add not null column without default",
			change: SchemaChange{Type: ChangeAddColumn, Schema: "public", Table: "widgets",
				Column: &ir.ColumnDefinition{Name: "sku", NativeType: "TEXT"}},
			want: []string{
				`ALTER TABLE "public"."widgets" ADD COLUMN IF NOT EXISTS "sku" TEXT`,
				`ALTER TABLE "public"."widgets" ALTER COLUMN "sku" SET NOT NULL`,
			},
		},
		{
			name: "add column with foreign key",
			change: SchemaChange{Type: ChangeAddColumn, Schema: "app", Table: "parts",
				Column: &ir.ColumnDefinition{Name: "owner_id", NativeType: "UUID", Nullable: true, References: "auth.users(id)"}},
			want: []string{
				`ALTER TABLE "app"."parts" ADD COLUMN IF NOT EXISTS "owner_id" UUID`,
				`ALTER TABLE "app"."parts" ADD CONSTRAINT "fk_parts_owner_id" FOREIGN KEY ("owner_id") REFERENCES "auth"."users" ("id")`,
			},
		},
		{
			name:   "alter type",
			change: SchemaChange{Type: ChangeAlterColumnType, Schema: "public", Table: "widgets", Column: name, OldColumn: name},
			want:   []string{`ALTER TABLE "public"."widgets" ALTER COLUMN "name" TYPE VARCHAR(500) USING "name"::VARCHAR(500)`},
		},
		{
			name:   "set not null backfills first",
			change: SchemaChange{Type: ChangeAlterColumnNullable, Schema: "public", Table: "widgets", Column: status},
			want: []string{
				`UPDATE "public"."widgets" SET "status" = 'draft' WHERE "status" IS NULL`,
				`ALTER TABLE "public"."widgets" ALTER COLUMN "status" SET NOT NULL`,
			},
		},
		{
			name: "drop not null",
			change: SchemaChange{Type: ChangeAlterColumnNullable, Schema: "public", Table: "widgets",
				Column: &ir.ColumnDefinition{Name: "name", NativeType: "VARCHAR(255)", Nullable: true}},
			want: []string{`ALTER TABLE "public"."widgets" ALTER COLUMN "name" DROP NOT NULL`},
		},
		{
			name:   "set default",
			change: SchemaChange{Type: ChangeAlterColumnDefault, Schema: "public", Table: "widgets", Column: status},
			want:   []string{`ALTER TABLE "public"."widgets" ALTER COLUMN "status" SET DEFAULT 'draft'`},
		},
		{
			name: "drop default",
			change: SchemaChange{Type: ChangeAlterColumnDefault, Schema: "public", Table: "widgets",
				Column: &ir.ColumnDefinition{Name: "status", NativeType: "VARCHAR(20)"}},
			want: []string{`ALTER TABLE "public"."widgets" ALTER COLUMN "status" DROP DEFAULT`},
		},
		{
			name:   "drop column",
			change: SchemaChange{Type: ChangeDropColumn, Schema: "public", Table: "widgets", OldColumn: status},
			want:   []string{`ALTER TABLE "public"."widgets" DROP COLUMN IF EXISTS "status"`},
		},
		{
			name: "partial index",
			change: SchemaChange{Type: ChangeAddIndex, Schema: "public", Table: "widgets",
				Index: &ir.IndexDefinition{Name: "idx_widgets_not_deleted", Columns: []string{"deleted_at"},
					WhereClause: "deleted_at IS NULL"}},
			want: []string{`CREATE INDEX IF NOT EXISTS "idx_widgets_not_deleted" ON "public"."widgets" ("deleted_at") WHERE deleted_at IS NULL`},
		},
		{
			name: "gin index",
			change: SchemaChange{Type: ChangeAddIndex, Schema: "public", Table: "widgets",
				Index: &ir.IndexDefinition{Name: "idx_widgets_tags", Columns: []string{"tags"}, IndexType: "gin"}},
			want: []string{`CREATE INDEX IF NOT EXISTS "idx_widgets_tags" ON "public"."widgets" USING gin ("tags")`},
		},
		{
			name: "drop index",
			change: SchemaChange{Type: ChangeDropIndex, Schema: "public", Table: "widgets",
				Index: &ir.IndexDefinition{Name: "idx_widgets_name"}},
			want: []string{`DROP INDEX IF EXISTS "public"."idx_widgets_name"`},
		},
		{
			name:   "drop table",
			change: SchemaChange{Type: ChangeDropTable, Schema: "public", Table: "widgets"},
			want:   []string{`DROP TABLE IF EXISTS "public"."widgets"`},
		},
		{
			name: "reserved word identifiers",
			change: SchemaChange{Type: ChangeAddColumn, Schema: "public", Table: "order",
				Column: &ir.ColumnDefinition{Name: "select", NativeType: "INTEGER", Nullable: true}},
			want: []string{`ALTER TABLE "public"."order" ADD COLUMN IF NOT EXISTS "select" INTEGER`},
		},
	}
	g := mustGenerator(t, db.Postgres)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Generate(tt.change)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Generate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCreateTable(t *testing.T) {
	tests := []struct {
		dialect db.Dialect
		table   *ir.TableDefinition
		want    []string
	}{
		{
			dialect: db.Postgres,
			table:   parts("public", "UUID"),
			want: []string{
				`CREATE TABLE IF NOT EXISTS "public"."parts" (
    "id" UUID NOT NULL,
    "widget_id" UUID,
    "label" VARCHAR(40) NOT NULL DEFAULT 'none',
    PRIMARY KEY ("id"),
    CONSTRAINT "fk_parts_widget_id" FOREIGN KEY ("widget_id") REFERENCES "public"."widgets" ("id")
)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS "idx_parts_widget" ON "public"."parts" ("widget_id", "label")`,
			},
		},
		{
			dialect: db.MySQL,
			table:   parts("", "CHAR(36)"),
			want: []string{
				"CREATE TABLE IF NOT EXISTS `parts` (\n" +
					"    `id` CHAR(36) NOT NULL,\n" +
					"    `widget_id` CHAR(36),\n" +
					"    `label` VARCHAR(40) NOT NULL DEFAULT 'none',\n" +
					"    PRIMARY KEY (`id`),\n" +
					"    CONSTRAINT `fk_parts_widget_id` FOREIGN KEY (`widget_id`) REFERENCES `widgets` (`id`)\n" +
					")",
				"CREATE UNIQUE INDEX `idx_parts_widget` ON `parts` (`widget_id`, `label`)",
			},
		},
		{
			dialect: db.SQLServer,
			table:   parts("dbo", "UNIQUEIDENTIFIER"),
			want: []string{
				"IF OBJECT_ID(N'[dbo].[parts]', N'U') IS NULL CREATE TABLE [dbo].[parts] (\n" +
					"    [id] UNIQUEIDENTIFIER NOT NULL,\n" +
					"    [widget_id] UNIQUEIDENTIFIER NULL,\n" +
					"    [label] VARCHAR(40) NOT NULL CONSTRAINT [df_parts_label] DEFAULT 'none',\n" +
					"    PRIMARY KEY ([id]),\n" +
					"    CONSTRAINT [fk_parts_widget_id] FOREIGN KEY ([widget_id]) REFERENCES [dbo].[widgets] ([id])\n" +
					")",
				"IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_parts_widget' AND object_id = OBJECT_ID(N'[dbo].[parts]')) " +
					"CREATE UNIQUE NONCLUSTERED INDEX [idx_parts_widget] ON [dbo].[parts] ([widget_id], [label])",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.dialect.String(), func(t *testing.T) {
			got, err := mustGenerator(t, tt.dialect).CreateTable(tt.table)
			if err != nil {
				t.Fatalf("CreateTable() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("CreateTable() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerateMySQL(t *testing.T) {
	name := &ir.ColumnDefinition{Name: "name", NativeType: "VARCHAR(500)"}
	tests := []struct {
		name   string
		change SchemaChange
		want   []string
	}{
		{
			name: "add column has no IF NOT EXISTS",
			change: SchemaChange{Type: ChangeAddColumn, Table: "widgets",
				Column: &ir.ColumnDefinition{Name: "active", NativeType: "BOOLEAN", Default: ir.StringPtr("TRUE")}},
			want: []string{"ALTER TABLE `widgets` ADD COLUMN `active` BOOLEAN NOT NULL DEFAULT TRUE"},
		},
		{
			name: "alter type keeps old nullability",
			change: SchemaChange{Type: ChangeAlterColumnType, Table: "widgets", Column: name,
				OldColumn: &ir.ColumnDefinition{Name: "name", NativeType: "VARCHAR(255)", Nullable: true}},
			want: []string{"ALTER TABLE `widgets` MODIFY COLUMN `name` VARCHAR(500) NULL"},
		},
		{
			name: "set not null",
			change: SchemaChange{Type: ChangeAlterColumnNullable, Table: "widgets",
				Column: &ir.ColumnDefinition{Name: "status", NativeType: "VARCHAR(20)", Default: ir.StringPtr("'draft'")}},
			want: []string{
				"UPDATE `widgets` SET `status` = 'draft' WHERE `status` IS NULL",
				"ALTER TABLE `widgets` MODIFY COLUMN `status` VARCHAR(20) NOT NULL DEFAULT 'draft'",
			},
		},
		{
			name: "function default in parentheses",
			change: SchemaChange{Type: ChangeAlterColumnDefault, Table: "widgets",
				Column: &ir.ColumnDefinition{Name: "token", NativeType: "CHAR(36)", Default: ir.StringPtr("UUID()")}},
			want: []string{"ALTER TABLE `widgets` ALTER COLUMN `token` SET DEFAULT (UUID())"},
		},
		{
			name: "drop index",
			change: SchemaChange{Type: ChangeDropIndex, Table: "widgets",
				Index: &ir.IndexDefinition{Name: "idx_widgets_name"}},
			want: []string{"DROP INDEX `idx_widgets_name` ON `widgets`"},
		},
		{
			name: "index predicate is never written",
			change: SchemaChange{Type: ChangeAddIndex, Table: "widgets",
				Index: &ir.IndexDefinition{Name: "idx_w", Columns: []string{"a"}, WhereClause: "a IS NULL"}},
			want: []string{"CREATE INDEX `idx_w` ON `widgets` (`a`)"},
		},
	}
	g := mustGenerator(t, db.MySQL)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Generate(tt.change)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Generate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerateSQLServer(t *testing.T) {
	tests := []struct {
		name   string
		change SchemaChange
		want   []string
	}{
		{
			name: "add column with boolean default",
			change: SchemaChange{Type: ChangeAddColumn, Schema: "dbo", Table: "widgets",
				Column: &ir.ColumnDefinition{Name: "active", NativeType: "BIT", Default: ir.StringPtr("TRUE")}},
			want: []string{"IF COL_LENGTH(N'[dbo].[widgets]', N'active') IS NULL " +
				"ALTER TABLE [dbo].[widgets] ADD [active] BIT NOT NULL CONSTRAINT [df_widgets_active] DEFAULT 1"},
		},
		{
			name: "drop not null",
			change: SchemaChange{Type: ChangeAlterColumnNullable, Schema: "dbo", Table: "widgets",
				Column: &ir.ColumnDefinition{Name: "name", NativeType: "NVARCHAR(255)", Nullable: true}},
			want: []string{"ALTER TABLE [dbo].[widgets] ALTER COLUMN [name] NVARCHAR(255) NULL"},
		},
		{
			name: "drop index",
			change: SchemaChange{Type: ChangeDropIndex, Schema: "dbo", Table: "widgets",
				Index: &ir.IndexDefinition{Name: "idx_widgets_name"}},
			want: []string{"DROP INDEX IF EXISTS [idx_widgets_name] ON [dbo].[widgets]"},
		},
	}
	g := mustGenerator(t, db.SQLServer)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Generate(tt.change)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Generate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerateSQLServerDefaultReplacesConstraint(t *testing.T) {
	g := mustGenerator(t, db.SQLServer)
	got, err := g.Generate(SchemaChange{Type: ChangeAlterColumnDefault, Schema: "dbo", Table: "widgets",
		Column: &ir.ColumnDefinition{Name: "status", NativeType: "NVARCHAR(20)", Default: ir.StringPtr("'draft'")}})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Generate() = %q; want drop and add", got)
	}
	if !strings.Contains(got[0], "sys.default_constraints") || !strings.Contains(got[0], "N'status'") {
		t.Errorf("first statement should drop the existing default: %s", got[0])
	}
	want := "ALTER TABLE [dbo].[widgets] ADD CONSTRAINT [df_widgets_status] DEFAULT 'draft' FOR [status]"
	if got[1] != want {
		t.Errorf("got %s\nwant %s", got[1], want)
	}
}

func TestGenerateErrors(t *testing.T) {
	if _, err := NewGenerator(db.Dialect("oracle")); err == nil {
		t.Error("NewGenerator(oracle) succeeded")
	}

	g := mustGenerator(t, db.Postgres)
	bad := []SchemaChange{
		{Type: ChangeAddTable, Table: "t"},
		{Type: ChangeAddColumn, Table: "t"},
		{Type: ChangeAlterColumnNullable, Table: "t", Column: &ir.ColumnDefinition{Name: "c", NativeType: "TEXT"}},
		{Type: ChangeAddIndex, Table: "t"},
		{Type: "RENAME_TABLE", Table: "t"},
		{Type: ChangeAddColumn, Table: "t", Column: &ir.ColumnDefinition{
			Name: "c", NativeType: "UUID", Nullable: true, References: "not a reference"}},
		// rejected by the PostgreSQL parser
		{Type: ChangeAddColumn, Table: "t", Column: &ir.ColumnDefinition{
			Name: "c", NativeType: "INTEGER", Nullable: true, Default: ir.StringPtr("(1")}},
	}
	for _, c := range bad {
		t.Run(string(c.Type), func(t *testing.T) {
			if got, err := g.Generate(c); err == nil {
				t.Errorf("Generate(%+v) = %q; want error", c, got)
			}
		})
	}
}

func TestGenerateAll(t *testing.T) {
	n := ir.NewNormalizer(db.Postgres)
	changes, err := ComputeChanges(widgets(), nil, n)
	if err != nil {
		t.Fatal(err)
	}
	stmts, err := GenerateAll(mustGenerator(t, db.Postgres), changes)
	if err != nil {
		t.Fatalf("GenerateAll() error = %v", err)
	}
	if len(stmts) != 3 {
		t.Fatalf("GenerateAll() returned %d statements; want 3", len(stmts))
	}
	if !strings.HasPrefix(stmts[0], `CREATE TABLE IF NOT EXISTS "public"."widgets"`) {
		t.Errorf("first statement = %s", stmts[0])
	}
	if !strings.Contains(stmts[0], `"active" BOOLEAN NOT NULL DEFAULT TRUE`) {
		t.Errorf("normalized boolean default missing: %s", stmts[0])
	}
}
