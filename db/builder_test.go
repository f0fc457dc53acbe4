package db

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuilder(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		build    func(b *Builder) Statement
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "insert sorts columns",
			dialect: Postgres,
			build: func(b *Builder) Statement {
				return b.Insert(map[string]any{"name": "w", "id": "1"})
			},
			wantSQL:  `INSERT INTO "public"."products" ("id", "name") VALUES ($1, $2)`,
			wantArgs: []any{"1", "w"},
		},
		{
			name:    "insert returning",
			dialect: Postgres,
			build: func(b *Builder) Statement {
				return b.Insert(map[string]any{"id": "1"}).Returning()
			},
			wantSQL:  `INSERT INTO "public"."products" ("id") VALUES ($1) RETURNING *`,
			wantArgs: []any{"1"},
		},
		{
			name:    "update continues numbering into where",
			dialect: MySQL,
			build: func(b *Builder) Statement {
				return b.Update(map[string]any{"price": 1.5}, Eq("id", "x"), IsNull("deleted_at"))
			},
			wantSQL:  "UPDATE `products` SET `price` = $1 WHERE `id` = $2 AND `deleted_at` IS NULL",
			wantArgs: []any{1.5, "x"},
		},
		{
			name:    "delete with in list",
			dialect: SQLServer,
			build: func(b *Builder) Statement {
				return b.Delete(In("id", "a", "b"))
			},
			wantSQL:  "DELETE FROM [dbo].[products] WHERE [id] IN ($1, $2)",
			wantArgs: []any{"a", "b"},
		},
		{
			name:    "empty in list matches nothing",
			dialect: Postgres,
			build: func(b *Builder) Statement {
				return b.Count(In("id"))
			},
			wantSQL: `SELECT COUNT(*) AS count FROM "public"."products" WHERE 1 = 0`,
		},
		{
			name:    "select postgres paging and lock",
			dialect: Postgres,
			build: func(b *Builder) Statement {
				return b.Select(SelectQuery{
					Where:     []Condition{Eq("id", "x")},
					OrderBy:   []Order{{Column: "created_at", Desc: true}},
					Limit:     10,
					Offset:    20,
					ForUpdate: true,
				})
			},
			wantSQL:  `SELECT * FROM "public"."products" WHERE "id" = $1 ORDER BY "created_at" DESC LIMIT 10 OFFSET 20 FOR UPDATE`,
			wantArgs: []any{"x"},
		},
		{
			name:    "select sqlserver offset fetch and lock hint",
			dialect: SQLServer,
			build: func(b *Builder) Statement {
				return b.Select(SelectQuery{
					Where:     []Condition{Eq("id", "x")},
					Limit:     5,
					ForUpdate: true,
				})
			},
			wantSQL:  "SELECT * FROM [dbo].[products] WITH (UPDLOCK, ROWLOCK) WHERE [id] = $1 ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 5 ROWS ONLY",
			wantArgs: []any{"x"},
		},
		{
			name:    "select mysql offset only",
			dialect: MySQL,
			build: func(b *Builder) Statement {
				return b.Select(SelectQuery{Columns: []string{"id"}, Offset: 3})
			},
			wantSQL: "SELECT `id` FROM `products` LIMIT 18446744073709551615 OFFSET 3",
		},
		{
			name:    "validity interval",
			dialect: Postgres,
			build: func(b *Builder) Statement {
				return b.Select(SelectQuery{Where: []Condition{
					Eq("id", "x"), Lte("valid_from", "t"), NullOrGreater("valid_to", "t"),
				}})
			},
			wantSQL:  `SELECT * FROM "public"."products" WHERE "id" = $1 AND "valid_from" <= $2 AND ("valid_to" IS NULL OR "valid_to" > $3)`,
			wantArgs: []any{"x", "t", "t"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(tt.dialect, tt.dialect.DefaultSchema(), "products")
			got := tt.build(b)
			if got.SQL != tt.wantSQL {
				t.Errorf("SQL =\n  %s\nwant\n  %s", got.SQL, tt.wantSQL)
			}
			if diff := cmp.Diff(tt.wantArgs, got.Args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
			if got.Table != b.Table() {
				t.Errorf("Table = %q, want %q", got.Table, b.Table())
			}
		})
	}
}
