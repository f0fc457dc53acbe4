package db

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestToQMark(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		args      []any
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "sequential",
			query:     "SELECT * FROM t WHERE a = $1 AND b = $2",
			args:      []any{1, 2},
			wantQuery: "SELECT * FROM t WHERE a = ? AND b = ?",
			wantArgs:  []any{1, 2},
		},
		{
			name:      "out of order",
			query:     "UPDATE t SET a = $2 WHERE id = $1",
			args:      []any{"id", "a"},
			wantQuery: "UPDATE t SET a = ? WHERE id = ?",
			wantArgs:  []any{"a", "id"},
		},
		{
			name:      "repeated reference",
			query:     "SELECT * FROM t WHERE a = $1 OR b = $1",
			args:      []any{7},
			wantQuery: "SELECT * FROM t WHERE a = ? OR b = ?",
			wantArgs:  []any{7, 7},
		},
		{
			name:      "dollar inside string literal",
			query:     "SELECT '$1 and it''s $2' FROM t WHERE a = $1",
			args:      []any{"x"},
			wantQuery: "SELECT '$1 and it''s $2' FROM t WHERE a = ?",
			wantArgs:  []any{"x"},
		},
		{
			name:      "dollar inside quoted identifiers",
			query:     "SELECT [c$1], `d$1`, \"e$1\" FROM t WHERE a = $1",
			args:      []any{1},
			wantQuery: "SELECT [c$1], `d$1`, \"e$1\" FROM t WHERE a = ?",
			wantArgs:  []any{1},
		},
		{
			name:      "two digit placeholder",
			query:     "VALUES ($10, $1)",
			args:      []any{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			wantQuery: "VALUES (?, ?)",
			wantArgs:  []any{10, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotQuery, gotArgs, err := toQMark(tt.query, tt.args)
			if err != nil {
				t.Fatalf("toQMark() error = %v", err)
			}
			if gotQuery != tt.wantQuery {
				t.Errorf("query = %q, want %q", gotQuery, tt.wantQuery)
			}
			if diff := cmp.Diff(tt.wantArgs, gotArgs); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlaceholderOutOfRange(t *testing.T) {
	if _, _, err := toQMark("SELECT $3", []any{1}); err == nil {
		t.Error("toQMark() expected error for $3 with one arg")
	}
	if _, _, err := checkPositional("SELECT $0", []any{1}); err == nil {
		t.Error("checkPositional() expected error for $0")
	}
	if _, _, err := checkPositional("SELECT $1", []any{1}); err != nil {
		t.Errorf("checkPositional() unexpected error: %v", err)
	}
}
