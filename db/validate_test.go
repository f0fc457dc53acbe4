package db

import (
	"errors"
	"strings"
	"testing"

	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "price", false},
		{"underscore prefix", "_internal", false},
		{"mixed case", "createdAt", false},
		{"empty", "", true},
		{"leading digit", "1abc", true},
		{"space", "a b", true},
		{"statement injection", "id; DROP TABLE users", true},
		{"comment", "id--", true},
		{"quote", `a"b`, true},
		{"too long", strings.Repeat("a", 64), true},
		{"max length", strings.Repeat("a", 63), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, storeerr.ErrSQLInjectionAttempt) {
				t.Errorf("error %v is not SQLInjectionAttempt", err)
			}
		})
	}
}

func TestSanitizeLikePattern(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain", "plain"},
		{"50%", `50\%`},
		{"a_b", `a\_b`},
		{`c:\path`, `c:\\path`},
	}
	for _, tt := range tests {
		if got := SanitizeLikePattern(tt.input); got != tt.want {
			t.Errorf("SanitizeLikePattern(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		dialect Dialect
		input   string
		want    string
	}{
		{Postgres, "user", `"user"`},
		{Postgres, `we"ird`, `"we""ird"`},
		{MySQL, "order", "`order`"},
		{MySQL, "a`b", "`a``b`"},
		{SQLServer, "my-col", "[my-col]"},
		{SQLServer, "a]b", "[a]]b]"},
	}
	for _, tt := range tests {
		if got := QuoteIdentifier(tt.dialect, tt.input); got != tt.want {
			t.Errorf("QuoteIdentifier(%s, %q) = %s, want %s", tt.dialect, tt.input, got, tt.want)
		}
		if got := UnquoteIdentifier(QuoteIdentifier(tt.dialect, tt.input)); got != tt.input {
			t.Errorf("UnquoteIdentifier round trip = %q, want %q", got, tt.input)
		}
	}
}
