package db

import (
	"strings"

	"github.com/lib/pq"
)

// QuoteIdentifier always quotes an identifier in the dialect's syntax so
// reserved words, mixed case and characters such as hyphens are tolerated.
func QuoteIdentifier(d Dialect, identifier string) string {
	switch d {
	case MySQL:
		return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
	case SQLServer:
		return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
	default:
		return pq.QuoteIdentifier(identifier)
	}
}

// QualifiedName returns schema.name with both parts quoted. An empty schema
// yields just the quoted name.
func QualifiedName(d Dialect, schema, name string) string {
	if schema == "" {
		return QuoteIdentifier(d, name)
	}
	return QuoteIdentifier(d, schema) + "." + QuoteIdentifier(d, name)
}

// QuoteLiteral renders a string literal with doubled single quotes.
func QuoteLiteral(d Dialect, value string) string {
	if d == Postgres {
		return pq.QuoteLiteral(value)
	}
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// UnquoteIdentifier strips one level of "", ``, or [] quoting.
func UnquoteIdentifier(identifier string) string {
	s := strings.TrimSpace(identifier)
	if len(s) < 2 {
		return s
	}
	switch {
	case s[0] == '"' && s[len(s)-1] == '"':
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	case s[0] == '`' && s[len(s)-1] == '`':
		return strings.ReplaceAll(s[1:len(s)-1], "``", "`")
	case s[0] == '[' && s[len(s)-1] == ']':
		return strings.ReplaceAll(s[1:len(s)-1], "]]", "]")
	}
	return s
}
