package ir

import (
	"strings"
	"unicode"
)

// Words that are upper-cased when normalizing expressions and that force
// quoting when used as identifiers. The list is the union of the
// expression-level keywords of PostgreSQL, MySQL and SQL Server.
var reservedWords = map[string]bool{
	// A-C
	"all":               true,
	"and":               true,
	"any":               true,
	"array":             true,
	"as":                true,
	"asc":               true,
	"asymmetric":        true,
	"between":           true,
	"bigint":            true,
	"binary":            true,
	"boolean":           true,
	"both":              true,
	"by":                true,
	"case":              true,
	"cast":              true,
	"char":              true,
	"character":         true,
	"check":             true,
	"collate":           true,
	"column":            true,
	"constraint":        true,
	"create":            true,
	"cross":             true,
	"current_date":      true,
	"current_time":      true,
	"current_timestamp": true,
	"current_user":      true,
	// D-F
	"default":  true,
	"delete":   true,
	"desc":     true,
	"distinct": true,
	"else":     true,
	"end":      true,
	"escape":   true,
	"except":   true,
	"exists":   true,
	"false":    true,
	"fetch":    true,
	"for":      true,
	"foreign":  true,
	"from":     true,
	// G-L
	"grant":          true,
	"group":          true,
	"having":         true,
	"ilike":          true,
	"in":             true,
	"inner":          true,
	"insert":         true,
	"intersect":      true,
	"into":           true,
	"is":             true,
	"isnull":         true,
	"join":           true,
	"left":           true,
	"like":           true,
	"limit":          true,
	"localtime":      true,
	"localtimestamp": true,
	// N-P
	"not":     true,
	"notnull": true,
	"null":    true,
	"offset":  true,
	"on":      true,
	"only":    true,
	"or":      true,
	"order":   true,
	"outer":   true,
	"primary": true,
	// R-S
	"references": true,
	"returning":  true,
	"right":      true,
	"select":     true,
	"similar":    true,
	"some":       true,
	"symmetric":  true,
	// T-W
	"table":   true,
	"then":    true,
	"to":      true,
	"true":    true,
	"union":   true,
	"unique":  true,
	"unknown": true,
	"update":  true,
	"user":    true,
	"using":   true,
	"when":    true,
	"where":   true,
	"with":    true,
}

// IsKeyword reports whether word is a reserved SQL keyword.
func IsKeyword(word string) bool {
	return reservedWords[strings.ToLower(word)]
}

// NeedsQuoting checks if a lower-case identifier has to be quoted to read
// back as the same identifier.
func NeedsQuoting(identifier string) bool {
	if identifier == "" {
		return false
	}

	if reservedWords[strings.ToLower(identifier)] {
		return true
	}

	for i, r := range identifier {
		if unicode.IsUpper(r) {
			return true
		}
		if i == 0 && !unicode.IsLetter(r) && r != '_' {
			return true
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return true
		}
	}
	return false
}

// quoteIfNeeded renders identifier bare when possible, otherwise in ANSI
// double quotes.
func quoteIfNeeded(identifier string) string {
	if NeedsQuoting(identifier) {
		return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
	}
	return identifier
}
