package db

import (
	"regexp"
	"strings"

	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// MaxIdentifierLength is PostgreSQL's NAMEDATALEN-1, the tightest limit of
// the supported backends.
const MaxIdentifierLength = 63

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier rejects identifiers that could not have come from a
// model descriptor. Callers use it on any name that originates outside the
// descriptor, such as filter keys.
func ValidateIdentifier(name string) error {
	switch {
	case name == "":
		return storeerr.NewSQLInjectionAttempt("validate", name, "empty identifier")
	case len(name) > MaxIdentifierLength:
		return storeerr.NewSQLInjectionAttempt("validate", name, "identifier too long")
	case !identifierPattern.MatchString(name):
		return storeerr.NewSQLInjectionAttempt("validate", name, "identifier contains unsafe characters")
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SanitizeLikePattern escapes LIKE wildcards so s matches literally. Use it
// with an ESCAPE '\' clause.
func SanitizeLikePattern(s string) string {
	return likeEscaper.Replace(s)
}
