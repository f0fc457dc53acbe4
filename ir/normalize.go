package ir

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/internal/logger"
)

// whereCacheSize bounds the memo of normalized WHERE clauses.
const whereCacheSize = 1024

// Normalizer canonicalizes identifiers, native types, default values and
// WHERE clauses for one dialect so that a model-derived table and the same
// table read back from the catalog compare equal. Inputs are never mutated.
type Normalizer struct {
	dialect db.Dialect
	where   *lru.Cache
}

// NewNormalizer returns the normalizer for d.
func NewNormalizer(d db.Dialect) *Normalizer {
	cache, err := lru.New(whereCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Normalizer{dialect: d, where: cache}
}

// Dialect returns the dialect the normalizer targets.
func (n *Normalizer) Dialect() db.Dialect { return n.dialect }

// NormalizeIdentifier strips "", `` and [] quoting and lower-cases each part
// of a possibly qualified name.
func (n *Normalizer) NormalizeIdentifier(name string) string {
	parts := splitQualified(strings.TrimSpace(name))
	for i, p := range parts {
		parts[i] = strings.ToLower(db.UnquoteIdentifier(p))
	}
	return strings.Join(parts, ".")
}

// splitQualified splits on dots outside quotes.
func splitQualified(name string) []string {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case quote != 0:
			if (quote == '[' && c == ']') || c == quote {
				quote = 0
			}
		case c == '"' || c == '`' || c == '[':
			quote = c
		case c == '.':
			parts = append(parts, name[start:i])
			start = i + 1
		}
	}
	return append(parts, name[start:])
}

var (
	spaceRun    = regexp.MustCompile(`\s+`)
	parenOpen   = regexp.MustCompile(`\s*\(\s*`)
	parenComma  = regexp.MustCompile(`\s*,\s*`)
	parenClose  = regexp.MustCompile(`\s*\)`)
	arraySuffix = regexp.MustCompile(`(\s*\[\s*\])+$`)
)

// type aliases keyed by the upper-case base name without parameters.
var (
	postgresTypeAliases = map[string]string{
		"INT":                         "INTEGER",
		"INT4":                        "INTEGER",
		"INT8":                        "BIGINT",
		"INT2":                        "SMALLINT",
		"FLOAT8":                      "DOUBLE PRECISION",
		"DOUBLE":                      "DOUBLE PRECISION",
		"FLOAT":                       "DOUBLE PRECISION",
		"FLOAT4":                      "REAL",
		"BOOL":                        "BOOLEAN",
		"CHARACTER VARYING":           "VARCHAR",
		"CHARACTER":                   "CHAR",
		"BPCHAR":                      "CHAR",
		"DECIMAL":                     "NUMERIC",
		"TIMESTAMPTZ":                 "TIMESTAMP WITH TIME ZONE",
		"TIMESTAMP WITHOUT TIME ZONE": "TIMESTAMP",
		"TIMETZ":                      "TIME WITH TIME ZONE",
		"TIME WITHOUT TIME ZONE":      "TIME",
	}
	mysqlTypeAliases = map[string]string{
		"INTEGER":          "INT",
		"BOOL":             "BOOLEAN",
		"DOUBLE PRECISION": "DOUBLE",
		"REAL":             "DOUBLE",
		"NUMERIC":          "DECIMAL",
	}
	sqlServerTypeAliases = map[string]string{
		"INTEGER": "INT",
		"NUMERIC": "DECIMAL",
		"BOOLEAN": "BIT",
	}
)

// integer types whose MySQL display width carries no meaning.
var mysqlDisplayWidth = map[string]bool{
	"INT": true, "BIGINT": true, "SMALLINT": true, "MEDIUMINT": true,
}

// NormalizeNativeType upper-cases a native type, collapses whitespace,
// tightens type parameters and maps dialect aliases to the spelling the
// model type mapper produces.
func (n *Normalizer) NormalizeNativeType(native string) string {
	t := strings.ToUpper(strings.TrimSpace(native))
	if t == "" {
		return ""
	}
	t = spaceRun.ReplaceAllString(t, " ")

	// array suffixes, including PostgreSQL's _elem spelling
	suffix := ""
	if loc := arraySuffix.FindStringIndex(t); loc != nil {
		suffix = strings.Repeat("[]", strings.Count(t[loc[0]:], "["))
		t = strings.TrimSpace(t[:loc[0]])
	} else if n.dialect == db.Postgres && strings.HasPrefix(t, "_") {
		suffix = "[]"
		t = t[1:]
	}

	t = parenOpen.ReplaceAllString(t, "(")
	t = parenComma.ReplaceAllString(t, ",")
	t = parenClose.ReplaceAllString(t, ")")

	base, params, tail := splitTypeParams(t)
	key := strings.TrimSpace(base + " " + tail)

	switch n.dialect {
	case db.Postgres:
		if alias, ok := postgresTypeAliases[key]; ok {
			key = alias
		}
		switch key {
		case "INTEGER", "BIGINT", "SMALLINT", "REAL", "DOUBLE PRECISION", "BOOLEAN":
			params = ""
		}
	case db.MySQL:
		if key == "TINYINT" && params == "1" {
			key, params = "BOOLEAN", ""
		}
		if alias, ok := mysqlTypeAliases[key]; ok {
			key = alias
		}
		if mysqlDisplayWidth[key] {
			params = ""
		}
	case db.SQLServer:
		if alias, ok := sqlServerTypeAliases[key]; ok {
			key = alias
		}
		switch key {
		case "FLOAT":
			if params == "24" {
				key = "REAL"
			}
			params = ""
		case "DATETIMEOFFSET", "DATETIME2", "TIME":
			// 7 is the default fractional precision
			if params == "7" {
				params = ""
			}
		}
		if params == "-1" {
			params = "MAX"
		}
	}

	out := key
	if params != "" {
		// parameters attach to the first word: TIMESTAMP(6) WITH TIME ZONE
		if tail != "" && strings.HasPrefix(key, base+" ") {
			out = base + "(" + params + ")" + key[len(base):]
		} else if i := strings.Index(key, " WITH"); i > 0 {
			out = key[:i] + "(" + params + ")" + key[i:]
		} else {
			out = key + "(" + params + ")"
		}
	}
	return out + suffix
}

// splitTypeParams splits "NUMERIC(10,2)" into NUMERIC, "10,2" and "".
func splitTypeParams(t string) (base, params, tail string) {
	open := strings.IndexByte(t, '(')
	if open < 0 {
		return t, "", ""
	}
	closing := strings.IndexByte(t[open:], ')')
	if closing < 0 {
		return t, "", ""
	}
	closing += open
	return strings.TrimSpace(t[:open]), t[open+1 : closing], strings.TrimSpace(t[closing+1:])
}

var (
	booleanTrue = map[string]bool{
		"t": true, "true": true, "1": true, "'t'": true, "'true'": true, "'1'": true,
		"b'1'": true, "y": true, "yes": true, "on": true,
	}
	booleanFalse = map[string]bool{
		"f": true, "false": true, "0": true, "'f'": true, "'false'": true, "'0'": true,
		"b'0'": true, "n": true, "no": true, "off": true,
	}
	generatorCall    = regexp.MustCompile(`(?i)^[a-z_][a-z0-9_]*\(\s*\d*\s*\)$`)
	generatorKeyword = map[string]bool{
		"CURRENT_TIMESTAMP": true, "CURRENT_DATE": true, "CURRENT_TIME": true,
		"LOCALTIMESTAMP": true, "LOCALTIME": true,
	}
)

// NormalizeDefaultValue canonicalizes a column default. It returns nil for
// absent, NULL and blank defaults.
func (n *Normalizer) NormalizeDefaultValue(value *string, columnType ColumnType) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	v = stripWrappingParens(v)
	v = stripTrailingCasts(v)
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "NULL") {
		return nil
	}

	lower := strings.ToLower(v)
	if columnType == ColumnBoolean {
		switch {
		case booleanTrue[lower]:
			return StringPtr("TRUE")
		case booleanFalse[lower]:
			return StringPtr("FALSE")
		}
	}

	if generatorCall.MatchString(v) {
		return StringPtr(strings.ToUpper(strings.ReplaceAll(v, " ", "")))
	}
	if generatorKeyword[strings.ToUpper(v)] {
		return StringPtr(strings.ToUpper(v))
	}
	return &v
}

// stripWrappingParens removes parentheses that enclose the whole value, as
// SQL Server stores defaults like ((0)) and ('x').
func stripWrappingParens(v string) string {
	for len(v) >= 2 && v[0] == '(' && v[len(v)-1] == ')' && closesAt(v, 0) == len(v)-1 {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	return v
}

// closesAt returns the index of the parenthesis matching the one at open,
// ignoring string literals, or -1.
func closesAt(v string, open int) int {
	depth := 0
	inString := false
	for i := open; i < len(v); i++ {
		c := v[i]
		if inString {
			if c == '\'' {
				if i+1 < len(v) && v[i+1] == '\'' {
					i++
					continue
				}
				inString = false
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stripTrailingCasts removes PostgreSQL ::type suffixes outside literals,
// e.g. 'active'::character varying.
func stripTrailingCasts(v string) string {
	for {
		idx := lastTopLevelCast(v)
		if idx < 0 {
			return v
		}
		v = strings.TrimSpace(v[:idx])
		v = stripWrappingParens(v)
	}
}

func lastTopLevelCast(v string) int {
	last := -1
	depth := 0
	inString := false
	for i := 0; i < len(v); i++ {
		c := v[i]
		if inString {
			if c == '\'' {
				if i+1 < len(v) && v[i+1] == '\'' {
					i++
					continue
				}
				inString = false
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
		case ':':
			if depth == 0 && i+1 < len(v) && v[i+1] == ':' {
				last = i
				i++
			}
		}
	}
	return last
}

// NormalizeWhereClause canonicalizes a partial index predicate. The result
// is idempotent and keeps every parenthesis that changes grouping. Input
// the parser cannot handle is case-normalized token by token instead.
func (n *Normalizer) NormalizeWhereClause(clause string) string {
	s := strings.TrimSpace(clause)
	if s == "" {
		return ""
	}
	if cached, ok := n.where.Get(s); ok {
		return cached.(string)
	}

	result := n.normalizeWhere(s)
	n.where.Add(s, result)
	return result
}

func (n *Normalizer) normalizeWhere(s string) string {
	tokens, err := tokenize(s, n.dialect)
	if err != nil {
		logger.Get().Debug("Could not tokenize where clause", "clause", s, "error", err)
		return spaceRun.ReplaceAllString(s, " ")
	}
	if len(tokens) > 0 && tokens[0].kind == tokKeyword && tokens[0].text == "WHERE" {
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return ""
	}
	e, err := parseExpression(tokens)
	if err != nil {
		logger.Get().Debug("Could not parse where clause", "clause", s, "error", err)
		return renderTokens(tokens)
	}
	return render(e, 0)
}

// NormalizeColumn returns a normalized copy of c.
func (n *Normalizer) NormalizeColumn(c *ColumnDefinition) *ColumnDefinition {
	out := *c
	out.Name = n.NormalizeIdentifier(c.Name)
	out.NativeType = n.NormalizeNativeType(c.NativeType)
	if out.ColumnType == "" {
		out.ColumnType = ColumnTypeFromNative(out.NativeType)
	}
	out.Default = n.NormalizeDefaultValue(c.Default, out.ColumnType)
	out.References = strings.ToLower(strings.TrimSpace(c.References))
	return &out
}

// NormalizeIndex returns a normalized copy of idx. MySQL has no partial
// indexes, so its WHERE clause is dropped.
func (n *Normalizer) NormalizeIndex(idx *IndexDefinition) *IndexDefinition {
	out := *idx
	out.Name = n.NormalizeIdentifier(idx.Name)
	out.TableName = n.NormalizeIdentifier(idx.TableName)
	out.Columns = make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		out.Columns[i] = n.NormalizeIdentifier(c)
	}
	out.IndexType = NormalizeIndexType(idx.IndexType)
	if n.dialect.SupportsPartialIndexes() {
		out.WhereClause = n.NormalizeWhereClause(idx.WhereClause)
	} else {
		out.WhereClause = ""
	}
	return &out
}

// NormalizeIndexType maps the engines' default access methods to btree.
func NormalizeIndexType(t string) string {
	switch lower := strings.ToLower(strings.TrimSpace(t)); lower {
	case "", "btree", "nonclustered":
		return "btree"
	default:
		return lower
	}
}

// NormalizeTable returns a normalized deep copy of t.
func (n *Normalizer) NormalizeTable(t *TableDefinition) (*TableDefinition, error) {
	out, err := t.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to normalize table: %w", err)
	}
	out.Name = n.NormalizeIdentifier(t.Name)
	out.Schema = n.NormalizeIdentifier(t.Schema)
	for i, c := range out.Columns {
		out.Columns[i] = n.NormalizeColumn(c)
	}
	for i, idx := range out.Indexes {
		out.Indexes[i] = n.NormalizeIndex(idx)
	}
	return out, nil
}
