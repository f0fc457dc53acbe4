package ir

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/fenixflow/ff-storage-sub000/db"
)

// Normalization of boolean expressions (partial index predicates). The
// input is tokenized, parsed into an AST with NOT > comparison > AND > OR
// precedence and printed back with parentheses only where the tree needs
// them. Keywords and function names are upper-cased, identifiers
// lower-cased, string literals are copied verbatim and PostgreSQL casts are
// dropped.

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokKeyword
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokDot
)

type token struct {
	kind tokenKind
	text string
}

// render returns the token's canonical spelling.
func (t token) render() string {
	if t.kind == tokIdent {
		return quoteIfNeeded(t.text)
	}
	return t.text
}

// operators in longest-first order.
var operators = []string{
	"!~~*", "!~~", "~~*",
	"<=", ">=", "<>", "!=", "||", "~~", "@>", "<@",
	"=", "<", ">", "+", "-", "*", "/", "%", "~", "^", "&", "|",
}

// operator aliases produced by catalog deparsers.
var operatorAliases = map[string]string{
	"!=":   "<>",
	"~~":   "LIKE",
	"!~~":  "NOT LIKE",
	"~~*":  "ILIKE",
	"!~~*": "NOT ILIKE",
}

// words that may continue a multi-word type name after ::
var castContinuations = map[string]bool{
	"varying": true, "with": true, "without": true, "time": true, "zone": true, "precision": true,
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '$'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func tokenize(s string, d db.Dialect) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '\'':
			end, err := scanQuoted(s, i, '\'')
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tokString, s[i:end]})
			i = end

		case c == '"' || c == '`' || (c == '[' && d == db.SQLServer):
			closing := c
			if c == '[' {
				closing = ']'
			}
			end, err := scanQuoted(s, i, closing)
			if err != nil {
				return nil, err
			}
			inner := s[i+1 : end-1]
			inner = strings.ReplaceAll(inner, string([]byte{closing, closing}), string(closing))
			tokens = append(tokens, token{tokIdent, strings.ToLower(inner)})
			i = end

		case c == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case c == '[':
			tokens = append(tokens, token{tokLBracket, "["})
			i++
		case c == ']':
			tokens = append(tokens, token{tokRBracket, "]"})
			i++
		case c == ',':
			tokens = append(tokens, token{tokComma, ","})
			i++

		case c == ':' && i+1 < len(s) && s[i+1] == ':':
			i = skipCast(s, i+2)

		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			j := i
			for j < len(s) && (isDigit(s[j]) || s[j] == '.') {
				j++
			}
			if j < len(s) && (s[j] == 'e' || s[j] == 'E') {
				k := j + 1
				if k < len(s) && (s[k] == '+' || s[k] == '-') {
					k++
				}
				if k < len(s) && isDigit(s[k]) {
					for k < len(s) && isDigit(s[k]) {
						k++
					}
					j = k
				}
			}
			tokens = append(tokens, token{tokNumber, s[i:j]})
			i = j

		case c == '.':
			tokens = append(tokens, token{tokDot, "."})
			i++

		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			// N'...' and E'...' literals
			if j < len(s) && s[j] == '\'' && (strings.EqualFold(word, "N") || strings.EqualFold(word, "E")) {
				end, err := scanQuoted(s, j, '\'')
				if err != nil {
					return nil, err
				}
				tokens = append(tokens, token{tokString, strings.ToUpper(word) + s[j:end]})
				i = end
				continue
			}
			if IsKeyword(word) {
				tokens = append(tokens, token{tokKeyword, strings.ToUpper(word)})
			} else {
				tokens = append(tokens, token{tokIdent, strings.ToLower(word)})
			}
			i = j

		default:
			op := ""
			for _, candidate := range operators {
				if strings.HasPrefix(s[i:], candidate) {
					op = candidate
					break
				}
			}
			if op == "" {
				return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
			}
			if alias, ok := operatorAliases[op]; ok {
				op = alias
			}
			tokens = append(tokens, token{tokOp, op})
			i += len(op)
		}
	}
	return tokens, nil
}

// scanQuoted returns the offset just past the quoted section starting at
// start. A doubled closing character is an escape, not a terminator.
func scanQuoted(s string, start int, closing byte) (int, error) {
	for j := start + 1; j < len(s); j++ {
		if s[j] != closing {
			continue
		}
		if j+1 < len(s) && s[j+1] == closing {
			j++
			continue
		}
		return j + 1, nil
	}
	return 0, fmt.Errorf("unterminated quoted section starting at offset %d", start)
}

// skipCast skips the type name of a :: cast starting at i.
func skipCast(s string, i int) int {
	skipSpace := func(k int) int {
		for k < len(s) && unicode.IsSpace(rune(s[k])) {
			k++
		}
		return k
	}
	i = skipSpace(i)
	if i < len(s) && s[i] == '"' {
		if end, err := scanQuoted(s, i, '"'); err == nil {
			i = end
		}
	} else {
		first := true
		for {
			j := i
			for j < len(s) && (isIdentPart(s[j]) || s[j] == '.') {
				j++
			}
			if j == i {
				break
			}
			if !first && !castContinuations[strings.ToLower(s[i:j])] {
				break
			}
			first = false
			i = j
			k := skipSpace(i)
			if k == i || k >= len(s) || !isIdentStart(s[k]) {
				break
			}
			next := k
			for next < len(s) && isIdentPart(s[next]) {
				next++
			}
			if !castContinuations[strings.ToLower(s[k:next])] {
				break
			}
			i = k
		}
	}
	// type modifiers and array suffixes
	if k := skipSpace(i); k < len(s) && s[k] == '(' {
		if end := strings.IndexByte(s[k:], ')'); end >= 0 {
			i = k + end + 1
		}
	}
	for {
		k := skipSpace(i)
		if k+1 < len(s) && s[k] == '[' && s[k+1] == ']' {
			i = k + 2
			continue
		}
		break
	}
	return i
}

type exprKind int

const (
	exprOr exprKind = iota
	exprAnd
	exprNot
	exprCompare
	exprArith
	exprFunc
	exprList
	exprArray
	exprAtom
)

const (
	precOr = iota + 1
	precAnd
	precNot
	precCompare
	precAdd
	precMul
	precAtom
)

type expr struct {
	kind        exprKind
	op          string
	left, right *expr
	items       []*expr
	text        string
}

func (e *expr) precedence() int {
	switch e.kind {
	case exprOr:
		return precOr
	case exprAnd:
		return precAnd
	case exprNot:
		return precNot
	case exprCompare:
		return precCompare
	case exprArith:
		if mulOps[e.op] {
			return precMul
		}
		return precAdd
	}
	return precAtom
}

var (
	compareOps = map[string]bool{
		"=": true, "<>": true, "<": true, ">": true, "<=": true, ">=": true,
		"LIKE": true, "NOT LIKE": true, "ILIKE": true, "NOT ILIKE": true,
		"@>": true, "<@": true, "~": true,
	}
	addOps = map[string]bool{"+": true, "-": true, "||": true, "&": true, "|": true, "^": true}
	mulOps = map[string]bool{"*": true, "/": true, "%": true}
)

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) peekAt(offset int) (token, bool) {
	if p.pos+offset >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos+offset], true
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) isKeyword(word string) bool {
	t, ok := p.peek()
	return ok && t.kind == tokKeyword && t.text == word
}

func (p *parser) isKind(kind tokenKind) bool {
	t, ok := p.peek()
	return ok && t.kind == kind
}

func (p *parser) expect(kind tokenKind, what string) error {
	if !p.isKind(kind) {
		if t, ok := p.peek(); ok {
			return fmt.Errorf("expected %s, found %q", what, t.text)
		}
		return fmt.Errorf("expected %s, found end of expression", what)
	}
	p.pos++
	return nil
}

func parseExpression(tokens []token) (*expr, error) {
	p := &parser{tokens: tokens}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t, ok := p.peek(); ok {
		return nil, fmt.Errorf("unexpected %q after expression", t.text)
	}
	return e, nil
}

func (p *parser) parseOr() (*expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &expr{kind: exprOr, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (*expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		p.pos++
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &expr{kind: exprAnd, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (*expr, error) {
	if p.isKeyword("NOT") {
		p.pos++
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &expr{kind: exprNot, left: inner}, nil
	}
	return p.parsePredicate()
}

func (p *parser) parsePredicate() (*expr, error) {
	left, err := p.parseArith(precAdd)
	if err != nil {
		return nil, err
	}

	t, ok := p.peek()
	if !ok {
		return left, nil
	}

	negated := ""
	if t.kind == tokKeyword && t.text == "NOT" {
		if n, ok := p.peekAt(1); ok && n.kind == tokKeyword &&
			(n.text == "IN" || n.text == "LIKE" || n.text == "ILIKE" || n.text == "BETWEEN") {
			p.pos++
			negated = "NOT "
			t = n
		}
	}

	switch {
	case t.kind == tokKeyword && t.text == "IS":
		p.pos++
		op := "IS"
		if p.isKeyword("NOT") {
			p.pos++
			op += " NOT"
		}
		n, ok := p.peek()
		if !ok || n.kind != tokKeyword {
			return nil, fmt.Errorf("expected NULL, TRUE, FALSE, UNKNOWN or DISTINCT after IS")
		}
		p.pos++
		switch n.text {
		case "NULL", "TRUE", "FALSE", "UNKNOWN":
			return &expr{kind: exprCompare, op: op + " " + n.text, left: left}, nil
		case "DISTINCT":
			if !p.isKeyword("FROM") {
				return nil, fmt.Errorf("expected FROM after IS DISTINCT")
			}
			p.pos++
			right, err := p.parseArith(precAdd)
			if err != nil {
				return nil, err
			}
			return &expr{kind: exprCompare, op: op + " DISTINCT FROM", left: left, right: right}, nil
		}
		return nil, fmt.Errorf("unexpected %q after IS", n.text)

	case t.kind == tokKeyword && t.text == "IN":
		p.pos++
		items, err := p.parseParenList()
		if err != nil {
			return nil, err
		}
		return &expr{kind: exprCompare, op: negated + "IN", left: left, items: items}, nil

	case t.kind == tokKeyword && t.text == "BETWEEN":
		p.pos++
		op := negated + "BETWEEN"
		if p.isKeyword("SYMMETRIC") {
			p.pos++
			op += " SYMMETRIC"
		}
		lo, err := p.parseArith(precAdd)
		if err != nil {
			return nil, err
		}
		if !p.isKeyword("AND") {
			return nil, fmt.Errorf("expected AND in BETWEEN")
		}
		p.pos++
		hi, err := p.parseArith(precAdd)
		if err != nil {
			return nil, err
		}
		return &expr{kind: exprCompare, op: op, left: left, items: []*expr{lo, hi}}, nil

	case t.kind == tokKeyword && (t.text == "LIKE" || t.text == "ILIKE"):
		p.pos++
		return p.finishComparison(left, negated+t.text)

	case t.kind == tokOp && compareOps[t.text]:
		p.pos++
		return p.finishComparison(left, t.text)
	}
	return left, nil
}

func (p *parser) finishComparison(left *expr, op string) (*expr, error) {
	if p.isKeyword("ANY") || p.isKeyword("ALL") || p.isKeyword("SOME") {
		quant := p.next().text
		if quant == "SOME" {
			quant = "ANY"
		}
		if err := p.expect(tokLParen, "( after "+quant); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		if inner.kind == exprArray {
			switch {
			case op == "=" && quant == "ANY":
				return &expr{kind: exprCompare, op: "IN", left: left, items: inner.items}, nil
			case op == "<>" && quant == "ALL":
				return &expr{kind: exprCompare, op: "NOT IN", left: left, items: inner.items}, nil
			}
		}
		return &expr{kind: exprCompare, op: op + " " + quant, left: left, items: []*expr{inner}}, nil
	}

	right, err := p.parseArith(precAdd)
	if err != nil {
		return nil, err
	}
	e := &expr{kind: exprCompare, op: op, left: left, right: right}
	if strings.HasSuffix(op, "LIKE") && p.isKeyword("ESCAPE") {
		p.pos++
		esc, err := p.parseArith(precAdd)
		if err != nil {
			return nil, err
		}
		e.items = []*expr{esc}
	}
	return e, nil
}

// parseParenList parses ( a, b, ... ) or a parenthesized subquery.
func (p *parser) parseParenList() ([]*expr, error) {
	if err := p.expect(tokLParen, "("); err != nil {
		return nil, err
	}
	if p.isKeyword("SELECT") {
		raw, err := p.rawUntilClose()
		if err != nil {
			return nil, err
		}
		return []*expr{raw}, nil
	}
	var items []*expr
	if p.isKind(tokRParen) {
		p.pos++
		return items, nil
	}
	for {
		item, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.isKind(tokComma) {
			p.pos++
			continue
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return items, nil
	}
}

// rawUntilClose consumes tokens up to the ) that closes the current group
// and returns them as one atom.
func (p *parser) rawUntilClose() (*expr, error) {
	depth := 0
	var parts []string
	for {
		t, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("unbalanced parentheses")
		}
		p.pos++
		switch t.kind {
		case tokLParen:
			depth++
		case tokRParen:
			if depth == 0 {
				return &expr{kind: exprAtom, text: strings.Join(parts, " ")}, nil
			}
			depth--
		}
		parts = append(parts, t.render())
	}
}

func (p *parser) parseArith(minPrec int) (*expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp {
			return left, nil
		}
		prec := 0
		switch {
		case mulOps[t.text]:
			prec = precMul
		case addOps[t.text]:
			prec = precAdd
		}
		if prec == 0 || prec < minPrec {
			return left, nil
		}
		p.pos++
		right, err := p.parseArith(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &expr{kind: exprArith, op: t.text, left: left, right: right}
	}
}

func (p *parser) parseUnary() (*expr, error) {
	if t, ok := p.peek(); ok && t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &expr{kind: exprAtom, text: t.text + render(operand, precAtom)}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (*expr, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	switch t.kind {
	case tokLParen:
		p.pos++
		if p.isKeyword("SELECT") {
			raw, err := p.rawUntilClose()
			if err != nil {
				return nil, err
			}
			return &expr{kind: exprList, items: []*expr{raw}}, nil
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil

	case tokString, tokNumber:
		p.pos++
		return &expr{kind: exprAtom, text: t.text}, nil

	case tokOp:
		if t.text == "*" {
			p.pos++
			return &expr{kind: exprAtom, text: "*"}, nil
		}

	case tokKeyword:
		if t.text == "ARRAY" {
			if n, ok := p.peekAt(1); ok && n.kind == tokLBracket {
				p.pos += 2
				return p.parseArray()
			}
		}
		if n, ok := p.peekAt(1); ok && n.kind == tokLParen && t.text != "NOT" {
			p.pos++
			return p.parseCall(t.text)
		}
		switch t.text {
		case "NULL", "TRUE", "FALSE", "CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP",
			"CURRENT_USER", "LOCALTIME", "LOCALTIMESTAMP", "UNKNOWN", "DEFAULT":
			p.pos++
			return &expr{kind: exprAtom, text: t.text}, nil
		}

	case tokIdent:
		p.pos++
		if p.isKind(tokLParen) {
			return p.parseCall(strings.ToUpper(t.text))
		}
		parts := []string{t.render()}
		for p.isKind(tokDot) {
			p.pos++
			n, ok := p.peek()
			if !ok || (n.kind != tokIdent && n.kind != tokKeyword) {
				return nil, fmt.Errorf("expected identifier after '.'")
			}
			p.pos++
			parts = append(parts, quoteIfNeeded(strings.ToLower(n.text)))
		}
		return &expr{kind: exprAtom, text: strings.Join(parts, ".")}, nil
	}
	return nil, fmt.Errorf("unexpected %q", t.text)
}

func (p *parser) parseArray() (*expr, error) {
	arr := &expr{kind: exprArray}
	if p.isKind(tokRBracket) {
		p.pos++
		return arr, nil
	}
	for {
		item, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		arr.items = append(arr.items, item)
		if p.isKind(tokComma) {
			p.pos++
			continue
		}
		if err := p.expect(tokRBracket, "]"); err != nil {
			return nil, err
		}
		return arr, nil
	}
}

// parseCall parses name( args ) with the name already consumed. CAST(x AS t)
// reduces to x.
func (p *parser) parseCall(name string) (*expr, error) {
	if err := p.expect(tokLParen, "("); err != nil {
		return nil, err
	}
	if name == "CAST" {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.isKeyword("AS") {
			return nil, fmt.Errorf("expected AS in CAST")
		}
		if _, err := p.rawUntilClose(); err != nil {
			return nil, err
		}
		return inner, nil
	}

	call := &expr{kind: exprFunc, op: name}
	if p.isKeyword("SELECT") {
		raw, err := p.rawUntilClose()
		if err != nil {
			return nil, err
		}
		call.items = []*expr{raw}
		return call, nil
	}
	if p.isKind(tokRParen) {
		p.pos++
		return call, nil
	}
	for {
		if p.isKeyword("DISTINCT") {
			p.pos++
			call.text = "DISTINCT "
		}
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		call.items = append(call.items, arg)
		if p.isKind(tokComma) {
			p.pos++
			continue
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return call, nil
	}
}

// render prints e, adding parentheses when its precedence is below minPrec.
func render(e *expr, minPrec int) string {
	s := renderRaw(e)
	if e.precedence() < minPrec {
		return "( " + s + " )"
	}
	return s
}

func renderRaw(e *expr) string {
	switch e.kind {
	case exprOr:
		return render(e.left, precOr) + " OR " + render(e.right, precOr)
	case exprAnd:
		return render(e.left, precAnd) + " AND " + render(e.right, precAnd)
	case exprNot:
		return "NOT " + render(e.left, precNot)
	case exprCompare:
		left := render(e.left, precAdd)
		switch {
		case strings.Contains(e.op, "BETWEEN"):
			return left + " " + e.op + " " + render(e.items[0], precAdd) + " AND " + render(e.items[1], precAdd)
		case e.right == nil && e.items == nil:
			return left + " " + e.op
		case e.right == nil:
			return left + " " + e.op + " " + renderList(e.items)
		}
		s := left + " " + e.op + " " + render(e.right, precAdd)
		if len(e.items) == 1 {
			s += " ESCAPE " + render(e.items[0], precAdd)
		}
		return s
	case exprArith:
		prec := e.precedence()
		return render(e.left, prec) + " " + e.op + " " + render(e.right, prec+1)
	case exprFunc:
		args := make([]string, len(e.items))
		for i, a := range e.items {
			args[i] = render(a, 0)
		}
		return e.op + "(" + e.text + strings.Join(args, ", ") + ")"
	case exprList:
		return renderList(e.items)
	case exprArray:
		if len(e.items) == 0 {
			return "ARRAY[]"
		}
		parts := make([]string, len(e.items))
		for i, a := range e.items {
			parts[i] = render(a, 0)
		}
		return "ARRAY[ " + strings.Join(parts, " , ") + " ]"
	}
	return e.text
}

func renderList(items []*expr) string {
	if len(items) == 0 {
		return "( )"
	}
	parts := make([]string, len(items))
	for i, a := range items {
		parts[i] = render(a, 0)
	}
	return "( " + strings.Join(parts, " , ") + " )"
}

// renderTokens is the fallback for input the parser does not understand:
// token-level case normalization only.
func renderTokens(tokens []token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.render()
	}
	return strings.Join(parts, " ")
}
