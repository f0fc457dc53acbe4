package db

import (
	"fmt"
	"strings"
)

// scanPlaceholders walks query and calls fn for every $n placeholder that is
// outside string literals and quoted identifiers. fn returns the text that
// replaces the placeholder.
func scanPlaceholders(query string, fn func(n int) (string, error)) (string, error) {
	var b strings.Builder
	b.Grow(len(query))

	var quote byte // active quote character, 0 when outside quotes
	for i := 0; i < len(query); i++ {
		c := query[i]

		if quote != 0 {
			b.WriteByte(c)
			closing := quote
			if quote == '[' {
				closing = ']'
			}
			if c == closing {
				// doubled closing char is an escape, stay inside
				if i+1 < len(query) && query[i+1] == closing {
					b.WriteByte(query[i+1])
					i++
					continue
				}
				quote = 0
			}
			continue
		}

		switch c {
		case '\'', '"', '`', '[':
			quote = c
			b.WriteByte(c)
			continue
		case '$':
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			if j == i+1 {
				b.WriteByte(c)
				continue
			}
			n := 0
			for _, d := range query[i+1 : j] {
				n = n*10 + int(d-'0')
			}
			repl, err := fn(n)
			if err != nil {
				return "", err
			}
			b.WriteString(repl)
			i = j - 1
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

// toQMark rewrites $n placeholders to ? and expands args in reference order,
// so a placeholder referenced twice binds its argument twice.
func toQMark(query string, args []any) (string, []any, error) {
	out := make([]any, 0, len(args))
	converted, err := scanPlaceholders(query, func(n int) (string, error) {
		if n < 1 || n > len(args) {
			return "", fmt.Errorf("placeholder $%d out of range (%d args)", n, len(args))
		}
		out = append(out, args[n-1])
		return "?", nil
	})
	if err != nil {
		return "", nil, err
	}
	return converted, out, nil
}

// checkPositional validates $n references against args without rewriting.
func checkPositional(query string, args []any) (string, []any, error) {
	_, err := scanPlaceholders(query, func(n int) (string, error) {
		if n < 1 || n > len(args) {
			return "", fmt.Errorf("placeholder $%d out of range (%d args)", n, len(args))
		}
		return "", nil
	})
	if err != nil {
		return "", nil, err
	}
	return query, args, nil
}
