package etl

import (
	"fmt"
	"strings"

	"collector/internal/document"
)

// ── Template ───────────────────────────────────────────────
// ${path} substitutes one value into every row. ${arrayPath#itemPath}
// fans out: one row per element of the array at arrayPath.

// TablePlaceholder is replaced by the destination table before rendering.
const TablePlaceholder = "${@table}"

type part struct {
	text  string
	token bool // text is the inner path of a ${...} token
}

// scanTemplate splits s into literal text and ${...} tokens. A "${" without
// a closing brace, or with a '{' before it, stays literal.
func scanTemplate(s string) []part {
	var parts []part
	var lit strings.Builder
	for i := 0; i < len(s); {
		if !strings.HasPrefix(s[i:], "${") {
			lit.WriteByte(s[i])
			i++
			continue
		}
		end := strings.IndexByte(s[i+2:], '}')
		if end < 0 || strings.IndexByte(s[i+2:i+2+end], '{') >= 0 {
			lit.WriteString("${")
			i += 2
			continue
		}
		if lit.Len() > 0 {
			parts = append(parts, part{text: lit.String()})
			lit.Reset()
		}
		parts = append(parts, part{text: s[i+2 : i+2+end], token: true})
		i += end + 3
	}
	if lit.Len() > 0 {
		parts = append(parts, part{text: lit.String()})
	}
	return parts
}

// substitution is the rendered text of one distinct token: a single value
// for every row, or one value per row for a fan-out token.
type substitution struct {
	single string
	rows   []string
	fanOut bool
}

func (s substitution) at(row int) string {
	if s.fanOut {
		return s.rows[row]
	}
	return s.single
}

// Render expands template against doc. The result has one string per row:
// exactly one without fan-out tokens, otherwise as many as the fan-out array
// has elements (possibly none). doc is not modified.
func Render(template string, doc document.Value) ([]string, error) {
	parts := scanTemplate(template)

	subs := make(map[string]substitution)
	rowCount := -1
	for _, p := range parts {
		if !p.token {
			continue
		}
		if _, done := subs[p.text]; done {
			continue
		}
		sub := substitute(p.text, doc)
		if sub.fanOut {
			switch {
			case rowCount < 0:
				rowCount = len(sub.rows)
			case rowCount != len(sub.rows):
				return nil, fmt.Errorf("%w: ${%s} has %d rows, expected %d",
					ErrRowCountMismatch, p.text, len(sub.rows), rowCount)
			}
		}
		subs[p.text] = sub
	}
	if rowCount < 0 {
		rowCount = 1
	}

	out := make([]string, rowCount)
	var b strings.Builder
	for row := range out {
		b.Reset()
		for _, p := range parts {
			if p.token {
				b.WriteString(subs[p.text].at(row))
			} else {
				b.WriteString(p.text)
			}
		}
		out[row] = b.String()
	}
	return out, nil
}

// RenderTable substitutes the destination table and then renders.
func RenderTable(template, table string, doc document.Value) ([]string, error) {
	return Render(strings.ReplaceAll(template, TablePlaceholder, table), doc)
}

func substitute(inner string, doc document.Value) substitution {
	arrayPath, itemPath, fanOut := strings.Cut(inner, "#")
	if !fanOut {
		v, ok := document.Resolve(doc, inner)
		return substitution{single: textOf(v, ok)}
	}

	var items []document.Value
	if arr, ok := document.Resolve(doc, arrayPath, document.WithFlatten()); ok {
		if arr.Kind() == document.Array {
			items = arr.Items()
		} else {
			items = []document.Value{arr}
		}
	}

	rows := make([]string, len(items))
	for i, it := range items {
		v, ok := document.Resolve(it, itemPath)
		rows[i] = textOf(v, ok)
	}
	return substitution{rows: rows, fanOut: true}
}

// textOf keeps generated statements well-formed: anything that is not a
// string renders as null.
func textOf(v document.Value, ok bool) string {
	if !ok {
		return "null"
	}
	if s, isStr := v.AsString(); isStr {
		return s
	}
	return "null"
}
