package etl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PaesslerAG/gval"

	"collector/internal/document"
)

// ── Paging ─────────────────────────────────────────────────
// Request text is rendered before every fetch. ${page} becomes the counter,
// ${(page-1)*50} is evaluated as arithmetic over it, and any other ${path}
// is looked up in the run's static parameters.

var arithmetic = gval.Arithmetic()

// pageRenderer renders request text for one counter value.
type pageRenderer struct {
	counter string
	params  document.Value
}

func newPageRenderer(run *Run) pageRenderer {
	return pageRenderer{
		counter: run.Paging.CounterName(),
		params:  requestParams(run.Source),
	}
}

// requestParams is the document ${path} tokens resolve against: the
// "params" option when it is JSON, else the body when that parses as JSON.
func requestParams(src SourceConfig) document.Value {
	for _, raw := range []string{src.Option("params", ""), src.Body} {
		if raw == "" {
			continue
		}
		if v, err := document.ParseString(raw); err == nil {
			return v
		}
	}
	return document.ObjectValue()
}

// render expands s for the given page.
func (r pageRenderer) render(s string, page int) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	var b strings.Builder
	for _, p := range scanTemplate(s) {
		if !p.token {
			b.WriteString(p.text)
			continue
		}
		text, err := r.token(strings.TrimSpace(p.text), page)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func (r pageRenderer) token(inner string, page int) (string, error) {
	switch {
	case inner == r.counter:
		return strconv.Itoa(page), nil
	case isExpression(inner, r.counter):
		out, err := arithmetic.Evaluate(inner, map[string]interface{}{r.counter: float64(page)})
		if err != nil {
			return "", fmt.Errorf("%w: page expression %q: %v", ErrConfiguration, inner, err)
		}
		f, ok := out.(float64)
		if !ok {
			return "", fmt.Errorf("%w: page expression %q is not a number", ErrConfiguration, inner)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}

	v, ok := document.Resolve(r.params, inner)
	if !ok {
		return "null", nil
	}
	if s, isStr := v.AsString(); isStr {
		return s, nil
	}
	return v.String(), nil
}

// isExpression reports whether inner mentions the counter as an identifier
// together with arithmetic.
func isExpression(inner, counter string) bool {
	if !strings.ContainsAny(inner, "+-*/%()") {
		return false
	}
	for _, f := range strings.FieldsFunc(inner, func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) {
		if f == counter {
			return true
		}
	}
	return false
}

// renderRequest returns src with Locator, Body and Query rendered for page.
func (r pageRenderer) renderRequest(src SourceConfig, page int) (SourceConfig, error) {
	out := src
	var err error
	if out.Locator, err = r.render(src.Locator, page); err != nil {
		return SourceConfig{}, err
	}
	if out.Body, err = r.render(src.Body, page); err != nil {
		return SourceConfig{}, err
	}
	if out.Query, err = r.render(src.Query, page); err != nil {
		return SourceConfig{}, err
	}
	return out, nil
}

// hasNextPage reports whether the list at listPath in a raw page is a
// non-empty array, and how many results it holds.
func hasNextPage(raw document.Value, listPath string) (bool, int) {
	v, ok := document.Resolve(raw, listPath)
	if !ok || v.Kind() != document.Array {
		return false, 0
	}
	return v.Len() > 0, v.Len()
}
