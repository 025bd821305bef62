package etl

import (
	"fmt"

	"collector/internal/document"
)

// ── Mapping ────────────────────────────────────────────────
// Map builds a new document from an old one with an ordered RuleSet.
// Target paths use '.' to descend into objects and '#' to descend into
// arrays; an array source is spread across the target array by index.

type mapOptions struct {
	strict bool
}

// MapOption tunes Map.
type MapOption func(*mapOptions)

// Strict makes an unresolved source path fail the whole mapping instead of
// skipping the rule.
func Strict() MapOption {
	return func(o *mapOptions) { o.strict = true }
}

// Map applies rules to doc and returns a fresh object. doc is not modified.
func Map(doc document.Value, rules RuleSet, opts ...MapOption) (document.Value, error) {
	var o mapOptions
	for _, opt := range opts {
		opt(&o)
	}

	out := document.ObjectValue()
	for i, r := range rules {
		if r.Target == "" {
			return document.Value{}, fmt.Errorf("%w: rule %d has an empty target", ErrConfiguration, i)
		}
		src, ok := document.Resolve(doc, r.Source)
		if !ok {
			if o.strict {
				return document.Value{}, fmt.Errorf("rule %d %q: %w", i, r.Source, document.ErrPathNotFound)
			}
			continue
		}
		out = put(out, document.Segments(r.Target), src)
	}
	return out, nil
}

// put writes src at segs below cur and returns the updated container.
func put(cur document.Value, segs []document.Segment, src document.Value) document.Value {
	seg := segs[0]

	if len(segs) == 1 {
		if seg.Name == "" {
			return src.Clone()
		}
		cur = ensureObject(cur)
		cur.Set(seg.Name, src.Clone())
		return cur
	}

	cur = ensureObject(cur)
	child, _ := cur.Get(seg.Name)
	if seg.IsArray() {
		cur.Set(seg.Name, spread(child, segs[1:], src))
	} else {
		cur.Set(seg.Name, put(child, segs[1:], src))
	}
	return cur
}

// spread applies the rest of a target path to each entry of an array.
// An array source aligns by index and grows the target; a scalar source
// applies to every existing entry.
func spread(cur document.Value, rest []document.Segment, src document.Value) document.Value {
	items := append([]document.Value(nil), cur.Items()...)

	if src.Kind() == document.Array {
		srcItems := src.Items()
		for len(items) < len(srcItems) {
			if len(items) > 0 {
				items = append(items, items[0].Clone())
			} else {
				items = append(items, document.ObjectValue())
			}
		}
		for i, s := range srcItems {
			items[i] = put(items[i], rest, s)
		}
		return document.ArrayValue(items...)
	}

	if len(items) == 0 {
		items = append(items, document.ObjectValue())
	}
	for i := range items {
		items[i] = put(items[i], rest, src)
	}
	return document.ArrayValue(items...)
}

func ensureObject(v document.Value) document.Value {
	if v.Kind() == document.Object {
		return v
	}
	return document.ObjectValue()
}
