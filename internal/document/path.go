package document

import (
	"errors"
	"strings"
)

// ── Path Resolver ──────────────────────────────────────────
// A path is a list of field names separated by '.' or '#'. Both separators
// descend into a named field. Whenever an array is met, the remaining path is
// resolved against every element and the results are collected in order.
// '#' only documents that an array is expected at that point.

// ErrPathNotFound marks a path that does not resolve. Resolve itself reports
// absence with a boolean; callers that treat absence as fatal wrap this.
var ErrPathNotFound = errors.New("path not found")

// Separators recognised in a path expression.
const (
	SepField = '.'
	SepArray = '#'
)

type resolveOptions struct {
	flatten bool
}

// ResolveOption tunes Resolve.
type ResolveOption func(*resolveOptions)

// WithFlatten collapses one nesting level whenever a broadcast produces an
// array whose elements are themselves arrays.
func WithFlatten() ResolveOption {
	return func(o *resolveOptions) { o.flatten = true }
}

// Resolve returns the value addressed by path inside v. The boolean is false
// when the path is absent. v is never modified. An empty path returns v.
func Resolve(v Value, path string, opts ...ResolveOption) (Value, bool) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}
	if path == "" {
		return v, true
	}
	return resolve(v, path, &o)
}

// Has reports whether path resolves inside v.
func Has(v Value, path string) bool {
	_, ok := Resolve(v, path)
	return ok
}

func resolve(cur Value, path string, o *resolveOptions) (Value, bool) {
	if cur.kind == Array {
		return broadcast(cur, path, o)
	}
	if cur.kind != Object {
		return Value{}, false
	}

	head, rest, more := cut(path)
	child, ok := cur.obj.Get(head)
	if !ok {
		return Value{}, false
	}
	if !more {
		return child, true
	}
	return resolve(child, rest, o)
}

// broadcast resolves the whole path against each element of arr.
// Elements where the path is absent yield Null to keep indices aligned.
func broadcast(arr Value, path string, o *resolveOptions) (Value, bool) {
	out := make([]Value, 0, len(arr.arr))
	for _, el := range arr.arr {
		r, ok := resolve(el, path, o)
		if !ok {
			r = NullValue()
		}
		if o.flatten && r.kind == Array {
			out = append(out, r.arr...)
			continue
		}
		out = append(out, r)
	}
	return ArrayValue(out...), true
}

// cut splits path at the first separator.
func cut(path string) (head, rest string, found bool) {
	i := strings.IndexAny(path, ".#")
	if i < 0 {
		return path, "", false
	}
	return path[:i], path[i+1:], true
}

// Segment is one step of a parsed path. Sep is the separator that follows
// the segment's name, or 0 for the terminal segment.
type Segment struct {
	Name string
	Sep  byte
}

// IsArray reports whether the segment is followed by '#'.
func (s Segment) IsArray() bool { return s.Sep == SepArray }

// Segments splits a path into its steps, keeping the separator kinds.
func Segments(path string) []Segment {
	var segs []Segment
	for {
		i := strings.IndexAny(path, ".#")
		if i < 0 {
			return append(segs, Segment{Name: path})
		}
		segs = append(segs, Segment{Name: path[:i], Sep: path[i]})
		path = path[i+1:]
	}
}
