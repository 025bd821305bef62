package document

import (
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ── Value ──────────────────────────────────────────────────
// A Value is a semi-structured document node: null, bool, number, string,
// ordered array, or object with unique keys in insertion order.
// The zero Value is Null.

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

type fields = orderedmap.OrderedMap[string, Value]

// Value is a closed tagged union. Use the constructors below to build one.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string // string payload, or the original literal of a number
	arr  []Value
	obj  *fields
}

// Field is a single key/value pair of an object.
type Field struct {
	Key   string
	Value Value
}

func NullValue() Value { return Value{} }

func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

func NumberValue(n float64) Value { return Value{kind: Number, n: n} }

func StringValue(s string) Value { return Value{kind: String, s: s} }

// numberLiteral keeps the source text of a number so it can be emitted unchanged.
func numberLiteral(n float64, lit string) Value { return Value{kind: Number, n: n, s: lit} }

// ArrayValue builds an array from items. The slice is owned by the result.
func ArrayValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: Array, arr: items}
}

// ObjectValue builds an object from fields in order. Later duplicates
// overwrite earlier values but keep the first position.
func ObjectValue(fs ...Field) Value {
	m := orderedmap.New[string, Value]()
	for _, f := range fs {
		m.Set(f.Key, f.Value)
	}
	return Value{kind: Object, obj: m}
}

// F is shorthand for a Field.
func F(key string, v Value) Field { return Field{Key: key, Value: v} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == Null }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == Bool }

func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == Number }

func (v Value) AsString() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

// Items returns the elements of an array, or nil for any other kind.
// Callers must not modify the returned slice.
func (v Value) Items() []Value {
	if v.kind != Array {
		return nil
	}
	return v.arr
}

// Len reports the number of array elements or object fields.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return v.obj.Len()
	}
	return 0
}

// Get looks up key on an object.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	return v.obj.Get(key)
}

// Keys returns object keys in insertion order.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	keys := make([]string, 0, v.obj.Len())
	for p := v.obj.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Fields returns object fields in insertion order.
func (v Value) Fields() []Field {
	if v.kind != Object {
		return nil
	}
	fs := make([]Field, 0, v.obj.Len())
	for p := v.obj.Oldest(); p != nil; p = p.Next() {
		fs = append(fs, Field{Key: p.Key, Value: p.Value})
	}
	return fs
}

// Set assigns key on an object in place. It is meant for documents the
// caller is building; it panics when v is not an object.
func (v Value) Set(key string, val Value) {
	if v.kind != Object {
		panic("document: Set on " + v.kind.String())
	}
	v.obj.Set(key, val)
}

// Delete removes key from an object in place.
func (v Value) Delete(key string) {
	if v.kind == Object {
		v.obj.Delete(key)
	}
}

// Clone returns a deep copy that shares no mutable state with v.
func (v Value) Clone() Value {
	switch v.kind {
	case Array:
		items := make([]Value, len(v.arr))
		for i, it := range v.arr {
			items[i] = it.Clone()
		}
		return Value{kind: Array, arr: items}
	case Object:
		m := orderedmap.New[string, Value]()
		for p := v.obj.Oldest(); p != nil; p = p.Next() {
			m.Set(p.Key, p.Value.Clone())
		}
		return Value{kind: Object, obj: m}
	default:
		return v
	}
}

// ShallowCopy copies the top-level fields of an object; nested values are shared.
func (v Value) ShallowCopy() Value {
	if v.kind != Object {
		return v
	}
	m := orderedmap.New[string, Value]()
	for p := v.obj.Oldest(); p != nil; p = p.Next() {
		m.Set(p.Key, p.Value)
	}
	return Value{kind: Object, obj: m}
}

// Equal reports deep equality. Object key order is significant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == o.b
	case Number:
		return v.n == o.n
	case String:
		return v.s == o.s
	case Array:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		if v.obj.Len() != o.obj.Len() {
			return false
		}
		for a, b := v.obj.Oldest(), o.obj.Oldest(); a != nil; a, b = a.Next(), b.Next() {
			if a.Key != b.Key || !a.Value.Equal(b.Value) {
				return false
			}
		}
		return true
	}
	return false
}
