package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/buger/jsonparser"
)

// ErrInvalidJSON is returned by Parse for input that is not a single JSON value.
var ErrInvalidJSON = errors.New("invalid json")

// Parse decodes JSON text into a Value, preserving object key order.
func Parse(data []byte) (Value, error) {
	if !json.Valid(data) {
		return Value{}, ErrInvalidJSON
	}
	raw, typ, _, err := jsonparser.Get(data)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return decode(raw, typ)
}

// ParseString is Parse for string input.
func ParseString(s string) (Value, error) { return Parse([]byte(s)) }

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(s string) Value {
	v, err := Parse([]byte(s))
	if err != nil {
		panic(fmt.Sprintf("document: MustParse(%q): %v", s, err))
	}
	return v
}

func decode(raw []byte, typ jsonparser.ValueType) (Value, error) {
	switch typ {
	case jsonparser.Null:
		return NullValue(), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		return BoolValue(b), nil
	case jsonparser.Number:
		n, err := jsonparser.ParseFloat(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		return numberLiteral(n, string(raw)), nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		return StringValue(s), nil
	case jsonparser.Array:
		items := []Value{}
		var inner error
		_, err := jsonparser.ArrayEach(raw, func(value []byte, dt jsonparser.ValueType, _ int, e error) {
			if inner != nil {
				return
			}
			if e != nil {
				inner = e
				return
			}
			it, e := decode(value, dt)
			if e != nil {
				inner = e
				return
			}
			items = append(items, it)
		})
		if err == nil {
			err = inner
		}
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		return ArrayValue(items...), nil
	case jsonparser.Object:
		obj := ObjectValue()
		err := jsonparser.ObjectEach(raw, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
			// ObjectEach hands over keys already unescaped.
			k := string(key)
			it, err := decode(value, dt)
			if err != nil {
				return err
			}
			obj.Set(k, it)
			return nil
		})
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		return obj, nil
	default:
		return Value{}, fmt.Errorf("%w: unexpected token %v", ErrInvalidJSON, typ)
	}
}

// MarshalJSON encodes v with object keys in insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendJSON(nil), nil
}

// UnmarshalJSON decodes JSON text into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String returns the compact JSON encoding of v.
func (v Value) String() string { return string(v.appendJSON(nil)) }

func (v Value) appendJSON(b []byte) []byte {
	switch v.kind {
	case Bool:
		return strconv.AppendBool(b, v.b)
	case Number:
		if v.s != "" {
			return append(b, v.s...)
		}
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return append(b, "null"...)
		}
		return strconv.AppendFloat(b, v.n, 'f', -1, 64)
	case String:
		return appendQuoted(b, v.s)
	case Array:
		b = append(b, '[')
		for i, it := range v.arr {
			if i > 0 {
				b = append(b, ',')
			}
			b = it.appendJSON(b)
		}
		return append(b, ']')
	case Object:
		b = append(b, '{')
		first := true
		for p := v.obj.Oldest(); p != nil; p = p.Next() {
			if !first {
				b = append(b, ',')
			}
			first = false
			b = appendQuoted(b, p.Key)
			b = append(b, ':')
			b = p.Value.appendJSON(b)
		}
		return append(b, '}')
	default:
		return append(b, "null"...)
	}
}

const hex = "0123456789abcdef"

func appendQuoted(b []byte, s string) []byte {
	b = append(b, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				b = append(b, '\\', c)
			case c == '\n':
				b = append(b, '\\', 'n')
			case c == '\r':
				b = append(b, '\\', 'r')
			case c == '\t':
				b = append(b, '\\', 't')
			case c < 0x20:
				b = append(b, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xF])
			default:
				b = append(b, c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b = append(b, "\ufffd"...)
		} else {
			b = append(b, s[i:i+size]...)
		}
		i += size
	}
	return append(b, '"')
}

// FromAny converts plain Go values (as produced by database drivers, YAML or
// encoding/json) into a Value. Map keys are sorted since Go maps carry no order.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return NullValue()
	case Value:
		return t
	case bool:
		return BoolValue(t)
	case string:
		return StringValue(t)
	case []byte:
		return StringValue(string(t))
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return numberLiteral(float64(t), strconv.Itoa(t))
	case int8, int16, int32, int64:
		i := reflect.ValueOf(t).Int()
		return numberLiteral(float64(i), strconv.FormatInt(i, 10))
	case uint, uint8, uint16, uint32, uint64:
		u := reflect.ValueOf(t).Uint()
		return numberLiteral(float64(u), strconv.FormatUint(u, 10))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return StringValue(t.String())
		}
		return numberLiteral(f, t.String())
	case time.Time:
		return StringValue(t.Format(time.RFC3339))
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = FromAny(it)
		}
		return ArrayValue(items...)
	case []Value:
		return ArrayValue(t...)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := ObjectValue()
		for _, k := range keys {
			obj.Set(k, FromAny(t[k]))
		}
		return obj
	case fmt.Stringer:
		return StringValue(t.String())
	default:
		return StringValue(fmt.Sprint(t))
	}
}
