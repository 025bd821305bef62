package document_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collector/internal/document"
)

func TestParse_KeepsKeyOrderAndNumberLiterals(t *testing.T) {
	in := `{"z":1,"a":{"y":1.50,"b":[true,null,"s"]},"m":-0.0001e3}`
	v, err := document.ParseString(in)
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "a", "m"}, v.Keys())
	assert.Equal(t, in, v.String())
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "{", `{"a":}`, "[1,]", "nope"} {
		_, err := document.ParseString(in)
		assert.ErrorIs(t, err, document.ErrInvalidJSON, in)
	}
}

func TestParse_Escapes(t *testing.T) {
	v, err := document.ParseString(`{"k\"ey":"line\nnext é"}`)
	require.NoError(t, err)

	s, ok := v.Get(`k"ey`)
	require.True(t, ok)
	str, _ := s.AsString()
	assert.Equal(t, "line\nnext é", str)
	assert.Equal(t, `{"k\"ey":"line\nnext é"}`, v.String())
}

func TestValue_CloneIsIndependent(t *testing.T) {
	orig := document.MustParse(`{"a":{"b":[1]}}`)
	cp := orig.Clone()

	inner, _ := cp.Get("a")
	inner.Set("c", document.StringValue("x"))

	assert.Equal(t, `{"a":{"b":[1]}}`, orig.String())
	assert.Equal(t, `{"a":{"b":[1],"c":"x"}}`, cp.String())
}

func TestValue_Equal(t *testing.T) {
	a := document.MustParse(`{"x":1,"y":[1,2]}`)
	assert.True(t, a.Equal(document.MustParse(`{"x":1.0,"y":[1,2]}`)))
	assert.False(t, a.Equal(document.MustParse(`{"y":[1,2],"x":1}`)))
	assert.False(t, a.Equal(document.MustParse(`{"x":1,"y":[1]}`)))
	assert.True(t, document.NullValue().Equal(document.Value{}))
}

func TestValue_JSONRoundTripThroughStdlib(t *testing.T) {
	type wrapper struct {
		Doc document.Value `json:"doc"`
	}
	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"doc":{"b":2,"a":1}}`), &w))
	assert.Equal(t, []string{"b", "a"}, w.Doc.Keys())

	out, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"doc":{"b":2,"a":1}}`, string(out))
}

func TestFromAny(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	v := document.FromAny(map[string]any{
		"n":    int64(42),
		"s":    []byte("raw"),
		"t":    ts,
		"list": []any{1, "two", nil},
	})
	assert.Equal(t, `{"list":[1,"two",null],"n":42,"s":"raw","t":"2024-01-02T03:04:05Z"}`, v.String())
}
