package etl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collector/internal/document"
	"collector/internal/etl"
)

func mapJSON(t *testing.T, in string, rules etl.RuleSet, opts ...etl.MapOption) string {
	t.Helper()
	out, err := etl.Map(document.MustParse(in), rules, opts...)
	require.NoError(t, err)
	return out.String()
}

func TestMap_Rename(t *testing.T) {
	got := mapJSON(t, `{"a":1}`, etl.RuleSet{{Source: "a", Target: "b"}})
	assert.Equal(t, `{"b":1}`, got)
}

func TestMap_ArrayRulesAlignByIndex(t *testing.T) {
	in := `{"data":[{"a":1,"b":2},{"a":2,"b":3}]}`
	rules := etl.RuleSet{
		{Source: "data#a", Target: "res#aa"},
		{Source: "data#b", Target: "res#bb"},
	}
	assert.Equal(t, `{"res":[{"aa":1,"bb":2},{"aa":2,"bb":3}]}`, mapJSON(t, in, rules))
}

func TestMap_ScalarAppliesToEveryEntry(t *testing.T) {
	in := `{"data":[{"a":1},{"a":2}],"src":"api"}`
	rules := etl.RuleSet{
		{Source: "data#a", Target: "rows#id"},
		{Source: "src", Target: "rows#origin"},
	}
	assert.Equal(t, `{"rows":[{"id":1,"origin":"api"},{"id":2,"origin":"api"}]}`, mapJSON(t, in, rules))
}

func TestMap_ScalarIntoEmptyArrayCreatesOneEntry(t *testing.T) {
	assert.Equal(t, `{"rows":[{"v":"x"}]}`,
		mapJSON(t, `{"s":"x"}`, etl.RuleSet{{Source: "s", Target: "rows#v"}}))
}

func TestMap_GrowClonesFirstEntry(t *testing.T) {
	in := `{"one":[1],"three":[7,8,9]}`
	rules := etl.RuleSet{
		{Source: "one", Target: "r#x"},
		{Source: "three", Target: "r#y"},
	}
	assert.Equal(t, `{"r":[{"x":1,"y":7},{"x":1,"y":8},{"x":1,"y":9}]}`, mapJSON(t, in, rules))
}

func TestMap_NeverTruncates(t *testing.T) {
	in := `{"long":[1,2,3],"short":[5]}`
	rules := etl.RuleSet{
		{Source: "long", Target: "r#x"},
		{Source: "short", Target: "r#y"},
	}
	assert.Equal(t, `{"r":[{"x":1,"y":5},{"x":2},{"x":3}]}`, mapJSON(t, in, rules))
}

func TestMap_EmptyTerminalReplacesEntry(t *testing.T) {
	in := `{"data":[{"id":"a"},{"id":"b"}]}`
	assert.Equal(t, `{"ids":["a","b"]}`,
		mapJSON(t, in, etl.RuleSet{{Source: "data#id", Target: "ids#"}}))
}

func TestMap_NestedObjects(t *testing.T) {
	in := `{"user":{"name":"ann","tags":["x","y"]}}`
	rules := etl.RuleSet{
		{Source: "user.name", Target: "out.person.name"},
		{Source: "user.tags", Target: "out.person.tags"},
	}
	assert.Equal(t, `{"out":{"person":{"name":"ann","tags":["x","y"]}}}`, mapJSON(t, in, rules))
}

func TestMap_MissingSourceIsSkipped(t *testing.T) {
	rules := etl.RuleSet{
		{Source: "nope", Target: "x"},
		{Source: "a", Target: "y"},
	}
	assert.Equal(t, `{"y":1}`, mapJSON(t, `{"a":1}`, rules))
}

func TestMap_StrictFailsOnMissingSource(t *testing.T) {
	_, err := etl.Map(document.MustParse(`{"a":1}`), etl.RuleSet{{Source: "nope", Target: "x"}}, etl.Strict())
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrPathNotFound)
}

func TestMap_PureAndDeterministic(t *testing.T) {
	in := document.MustParse(`{"data":[{"a":{"k":1}},{"a":{"k":2}}]}`)
	before := in.String()
	rules := etl.RuleSet{{Source: "data#a", Target: "res#obj"}}

	first, err := etl.Map(in, rules)
	require.NoError(t, err)
	second, err := etl.Map(in, rules)
	require.NoError(t, err)

	assert.Equal(t, first.String(), second.String())

	res, _ := first.Get("res")
	obj, _ := res.Items()[0].Get("obj")
	obj.Set("k", document.StringValue("changed"))
	assert.Equal(t, before, in.String())
}
