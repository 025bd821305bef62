package etl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collector/internal/document"
	"collector/internal/etl"
)

func TestRender_FanOut(t *testing.T) {
	doc := document.MustParse(`{"res":{"data":[{"id":"1","no2":"a"},{"id":"2","no2":"b"}]}}`)

	rows, err := etl.Render("INSERT INTO t VALUES (${res.data#id}, '${res.data#no2}')", doc)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"INSERT INTO t VALUES (1, 'a')",
		"INSERT INTO t VALUES (2, 'b')",
	}, rows)
}

func TestRender_ScalarTokensRepeatOnEveryRow(t *testing.T) {
	doc := document.MustParse(`{"batch":"b7","items":[{"n":"x"},{"n":"y"}]}`)

	rows, err := etl.Render("${batch}:${items#n}:${batch}", doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"b7:x:b7", "b7:y:b7"}, rows)
}

func TestRender_NoTokens(t *testing.T) {
	rows, err := etl.Render("SELECT 1", document.ObjectValue())
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT 1"}, rows)
}

func TestRender_NonStringAndAbsentRenderNull(t *testing.T) {
	doc := document.MustParse(`{"n":5,"o":{"a":"b"},"s":"ok"}`)

	rows, err := etl.Render("${n} ${o} ${missing} ${s}", doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"null null null ok"}, rows)
}

func TestRender_MalformedTokensStayVerbatim(t *testing.T) {
	doc := document.MustParse(`{"a":"A"}`)

	rows, err := etl.Render("x ${a${a}} ${unclosed", doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"x ${aA} ${unclosed"}, rows)
}

func TestRender_SinglePass(t *testing.T) {
	doc := document.MustParse(`{"a":"${b}","b":"nope"}`)

	rows, err := etl.Render("${a}", doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"${b}"}, rows)
}

func TestRender_RowCountMismatch(t *testing.T) {
	doc := document.MustParse(`{"a":[{"v":"1"},{"v":"2"}],"b":[{"v":"1"}]}`)

	_, err := etl.Render("${a#v} ${b#v}", doc)
	assert.ErrorIs(t, err, etl.ErrRowCountMismatch)
}

func TestRender_EmptyAndScalarFanOut(t *testing.T) {
	doc := document.MustParse(`{"empty":[],"one":{"v":"x"}}`)

	rows, err := etl.Render("${empty#v}", doc)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = etl.Render("${missing#v}", doc)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = etl.Render("${one#v}", doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, rows)
}

func TestRender_EmptyItemPathUsesElement(t *testing.T) {
	doc := document.MustParse(`{"ids":["a","b","c"]}`)

	rows, err := etl.Render("DELETE FROM t WHERE id='${ids#}'", doc)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, "DELETE FROM t WHERE id='c'", rows[2])
}

func TestRender_NestedArraysAreFlattened(t *testing.T) {
	doc := document.MustParse(`{"pages":[{"items":[{"id":"1"},{"id":"2"}]},{"items":[{"id":"3"}]}]}`)

	rows, err := etl.Render("${pages.items#id}", doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, rows)
}

func TestRenderTable(t *testing.T) {
	doc := document.MustParse(`{"rows":[{"v":"1"}]}`)

	rows, err := etl.RenderTable("INSERT INTO ${@table} VALUES (${rows#v})", "events", doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"INSERT INTO events VALUES (1)"}, rows)
}

func TestRender_Deterministic(t *testing.T) {
	doc := document.MustParse(`{"d":[{"x":"1"},{"x":"2"},{"x":"3"}]}`)
	first, err := etl.Render("(${d#x})", doc)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := etl.Render("(${d#x})", doc)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
