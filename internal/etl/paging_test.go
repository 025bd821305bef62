package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collector/internal/document"
)

func TestPageRenderer_CounterAndExpressions(t *testing.T) {
	run := &Run{
		Source: SourceConfig{
			Locator: "https://api.example.com/items?page=${page}&offset=${(page-1)*50}",
			Body:    `{"size":"50","filter":{"kind":"open"}}`,
		},
	}
	r := newPageRenderer(run)

	got, err := r.render(run.Source.Locator, 3)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/items?page=3&offset=100", got)

	got, err = r.render("size=${size}&kind=${filter.kind}&x=${missing}", 1)
	require.NoError(t, err)
	assert.Equal(t, "size=50&kind=open&x=null", got)
}

func TestPageRenderer_CustomCounterAndParams(t *testing.T) {
	run := &Run{
		Source: SourceConfig{
			Body:    `{"cursor":${p},"limit":${limit}}`,
			Options: map[string]string{"params": `{"limit":25}`},
		},
		Paging: PagingPolicy{Counter: "p", StartPage: 0},
	}
	r := newPageRenderer(run)

	got, err := r.render(run.Source.Body, 7)
	require.NoError(t, err)
	assert.Equal(t, `{"cursor":7,"limit":25}`, got)
}

func TestPageRenderer_BadExpression(t *testing.T) {
	r := pageRenderer{counter: "page", params: document.ObjectValue()}
	_, err := r.render("${(page + 1}", 1)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestPageRenderer_RenderRequest(t *testing.T) {
	run := &Run{Source: SourceConfig{
		Locator: "db-1",
		Query:   "SELECT * FROM t LIMIT 10 OFFSET ${(page-1)*10}",
		Method:  "POST",
	}}
	req, err := newPageRenderer(run).renderRequest(run.Source, 2)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t LIMIT 10 OFFSET 10", req.Query)
	assert.Equal(t, "db-1", req.Locator)
	assert.Equal(t, "POST", req.Method)
}

func TestHasNextPage(t *testing.T) {
	next, n := hasNextPage(document.MustParse(`{"data":{"items":[1,2]}}`), "data.items")
	assert.True(t, next)
	assert.Equal(t, 2, n)

	next, _ = hasNextPage(document.MustParse(`{"data":{"items":[]}}`), "data.items")
	assert.False(t, next)

	next, _ = hasNextPage(document.MustParse(`{"data":{"items":"x"}}`), "data.items")
	assert.False(t, next)

	next, _ = hasNextPage(document.MustParse(`{}`), "data.items")
	assert.False(t, next)
}

func TestPagingPolicy_Validate(t *testing.T) {
	assert.NoError(t, PagingPolicy{}.Validate())
	assert.ErrorIs(t, PagingPolicy{Enabled: true, MaxRequestCount: 3}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, PagingPolicy{Enabled: true, ResultListFieldPath: "x"}.Validate(), ErrConfiguration)
	assert.NoError(t, PagingPolicy{Enabled: true, ResultListFieldPath: "x", MaxRequestCount: 1}.Validate())
}

func TestBatch(t *testing.T) {
	l := Limits{FlushRows: 3, FlushPages: 2}

	var b batch
	b = b.add([]string{"a", "b"})
	assert.False(t, b.due(l))
	b = b.add(nil)
	assert.True(t, b.due(l), "page threshold")

	b = batch{}.add([]string{"a", "b", "c", "d"})
	assert.True(t, b.due(l), "row threshold")
	assert.Equal(t, 1, b.pages)
}
