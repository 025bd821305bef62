package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collector/internal/dbclient"
	"collector/internal/etl"
	"collector/internal/etl/sources"
	"collector/internal/service"
	"collector/internal/storage"
)

type fixture struct {
	srv  *Server
	runs *service.RunService
	dir  string
	dest string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := dbclient.NewProvider(storage.NewDBConnectionStore(db), nil, 0)
	logs := storage.NewRunLogStore(db)
	collector := etl.NewCollector(
		sources.NewRegistry(sources.Deps{Querier: provider, Executor: provider}),
		logs, provider,
		etl.WithLogger(logger),
		etl.WithLimits(etl.Limits{MaxRetries: 1, RetryDelay: time.Millisecond, FlushRows: 100, FlushPages: 10, SampleLen: 50}),
	)
	runs := service.NewRunService(storage.NewRunStore(db), logs, collector, &service.MockEmitter{}, service.Options{Logger: logger})
	t.Cleanup(runs.Stop)

	dest := "sqlite://" + filepath.Join(dir, "dest.db")
	errs, err := provider.ExecuteDB(context.Background(), dest, []string{"CREATE TABLE items (id TEXT, name TEXT)"})
	require.NoError(t, err)
	require.NoError(t, errs[0])

	srv := New(Deps{Runs: runs, Logger: logger})
	return &fixture{srv: srv, runs: runs, dir: dir, dest: dest}
}

func (f *fixture) createRun(t *testing.T) *etl.Run {
	t.Helper()
	path := filepath.Join(f.dir, "source.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data":[{"id":"1","name":"a"},{"id":"2","name":"b"}]}`), 0o644))
	run, err := f.runs.CreateRun(context.Background(), &etl.Run{
		Name:        "items",
		SourceType:  "json_file",
		Source:      etl.SourceConfig{Locator: path},
		Rules:       etl.RuleSet{{Source: "data#id", Target: "rows#id"}, {Source: "data#name", Target: "rows#name"}},
		Template:    "INSERT INTO ${@table} (id, name) VALUES ('${rows#id}', '${rows#name}')",
		Destination: etl.Destination{Locator: f.dest, Table: "items"},
		Enabled:     true,
	})
	require.NoError(t, err)
	return run
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	return out
}

func TestRunNowTool(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)
	ctx := context.Background()

	res, err := f.srv.handleRunNow(ctx, callRequest(map[string]any{"runId": "items"}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, run.ID, out["runId"])
	assert.Equal(t, "succeeded", out["status"])
	assert.EqualValues(t, 2, out["rows"])
	assert.NotContains(t, out, "error")

	res, err = f.srv.handleListRunLogs(ctx, callRequest(map[string]any{"runId": run.ID}))
	require.NoError(t, err)
	var logs []etl.RunLog
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, out["logId"], logs[0].ID)
}

func TestRunNowToolMissingRun(t *testing.T) {
	f := newFixture(t)
	_, err := f.srv.handleRunNow(context.Background(), callRequest(map[string]any{"runId": "nope"}))
	assert.Error(t, err)

	_, err = f.srv.handleRunNow(context.Background(), callRequest(nil))
	assert.Error(t, err)
}

func TestListRunsTool(t *testing.T) {
	f := newFixture(t)
	f.createRun(t)

	res, err := f.srv.handleListRuns(context.Background(), callRequest(nil))
	require.NoError(t, err)
	var runs []runSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "items", runs[0].Name)
	assert.Equal(t, "json_file", runs[0].SourceType)
}

func TestPreviewRunTool(t *testing.T) {
	f := newFixture(t)
	f.createRun(t)

	res, err := f.srv.handlePreviewRun(context.Background(), callRequest(map[string]any{"runId": "items"}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Len(t, out["statements"], 2)
}

func TestResolvePathTool(t *testing.T) {
	f := newFixture(t)

	res, err := f.srv.handleResolvePath(context.Background(), callRequest(map[string]any{
		"documentJSON": `{"data":[{"id":1},{"id":2}]}`,
		"path":         "data#id",
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, true, out["found"])
	assert.Equal(t, []any{1.0, 2.0}, out["value"])

	// Already-decoded JSON arguments are accepted too.
	res, err = f.srv.handleResolvePath(context.Background(), callRequest(map[string]any{
		"documentJSON": map[string]any{"a": "x"},
		"path":         "b",
	}))
	require.NoError(t, err)
	assert.Equal(t, false, decodeResult(t, res)["found"])
}

func TestMapDocumentTool(t *testing.T) {
	f := newFixture(t)
	args := map[string]any{
		"documentJSON": `{"data":[{"a":1},{"a":2}]}`,
		"rulesJSON":    `[["data#a","res#aa"],["missing","x"]]`,
	}

	res, err := f.srv.handleMapDocument(context.Background(), callRequest(args))
	require.NoError(t, err)
	assert.JSONEq(t, `{"res":[{"aa":1},{"aa":2}]}`, resultText(t, res))

	args["strict"] = true
	_, err = f.srv.handleMapDocument(context.Background(), callRequest(args))
	assert.Error(t, err)
}

func TestRenderTemplateTool(t *testing.T) {
	f := newFixture(t)

	res, err := f.srv.handleRenderTemplate(context.Background(), callRequest(map[string]any{
		"template":     "INSERT INTO ${@table} VALUES (${rows#id})",
		"documentJSON": `{"rows":[{"id":"1"},{"id":"2"}]}`,
		"table":        "t",
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.EqualValues(t, 2, out["count"])
	assert.Equal(t, []any{"INSERT INTO t VALUES (1)", "INSERT INTO t VALUES (2)"}, out["statements"])

	_, err = f.srv.handleRenderTemplate(context.Background(), callRequest(map[string]any{"documentJSON": `{}`}))
	assert.Error(t, err)
}

func TestRunLogsResource(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)
	_, err := f.runs.RunNow(context.Background(), run.ID)
	require.NoError(t, err)

	var req mcp.ReadResourceRequest
	req.Params.URI = "collector://runs/" + run.ID + "/logs"
	contents, err := f.srv.handleRunLogsResource(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text := contents[0].(mcp.TextResourceContents).Text
	var logs []etl.RunLog
	require.NoError(t, json.Unmarshal([]byte(text), &logs))
	assert.Len(t, logs, 1)
}

func TestRunIDFromLogsURI(t *testing.T) {
	assert.Equal(t, "abc-123", runIDFromLogsURI("collector://runs/abc-123/logs"))
	assert.Empty(t, runIDFromLogsURI("collector://runs/abc/def/logs"))
	assert.Empty(t, runIDFromLogsURI("notes://page/abc/blocks"))
	assert.Empty(t, runIDFromLogsURI("collector://runs/abc"))
}
