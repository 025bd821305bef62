package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collector/internal/dbclient"
	"collector/internal/etl"
	"collector/internal/etl/sources"
	"collector/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// RunService tests run real pipelines: json_file sources into a
// temp sqlite destination, with runs and logs in a temp store.
// ─────────────────────────────────────────────────────────────

type harness struct {
	svc      *RunService
	runs     *storage.RunStore
	logs     *storage.RunLogStore
	provider *dbclient.Provider
	emitter  *MockEmitter
	dir      string
	dest     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := dbclient.NewProvider(nil, nil, 0)
	runs := storage.NewRunStore(db)
	logs := storage.NewRunLogStore(db)
	collector := etl.NewCollector(
		sources.NewRegistry(sources.Deps{Querier: provider, Executor: provider}),
		logs, provider,
		etl.WithLogger(logger),
		etl.WithLimits(etl.Limits{MaxRetries: 1, RetryDelay: time.Millisecond, FlushRows: 100, FlushPages: 10, SampleLen: 50}),
	)
	emitter := &MockEmitter{}
	svc := NewRunService(runs, logs, collector, emitter, Options{Debounce: 20 * time.Millisecond, Logger: logger})
	t.Cleanup(svc.Stop)

	dest := "sqlite://" + filepath.Join(dir, "dest.db")
	errs, err := provider.ExecuteDB(context.Background(), dest, []string{"CREATE TABLE items (id TEXT, name TEXT)"})
	require.NoError(t, err)
	require.NoError(t, errs[0])

	return &harness{svc: svc, runs: runs, logs: logs, provider: provider, emitter: emitter, dir: dir, dest: dest}
}

func (h *harness) writeSource(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(h.dir, "source.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func (h *harness) run(path string) *etl.Run {
	return &etl.Run{
		Name:        "items",
		SourceType:  "json_file",
		Source:      etl.SourceConfig{Locator: path},
		Rules:       etl.RuleSet{{Source: "data#id", Target: "rows#id"}, {Source: "data#name", Target: "rows#name"}},
		Template:    "INSERT INTO ${@table} (id, name) VALUES ('${rows#id}', '${rows#name}')",
		Destination: etl.Destination{Locator: h.dest, Table: "items"},
		Enabled:     true,
	}
}

func (h *harness) count(t *testing.T) int {
	t.Helper()
	rows, err := h.provider.QueryDB(context.Background(), h.dest, "SELECT COUNT(*) AS n FROM items")
	require.NoError(t, err)
	n, _ := rows[0].Get("n")
	f, _ := n.AsNumber()
	return int(f)
}

const twoItems = `{"data":[{"id":"1","name":"a"},{"id":"2","name":"b"}]}`

func TestRunService_RunNow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, err := h.svc.CreateRun(ctx, h.run(h.writeSource(t, twoItems)))
	require.NoError(t, err)

	res, err := h.svc.RunNow(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, etl.StatusSucceeded, res.Status)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 2, h.count(t))

	stored, err := h.svc.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, etl.StatusSucceeded, stored.LastStatus)
	assert.Empty(t, stored.LastError)

	logs, err := h.svc.ListRunLogs(ctx, "items", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, res.LogID, logs[0].ID)
	assert.Equal(t, etl.StatusSucceeded, logs[0].Status)
	assert.Contains(t, logs[0].Text, "run succeeded")

	assert.Len(t, h.emitter.Named(EventRunStarted), 1)
	assert.Len(t, h.emitter.Named(EventRunCompleted), 1)
	assert.Len(t, h.emitter.Named(EventRunsChanged), 1)
}

func TestRunService_RunNowRecordsFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, err := h.svc.CreateRun(ctx, h.run(filepath.Join(h.dir, "missing.json")))
	require.NoError(t, err)

	res, err := h.svc.RunNow(ctx, run.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, etl.ErrConnectivity))
	assert.Equal(t, etl.StatusFailed, res.Status)

	stored, err := h.svc.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, etl.StatusFailed, stored.LastStatus)
	assert.NotEmpty(t, stored.LastError)
}

func TestRunService_RejectsConcurrentExecution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run, err := h.svc.CreateRun(ctx, h.run(h.writeSource(t, twoItems)))
	require.NoError(t, err)

	require.True(t, h.svc.running.TryLock(run.ID))
	_, err = h.svc.RunNow(ctx, run.ID)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
	h.svc.running.Unlock(run.ID)

	_, err = h.svc.RunNow(ctx, run.ID)
	assert.NoError(t, err)
}

func TestRunService_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.writeSource(t, twoItems)

	bad := h.run(path)
	bad.SourceType = "ftp"
	_, err := h.svc.CreateRun(ctx, bad)
	assert.True(t, errors.Is(err, etl.ErrConfiguration))

	bad = h.run(path)
	bad.TriggerType, bad.TriggerConfig = etl.TriggerSchedule, "every day"
	_, err = h.svc.CreateRun(ctx, bad)
	assert.True(t, errors.Is(err, etl.ErrConfiguration))

	bad = h.run(path)
	bad.TriggerType = etl.TriggerFileWatch
	_, err = h.svc.CreateRun(ctx, bad)
	assert.True(t, errors.Is(err, etl.ErrConfiguration))

	bad = h.run(path)
	bad.Name = ""
	_, err = h.svc.CreateRun(ctx, bad)
	assert.True(t, errors.Is(err, etl.ErrConfiguration))

	runs, err := h.svc.ListRuns()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunService_ImportRunUpserts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	src := h.writeSource(t, twoItems)

	def := filepath.Join(h.dir, "items.yaml")
	write := func(table string) {
		yaml := "name: items\n" +
			"sourceType: json_file\n" +
			"source:\n  locator: " + src + "\n" +
			"rules:\n  - [\"data#id\", \"rows#id\"]\n" +
			"template: \"DELETE FROM ${@table} WHERE id = '${rows#id}'\"\n" +
			"destination:\n  locator: " + h.dest + "\n  table: " + table + "\n"
		require.NoError(t, os.WriteFile(def, []byte(yaml), 0o644))
	}

	write("items")
	first, err := h.svc.ImportRun(ctx, def)
	require.NoError(t, err)

	write("archive")
	second, err := h.svc.ImportRun(ctx, def)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	runs, err := h.svc.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "archive", runs[0].Destination.Table)
	assert.Equal(t, etl.TriggerManual, runs[0].TriggerType)
}

func TestRunService_Preview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run, err := h.svc.CreateRun(ctx, h.run(h.writeSource(t, twoItems)))
	require.NoError(t, err)

	pv, err := h.svc.Preview(ctx, run.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"INSERT INTO items (id, name) VALUES ('1', 'a')",
		"INSERT INTO items (id, name) VALUES ('2', 'b')",
	}, pv.Statements)
	assert.Equal(t, 0, h.count(t))

	logs, err := h.svc.ListRunLogs(ctx, run.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRunService_DeleteRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run, err := h.svc.CreateRun(ctx, h.run(h.writeSource(t, twoItems)))
	require.NoError(t, err)
	_, err = h.svc.RunNow(ctx, run.ID)
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteRun(ctx, "items"))
	_, err = h.svc.GetRun(run.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	logs, err := h.logs.ListRunLogs(ctx, run.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRunService_AdHocExecute(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Execute(context.Background(), h.run(h.writeSource(t, twoItems)), etl.DryRun())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 0, h.count(t))
}

func TestRunService_ScheduleTriggers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.writeSource(t, twoItems)

	r := h.run(path)
	r.TriggerType, r.TriggerConfig = etl.TriggerSchedule, "*/5 * * * *"
	_, err := h.svc.CreateRun(ctx, r)
	require.NoError(t, err)

	disabled := h.run(path)
	disabled.Name = "disabled"
	disabled.TriggerType, disabled.TriggerConfig = etl.TriggerSchedule, "0 * * * *"
	disabled.Enabled = false
	_, err = h.svc.CreateRun(ctx, disabled)
	require.NoError(t, err)

	scheduled, watched := h.svc.RestartTriggers(ctx)
	assert.Equal(t, 1, scheduled)
	assert.Equal(t, 0, watched)

	h.svc.Stop()
	h.svc.Stop()
}

func TestRunService_FileWatchTrigger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.writeSource(t, twoItems)

	r := h.run(path)
	r.TriggerType, r.TriggerConfig = etl.TriggerFileWatch, path
	run, err := h.svc.CreateRun(ctx, r)
	require.NoError(t, err)

	_, watched := h.svc.RestartTriggers(ctx)
	require.Equal(t, 1, watched)

	require.NoError(t, os.WriteFile(path, []byte(twoItems), 0o644))

	require.Eventually(t, func() bool {
		logs, err := h.logs.ListRunLogs(ctx, run.ID, 10)
		return err == nil && len(logs) > 0 && logs[0].Status == etl.StatusSucceeded
	}, 5*time.Second, 20*time.Millisecond)

	h.svc.WaitRunning(ctx)
	assert.GreaterOrEqual(t, h.count(t), 2)
}

func TestRunService_WaitRunningImmediate(t *testing.T) {
	h := newHarness(t)
	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		h.svc.WaitRunning(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitRunning hung with no running runs")
	}
}
