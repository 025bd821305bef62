package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"collector/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// RunService — stored runs, executions and triggers
// ─────────────────────────────────────────────────────────────

// ErrAlreadyRunning is returned by RunNow when the run is executing.
var ErrAlreadyRunning = errors.New("run is already running")

// RunRepository persists run definitions.
type RunRepository interface {
	CreateRun(run *etl.Run) error
	GetRun(id string) (*etl.Run, error)
	UpdateRun(run *etl.Run) error
	UpdateRunStatus(id string, status etl.RunStatus, errMsg string) error
	DeleteRun(id string) error
	ListRuns() ([]etl.Run, error)
	ListTriggeredRuns() ([]etl.Run, error)
}

// RunLogReader reads back the logs written by the collector.
type RunLogReader interface {
	GetRunLog(ctx context.Context, id string) (*etl.RunLog, error)
	ListRunLogs(ctx context.Context, runID string, limit int) ([]etl.RunLog, error)
}

// Options tunes a RunService.
type Options struct {
	RunTimeout time.Duration // bound on one execution; 0 disables
	Debounce   time.Duration // file_watch quiet period; default 500ms
	Logger     *slog.Logger
}

// RunService manages stored runs, executes them and keeps the schedule and
// file watch triggers in sync with the store.
type RunService struct {
	runs      RunRepository
	logs      RunLogReader
	collector *etl.Collector
	emitter   EventEmitter
	opts      Options
	logger    *slog.Logger
	running   runningGuard

	mu       sync.Mutex
	triggers *triggers
}

// NewRunService creates a RunService ready for use.
func NewRunService(runs RunRepository, logs RunLogReader, collector *etl.Collector, emitter EventEmitter, opts Options) *RunService {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = LogEmitter{Logger: logger}
	}
	return &RunService{
		runs:      runs,
		logs:      logs,
		collector: collector,
		emitter:   emitter,
		opts:      opts,
		logger:    logger,
	}
}

// ── Run CRUD ───────────────────────────────────────────────

// validate checks a run before it is stored.
func (s *RunService) validate(run *etl.Run) error {
	if run.Name == "" {
		return fmt.Errorf("%w: name is required", etl.ErrConfiguration)
	}
	if err := run.Validate(); err != nil {
		return err
	}
	known := false
	for _, spec := range s.collector.Sources() {
		if spec.Type == run.SourceType {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: unknown source type %q", etl.ErrConfiguration, run.SourceType)
	}
	switch run.TriggerType {
	case "", etl.TriggerManual:
	case etl.TriggerSchedule:
		if _, err := cron.ParseStandard(run.TriggerConfig); err != nil {
			return fmt.Errorf("%w: schedule %q: %v", etl.ErrConfiguration, run.TriggerConfig, err)
		}
	case etl.TriggerFileWatch:
		if run.TriggerConfig == "" {
			return fmt.Errorf("%w: file_watch requires a path", etl.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown trigger type %q", etl.ErrConfiguration, run.TriggerType)
	}
	return nil
}

func (s *RunService) CreateRun(ctx context.Context, run *etl.Run) (*etl.Run, error) {
	if err := s.validate(run); err != nil {
		return nil, err
	}
	if err := s.runs.CreateRun(run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	s.changed(ctx, run.ID)
	return run, nil
}

// ImportRun creates the run defined in path, or replaces the stored run
// with the same name.
func (s *RunService) ImportRun(ctx context.Context, path string) (*etl.Run, error) {
	run, err := etl.LoadRun(path)
	if err != nil {
		return nil, err
	}
	if existing, err := s.runs.GetRun(run.Name); err == nil {
		run.ID = existing.ID
		return run, s.UpdateRun(ctx, run)
	}
	return s.CreateRun(ctx, run)
}

func (s *RunService) GetRun(id string) (*etl.Run, error) {
	return s.runs.GetRun(id)
}

func (s *RunService) ListRuns() ([]etl.Run, error) {
	return s.runs.ListRuns()
}

func (s *RunService) UpdateRun(ctx context.Context, run *etl.Run) error {
	if err := s.validate(run); err != nil {
		return err
	}
	if err := s.runs.UpdateRun(run); err != nil {
		return err
	}
	s.changed(ctx, run.ID)
	return nil
}

func (s *RunService) DeleteRun(ctx context.Context, id string) error {
	run, err := s.runs.GetRun(id)
	if err != nil {
		return err
	}
	if err := s.runs.DeleteRun(run.ID); err != nil {
		return err
	}
	s.changed(ctx, run.ID)
	return nil
}

// changed rebuilds active triggers and notifies listeners.
func (s *RunService) changed(ctx context.Context, runID string) {
	s.mu.Lock()
	active := s.triggers != nil
	s.mu.Unlock()
	if active {
		s.RestartTriggers(ctx)
	}
	s.emitter.Emit(ctx, EventRunsChanged, map[string]string{"runId": runID})
}

// ── Execution ──────────────────────────────────────────────

// RunNow executes a stored run synchronously. A run that is already
// executing is rejected with ErrAlreadyRunning.
func (s *RunService) RunNow(ctx context.Context, id string, opts ...etl.CollectOption) (*etl.Result, error) {
	run, err := s.runs.GetRun(id)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, run, opts...)
}

// Execute runs run under the per-run guard. Stored runs get their last
// status updated; ad hoc runs (empty ID) do not.
func (s *RunService) Execute(ctx context.Context, run *etl.Run, opts ...etl.CollectOption) (*etl.Result, error) {
	key := run.ID
	if key == "" {
		key = "adhoc:" + run.Name
	}
	if !s.running.TryLock(key) {
		return nil, fmt.Errorf("%s: %w", run.Name, ErrAlreadyRunning)
	}
	defer s.running.Unlock(key)

	if run.ID != "" {
		if err := s.runs.UpdateRunStatus(run.ID, etl.StatusRunning, ""); err != nil {
			s.logger.Warn("service: update run status", "run_id", run.ID, "err", err)
		}
	}
	s.emitter.Emit(ctx, EventRunStarted, map[string]string{"runId": run.ID, "name": run.Name})

	runCtx := ctx
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	res, runErr := s.collector.Collect(runCtx, run, opts...)
	if res == nil {
		return nil, runErr
	}

	if run.ID != "" {
		errMsg := ""
		if runErr != nil {
			errMsg = runErr.Error()
		}
		if err := s.runs.UpdateRunStatus(run.ID, res.Status, errMsg); err != nil {
			s.logger.Warn("service: update run status", "run_id", run.ID, "err", err)
		}
	}
	s.emitter.Emit(ctx, EventRunCompleted, map[string]any{
		"runId":  run.ID,
		"logId":  res.LogID,
		"status": res.Status.String(),
		"pages":  res.Pages,
		"rows":   res.Rows,
	})
	return res, runErr
}

// Preview renders one page of a stored run without executing statements.
func (s *RunService) Preview(ctx context.Context, id string, page int) (*etl.Preview, error) {
	run, err := s.runs.GetRun(id)
	if err != nil {
		return nil, err
	}
	previewCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.collector.Preview(previewCtx, run, page)
}

// ListSources returns the available pipeline descriptors.
func (s *RunService) ListSources() []etl.SourceSpec {
	return s.collector.Sources()
}

// ListRunLogs returns the latest logs for a run, newest first.
func (s *RunService) ListRunLogs(ctx context.Context, id string, limit int) ([]etl.RunLog, error) {
	run, err := s.runs.GetRun(id)
	if err != nil {
		return nil, err
	}
	return s.logs.ListRunLogs(ctx, run.ID, limit)
}

func (s *RunService) GetRunLog(ctx context.Context, id string) (*etl.RunLog, error) {
	return s.logs.GetRunLog(ctx, id)
}

// Running returns the ids of executing runs.
func (s *RunService) Running() []string {
	return s.running.Running()
}

// WaitRunning blocks until all executions finish. It returns ctx.Err()
// when ctx ends with executions still in flight.
func (s *RunService) WaitRunning(ctx context.Context) error {
	return s.running.WaitAll(ctx)
}
