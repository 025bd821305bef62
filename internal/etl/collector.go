package etl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zoobzio/clockz"

	"collector/internal/document"
)

// ── Collector ──────────────────────────────────────────────
// Drives one execution of a Run: fetch → transform → render, page after
// page, flushing rendered statements to the destination in batches.
// Every phase boundary is appended to the run log.

// State is a step of an execution.
type State int

const (
	StateInit State = iota
	StateFetching
	StateTransforming
	StateFlushing
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateFetching:
		return "fetching"
	case StateTransforming:
		return "transforming"
	case StateFlushing:
		return "flushing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var transitions = map[State][]State{
	StateInit:         {StateFetching, StateFailed},
	StateFetching:     {StateFetching, StateTransforming, StateFailed},
	StateTransforming: {StateFetching, StateFlushing, StateFailed},
	StateFlushing:     {StateFetching, StateSucceeded, StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }

// Next returns to when s may move there.
func (s State) Next(to State) (State, error) {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return to, nil
		}
	}
	return s, fmt.Errorf("illegal transition %s → %s", s, to)
}

// Limits bound retries and batching.
type Limits struct {
	MaxRetries int           // retries per page after the first attempt
	RetryDelay time.Duration // fixed wait between attempts
	FlushRows  int           // flush once the batch holds more rows than this
	FlushPages int           // flush after this many pages
	SampleLen  int           // characters of the first row kept in flush log entries
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxRetries: 10,
		RetryDelay: 3 * time.Second,
		FlushRows:  10000,
		FlushPages: 50,
		SampleLen:  200,
	}
}

// Result is the outcome of one execution.
type Result struct {
	RunID            string        `json:"runId"`
	LogID            string        `json:"logId"`
	Status           RunStatus     `json:"status"`
	Pages            int           `json:"pages"`
	Rows             int           `json:"rows"`
	Flushes          int           `json:"flushes"`
	FailedStatements int           `json:"failedStatements"`
	Retries          int           `json:"retries"`
	Duration         time.Duration `json:"duration"`
	Err              error         `json:"-"`
}

// Collector executes runs against the registered pipelines.
type Collector struct {
	pipelines *Registry
	executor  DBExecutor
	logs      RunLogger
	limits    Limits
	clock     clockz.Clock
	logger    *slog.Logger
}

// Option configures a Collector.
type Option func(*Collector)

func WithLimits(l Limits) Option { return func(c *Collector) { c.limits = l } }

func WithClock(clock clockz.Clock) Option { return func(c *Collector) { c.clock = clock } }

func WithLogger(l *slog.Logger) Option { return func(c *Collector) { c.logger = l } }

// NewCollector returns a Collector. executor may be nil when runs are only
// ever rendered.
func NewCollector(pipelines *Registry, logs RunLogger, executor DBExecutor, opts ...Option) *Collector {
	c := &Collector{
		pipelines: pipelines,
		executor:  executor,
		logs:      logs,
		limits:    DefaultLimits(),
		clock:     clockz.RealClock,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type collectOptions struct {
	dryRun bool
}

// CollectOption tunes one Collect call.
type CollectOption func(*collectOptions)

// DryRun renders and logs every flush without executing statements.
func DryRun() CollectOption {
	return func(o *collectOptions) { o.dryRun = true }
}

// Collect executes run to a terminal state. The returned error is the
// terminal error, also recorded in Result.Err and the run log.
func (c *Collector) Collect(ctx context.Context, run *Run, opts ...CollectOption) (*Result, error) {
	var o collectOptions
	for _, opt := range opts {
		opt(&o)
	}

	logID, err := c.logs.CreateRunLog(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("create run log: %w", err)
	}

	x := &execution{
		c:     c,
		run:   run,
		opts:  o,
		state: StateInit,
		res:   &Result{RunID: run.ID, LogID: logID, Status: StatusRunning},
		log:   c.logger.With("run_id", run.ID, "log_id", logID),
	}
	start := c.clock.Now()
	x.append(ctx, StatusRunning.Ptr(), "run %q started (source %s)", run.Name, run.SourceType)
	x.log.Info("collector: run started", "source", run.SourceType, "paging", run.Paging.Enabled)

	err = x.collect(ctx)
	x.res.Duration = c.clock.Since(start)
	if err != nil {
		x.fail(ctx, err)
		return x.res, err
	}
	x.succeed(ctx)
	return x.res, nil
}

// execution is the state of one Collect call.
type execution struct {
	c     *Collector
	run   *Run
	opts  collectOptions
	state State
	res   *Result
	log   *slog.Logger
}

// batch holds rendered rows not yet flushed. It is passed by value through
// the page loop and replaced after every flush.
type batch struct {
	rows  []string
	pages int
}

func (b batch) add(rows []string) batch {
	b.rows = append(b.rows, rows...)
	b.pages++
	return b
}

func (b batch) due(l Limits) bool {
	return len(b.rows) > l.FlushRows || b.pages >= l.FlushPages
}

func (x *execution) to(s State) error {
	next, err := x.state.Next(s)
	if err != nil {
		return err
	}
	x.state = next
	return nil
}

func (x *execution) collect(ctx context.Context) error {
	run := x.run
	if err := run.Validate(); err != nil {
		return err
	}
	p, err := x.c.pipelines.Get(run.SourceType)
	if err != nil {
		return err
	}

	pages := newPageRenderer(run)
	render := &Destination{Table: run.Destination.Table}
	var b batch
	page := run.Paging.FirstPage()
	results := 0

	for {
		if err := x.to(StateFetching); err != nil {
			return err
		}
		req, err := pages.renderRequest(run.Source, page)
		if err != nil {
			return err
		}
		raw, payload, err := x.fetch(ctx, p, req, page)
		if err != nil {
			return err
		}
		x.res.Pages++
		CounterPages.Inc()

		d, err := p.Deliver(ctx, payload, run.Template, render)
		if err != nil {
			return err
		}
		b = b.add(d.Statements)
		x.res.Rows += len(d.Statements)
		x.log.Debug("collector: page done", "page", page, "rows", len(d.Statements))

		if !run.Paging.Enabled {
			break
		}
		next, n := hasNextPage(raw, run.Paging.ResultListFieldPath)
		results += n
		if !next ||
			x.res.Pages >= run.Paging.MaxRequestCount ||
			run.Paging.MaxResultCount > 0 && results >= run.Paging.MaxResultCount {
			break
		}
		if b.due(x.c.limits) {
			if b, err = x.flush(ctx, b); err != nil {
				return err
			}
		}
		page++
	}

	_, err = x.flush(ctx, b)
	return err
}

// fetch receives and transforms one page, retrying failures with a fixed delay.
func (x *execution) fetch(ctx context.Context, p Pipeline, req SourceConfig, page int) (raw, payload document.Value, err error) {
	maxRetries := x.c.limits.MaxRetries
	for attempt := 0; ; attempt++ {
		raw, payload, err = x.attempt(ctx, p, req)
		if err == nil {
			return raw, payload, nil
		}
		if !retryable(err) {
			return raw, payload, err
		}
		if attempt >= maxRetries {
			return raw, payload, fmt.Errorf("page %d: giving up after %d retries: %w", page, attempt, err)
		}

		x.res.Retries++
		CounterRetries.Inc()
		x.log.Warn("collector: retrying page", "page", page, "attempt", attempt+1, "err", err)
		x.append(ctx, nil, "page %d: retry %d/%d after error: %v", page, attempt+1, maxRetries, err)

		select {
		case <-ctx.Done():
			return raw, payload, fmt.Errorf("page %d: %w", page, ctx.Err())
		case <-x.c.clock.After(x.c.limits.RetryDelay):
		}
	}
}

func (x *execution) attempt(ctx context.Context, p Pipeline, req SourceConfig) (raw, payload document.Value, err error) {
	if err := x.to(StateFetching); err != nil {
		return raw, payload, err
	}
	raw, err = p.Receive(ctx, req)
	if err != nil {
		return raw, payload, fmt.Errorf("receive: %w", err)
	}
	if err := x.to(StateTransforming); err != nil {
		return raw, payload, err
	}
	payload, err = p.Transform(raw, x.run.Rules, x.run.Flatten, x.run.MapOptions()...)
	if err != nil {
		return raw, payload, fmt.Errorf("transform: %w", err)
	}
	return raw, payload, nil
}

// flush executes the batch against the destination and returns an empty one.
// Statement failures are counted; only a connection failure is returned.
func (x *execution) flush(ctx context.Context, b batch) (batch, error) {
	if err := x.to(StateFlushing); err != nil {
		return b, err
	}
	x.res.Flushes++
	n := x.res.Flushes

	var failed int
	var firstErr error
	execute := len(b.rows) > 0 && x.run.Destination.Locator != "" && !x.opts.dryRun
	if execute {
		if x.c.executor == nil {
			return b, fmt.Errorf("%w: no executor for destination %q", ErrConfiguration, x.run.Destination.Locator)
		}
		errs, err := x.c.executor.ExecuteDB(ctx, x.run.Destination.Locator, b.rows)
		if err != nil {
			return b, fmt.Errorf("flush %d: %w", n, err)
		}
		for _, e := range errs {
			if e != nil {
				failed++
				if firstErr == nil {
					firstErr = e
				}
			}
		}
		CounterStatementsExecuted.Add(float64(len(b.rows)))
		CounterStatementsFailed.Add(float64(failed))
		x.res.FailedStatements += failed
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "flush %d: pages=%d rows=%d failed=%d", n, b.pages, len(b.rows), failed)
	if !execute && len(b.rows) > 0 {
		msg.WriteString(" (not executed)")
	}
	if len(b.rows) > 0 {
		fmt.Fprintf(&msg, " first=%s", truncate(b.rows[0], x.c.limits.SampleLen))
	}
	if firstErr != nil {
		fmt.Fprintf(&msg, " first_error=%v", firstErr)
	}
	x.append(ctx, nil, "%s", msg.String())
	x.log.Info("collector: flushed", "flush", n, "rows", len(b.rows), "failed", failed, "executed", execute)
	return batch{}, nil
}

func (x *execution) fail(ctx context.Context, err error) {
	x.state = StateFailed
	x.res.Status = StatusFailed
	x.res.Err = err
	CounterRuns.WithLabelValues(StatusFailed.String()).Inc()
	x.log.Error("collector: run failed", "err", err, "pages", x.res.Pages, "rows", x.res.Rows)
	x.append(ctx, StatusFailed.Ptr(), "run failed: %v", err)
}

func (x *execution) succeed(ctx context.Context) {
	if err := x.to(StateSucceeded); err != nil {
		x.fail(ctx, err)
		return
	}
	x.res.Status = StatusSucceeded
	CounterRuns.WithLabelValues(StatusSucceeded.String()).Inc()
	x.log.Info("collector: run succeeded", "pages", x.res.Pages, "rows", x.res.Rows, "duration", x.res.Duration)
	x.append(ctx, StatusSucceeded.Ptr(),
		"run succeeded: pages=%d rows=%d flushes=%d failed_statements=%d retries=%d duration=%s",
		x.res.Pages, x.res.Rows, x.res.Flushes, x.res.FailedStatements, x.res.Retries, x.res.Duration)
}

// append writes one run log entry. Entries are written even after ctx is
// cancelled so the log always reaches a terminal status.
func (x *execution) append(ctx context.Context, status *RunStatus, format string, args ...any) {
	text := fmt.Sprintf(format, args...) + "\n"
	if err := x.c.logs.AppendRunLog(context.WithoutCancel(ctx), x.res.LogID, status, text); err != nil {
		x.log.Error("collector: append run log", "err", err)
	}
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
