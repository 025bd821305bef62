package service

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"collector/internal/etl"
)

// ── Triggers (cron + file_watch) ──────────────────────────

// triggers holds the live scheduler and watcher built from stored runs.
type triggers struct {
	cancel  context.CancelFunc
	cron    *cron.Cron
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func (t *triggers) stop() {
	t.cancel()
	if t.cron != nil {
		<-t.cron.Stop().Done()
	}
	if t.watcher != nil {
		t.watcher.Close()
		<-t.done
	}
	t.mu.Lock()
	for _, timer := range t.timers {
		timer.Stop()
	}
	t.mu.Unlock()
}

// RestartTriggers tears down the current scheduler and watcher and rebuilds
// them from the enabled runs in the store. It returns the number of
// scheduled and watched runs.
func (s *RunService) RestartTriggers(ctx context.Context) (scheduled, watched int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.triggers != nil {
		s.triggers.stop()
		s.triggers = nil
	}

	runs, err := s.runs.ListTriggeredRuns()
	if err != nil {
		s.logger.Error("service: list triggered runs", "err", err)
		return 0, 0
	}

	trigCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &triggers{cancel: cancel, timers: make(map[string]*time.Timer)}
	s.triggers = t

	// ── Cron ──
	c := cron.New()
	for _, r := range runs {
		if r.TriggerType != etl.TriggerSchedule || r.TriggerConfig == "" {
			continue
		}
		id, expr := r.ID, r.TriggerConfig
		if _, err := c.AddFunc(expr, func() { s.fire(trigCtx, id, etl.TriggerSchedule) }); err != nil {
			s.logger.Warn("service: invalid schedule", "run_id", id, "expr", expr, "err", err)
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		t.cron = c
		s.logger.Info("service: scheduled runs", "count", scheduled)
	}

	// ── File watchers ──
	pathToRun := make(map[string]string)
	for _, r := range runs {
		if r.TriggerType != etl.TriggerFileWatch || r.TriggerConfig == "" {
			continue
		}
		abs, err := filepath.Abs(r.TriggerConfig)
		if err != nil {
			s.logger.Warn("service: bad watch path", "run_id", r.ID, "path", r.TriggerConfig, "err", err)
			continue
		}
		pathToRun[abs] = r.ID
	}
	if len(pathToRun) == 0 {
		return scheduled, 0
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Error("service: create watcher", "err", err)
		return scheduled, 0
	}
	watchedDirs := make(map[string]bool)
	for abs := range pathToRun {
		dir := filepath.Dir(abs)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.logger.Warn("service: watch dir", "dir", dir, "err", err)
			continue
		}
		watchedDirs[dir] = true
	}
	t.watcher = watcher
	t.done = make(chan struct{})

	go s.watch(trigCtx, t, pathToRun)

	s.logger.Info("service: watching files", "count", len(pathToRun))
	return scheduled, len(pathToRun)
}

// watch runs a file_watch run once its file has been quiet for the debounce period.
func (s *RunService) watch(ctx context.Context, t *triggers, pathToRun map[string]string) {
	defer close(t.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			id, ok := pathToRun[abs]
			if !ok {
				continue
			}
			t.mu.Lock()
			if timer, exists := t.timers[id]; exists {
				timer.Stop()
			}
			t.timers[id] = time.AfterFunc(s.opts.Debounce, func() {
				s.logger.Info("service: file changed", "path", abs, "run_id", id)
				s.fire(ctx, id, etl.TriggerFileWatch)
			})
			t.mu.Unlock()
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("service: watcher error", "err", err)
		}
	}
}

// fire executes a triggered run. Overlapping triggers for a run that is
// still executing are dropped.
func (s *RunService) fire(ctx context.Context, runID, trigger string) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Info("service: trigger fired", "run_id", runID, "trigger", trigger)
	if _, err := s.RunNow(ctx, runID); err != nil {
		s.logger.Warn("service: triggered run failed", "run_id", runID, "trigger", trigger, "err", err)
	}
}

// Stop tears down all watchers and schedulers.
func (s *RunService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.triggers != nil {
		s.triggers.stop()
		s.triggers = nil
	}
}
