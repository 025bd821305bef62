package service

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ExportedRunningGuard is an exported alias so _test packages can test the guard.
type ExportedRunningGuard = runningGuard

// runningGuard admits at most one execution per run id and tracks when
// each admitted execution started.
type runningGuard struct {
	mu     sync.Mutex
	starts map[string]time.Time
	wg     sync.WaitGroup
}

// TryLock admits runID, or reports false while a previous execution holds it.
func (g *runningGuard) TryLock(runID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.starts[runID]; busy {
		return false
	}
	if g.starts == nil {
		g.starts = map[string]time.Time{}
	}
	g.starts[runID] = time.Now()
	g.wg.Add(1)
	return true
}

// Unlock releases runID. Calling it without a successful TryLock panics.
func (g *runningGuard) Unlock(runID string) {
	g.mu.Lock()
	delete(g.starts, runID)
	g.mu.Unlock()
	g.wg.Done()
}

// Running lists the admitted run ids, oldest first.
func (g *runningGuard) Running() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.starts))
	for id := range g.starts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := g.starts[ids[i]], g.starts[ids[j]]
		if a.Equal(b) {
			return ids[i] < ids[j]
		}
		return a.Before(b)
	})
	return ids
}

// WaitAll waits for every admitted execution to release. It returns
// ctx.Err() if ctx ends first.
func (g *runningGuard) WaitAll(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
