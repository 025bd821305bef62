package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collector/internal/service"
)

func TestRunningGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	require.True(t, g.TryLock("run-1"))
	assert.False(t, g.TryLock("run-1"), "second TryLock for the same run must fail")
	require.True(t, g.TryLock("run-2"))
	assert.ElementsMatch(t, []string{"run-1", "run-2"}, g.Running())

	g.Unlock("run-1")
	g.Unlock("run-2")

	require.True(t, g.TryLock("run-1"))
	g.Unlock("run-1")
	assert.Empty(t, g.Running())
}

func TestRunningGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard
	require.True(t, g.TryLock("run-a"))

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("run-a")
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

func TestRunningGuard_WaitAllHonoursContext(t *testing.T) {
	var g service.ExportedRunningGuard
	require.True(t, g.TryLock("stuck"))
	defer g.Unlock("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.ErrorIs(t, g.WaitAll(ctx), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
