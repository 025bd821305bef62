package etl

import (
	"context"
	"time"
)

// ── Run Log ────────────────────────────────────────────────
// One RunLog per execution. Text is only ever appended to.

// RunStatus is the status code stored with a run log.
type RunStatus int

const (
	StatusPending   RunStatus = 0
	StatusRunning   RunStatus = 1
	StatusSucceeded RunStatus = 2
	StatusFailed    RunStatus = 3
)

func (s RunStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Ptr returns &s, for AppendRunLog calls that change the status.
func (s RunStatus) Ptr() *RunStatus { return &s }

// RunLog is a historical record of a run execution.
type RunLog struct {
	ID         string    `json:"id"`
	RunID      string    `json:"runId"`
	Status     RunStatus `json:"status"`
	Text       string    `json:"text"`
	StartedAt  time.Time `json:"startedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// RunLogger persists run logs. A nil status leaves the stored status as is.
type RunLogger interface {
	CreateRunLog(ctx context.Context, runID string) (string, error)
	AppendRunLog(ctx context.Context, logID string, status *RunStatus, text string) error
}
