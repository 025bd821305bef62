package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"collector/internal/etl"
)

// RunLogStore implements etl.RunLogger on SQLite. Log text is only ever
// extended; a terminal status also stamps finished_at.
type RunLogStore struct {
	db  *DB
	now func() time.Time
}

// NewRunLogStore creates a new RunLogStore.
func NewRunLogStore(db *DB) *RunLogStore {
	return &RunLogStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ etl.RunLogger = (*RunLogStore)(nil)

func (s *RunLogStore) CreateRunLog(ctx context.Context, runID string) (string, error) {
	id := uuid.New().String()
	now := s.now()
	_, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO run_logs (id, run_id, status, text, started_at, updated_at) VALUES (?, ?, ?, '', ?, ?)`,
		id, runID, etl.StatusPending, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("create run log: %w", err)
	}
	return id, nil
}

func (s *RunLogStore) AppendRunLog(ctx context.Context, logID string, status *etl.RunStatus, text string) error {
	now := s.now()
	var (
		res sql.Result
		err error
	)
	switch {
	case status == nil:
		res, err = s.db.Conn().ExecContext(ctx,
			`UPDATE run_logs SET text = text || ?, updated_at = ? WHERE id = ?`,
			text, now, logID)
	case *status == etl.StatusSucceeded || *status == etl.StatusFailed:
		res, err = s.db.Conn().ExecContext(ctx,
			`UPDATE run_logs SET text = text || ?, status = ?, updated_at = ?, finished_at = ? WHERE id = ?`,
			text, *status, now, now, logID)
	default:
		res, err = s.db.Conn().ExecContext(ctx,
			`UPDATE run_logs SET text = text || ?, status = ?, updated_at = ? WHERE id = ?`,
			text, *status, now, logID)
	}
	if err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run log %s: %w", logID, ErrNotFound)
	}
	return nil
}

const runLogColumns = `id, run_id, status, text, started_at, updated_at, finished_at`

func scanRunLog(sc scanner) (*etl.RunLog, error) {
	var (
		l        etl.RunLog
		finished sql.NullTime
	)
	if err := sc.Scan(&l.ID, &l.RunID, &l.Status, &l.Text, &l.StartedAt, &l.UpdatedAt, &finished); err != nil {
		return nil, err
	}
	l.FinishedAt = finished.Time
	return &l, nil
}

func (s *RunLogStore) GetRunLog(ctx context.Context, id string) (*etl.RunLog, error) {
	row := s.db.Conn().QueryRowContext(ctx, `SELECT `+runLogColumns+` FROM run_logs WHERE id = ?`, id)
	l, err := scanRunLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run log %s: %w", id, ErrNotFound)
	}
	return l, err
}

// ListRunLogs returns the latest logs of a run, newest first.
func (s *RunLogStore) ListRunLogs(ctx context.Context, runID string, limit int) ([]etl.RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT `+runLogColumns+` FROM run_logs WHERE run_id = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []etl.RunLog
	for rows.Next() {
		l, err := scanRunLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}
