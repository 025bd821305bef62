package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"collector/internal/etl"
)

// RunStore persists run definitions. Structured parts of a run are kept as
// JSON columns.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

const runColumns = `id, name, source_type, source_config, rules, strict_mapping, flatten, template,
	paging, destination, trigger_type, trigger_config, enabled,
	last_run_at, last_status, last_error, created_at, updated_at`

// runJSON holds the encoded JSON columns of a run.
type runJSON struct {
	source, rules, flatten, paging, destination string
}

func encodeRun(run *etl.Run) (runJSON, error) {
	var out runJSON
	for _, f := range []struct {
		dst *string
		v   any
	}{
		{&out.source, run.Source},
		{&out.rules, run.Rules},
		{&out.flatten, run.Flatten},
		{&out.paging, run.Paging},
		{&out.destination, run.Destination},
	} {
		b, err := json.Marshal(f.v)
		if err != nil {
			return out, fmt.Errorf("encode run %q: %w", run.Name, err)
		}
		*f.dst = string(b)
	}
	if out.rules == "null" {
		out.rules = "[]"
	}
	return out, nil
}

func scanRun(sc scanner) (*etl.Run, error) {
	var (
		run     etl.Run
		enc     runJSON
		lastRun sql.NullTime
	)
	err := sc.Scan(
		&run.ID, &run.Name, &run.SourceType, &enc.source, &enc.rules, &run.StrictMapping, &enc.flatten, &run.Template,
		&enc.paging, &enc.destination, &run.TriggerType, &run.TriggerConfig, &run.Enabled,
		&lastRun, &run.LastStatus, &run.LastError, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.LastRunAt = lastRun.Time

	for _, f := range []struct {
		src string
		dst any
	}{
		{enc.source, &run.Source},
		{enc.rules, &run.Rules},
		{enc.flatten, &run.Flatten},
		{enc.paging, &run.Paging},
		{enc.destination, &run.Destination},
	} {
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

// ── Run CRUD ───────────────────────────────────────────────

func (s *RunStore) CreateRun(run *etl.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.TriggerType == "" {
		run.TriggerType = etl.TriggerManual
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	enc, err := encodeRun(run)
	if err != nil {
		return err
	}
	_, err = s.db.Conn().Exec(
		`INSERT INTO runs (id, name, source_type, source_config, rules, strict_mapping, flatten, template,
		 paging, destination, trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.SourceType, enc.source, enc.rules, run.StrictMapping, enc.flatten, run.Template,
		enc.paging, enc.destination, run.TriggerType, run.TriggerConfig, run.Enabled,
		run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun looks a run up by id, falling back to its unique name.
func (s *RunStore) GetRun(id string) (*etl.Run, error) {
	row := s.db.Conn().QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR name = ? ORDER BY (id = ?) DESC LIMIT 1`,
		id, id, id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

func (s *RunStore) UpdateRun(run *etl.Run) error {
	run.UpdatedAt = time.Now().UTC()
	enc, err := encodeRun(run)
	if err != nil {
		return err
	}
	res, err := s.db.Conn().Exec(
		`UPDATE runs SET name=?, source_type=?, source_config=?, rules=?, strict_mapping=?, flatten=?,
		 template=?, paging=?, destination=?, trigger_type=?, trigger_config=?, enabled=?, updated_at=?
		 WHERE id=?`,
		run.Name, run.SourceType, enc.source, enc.rules, run.StrictMapping, enc.flatten,
		run.Template, enc.paging, enc.destination, run.TriggerType, run.TriggerConfig, run.Enabled, run.UpdatedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// UpdateRunStatus records the outcome of the latest execution.
func (s *RunStore) UpdateRunStatus(id string, status etl.RunStatus, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.Conn().Exec(
		`UPDATE runs SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		now, status, errMsg, now, id,
	)
	return err
}

// DeleteRun removes a run and its logs.
func (s *RunStore) DeleteRun(id string) error {
	tx, err := s.db.Conn().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM run_logs WHERE run_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *RunStore) ListRuns() ([]etl.Run, error) {
	return s.list(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at ASC`)
}

// ListTriggeredRuns returns enabled runs with a schedule or file_watch trigger.
func (s *RunStore) ListTriggeredRuns() ([]etl.Run, error) {
	return s.list(
		`SELECT `+runColumns+` FROM runs WHERE enabled = 1 AND trigger_type IN (?, ?) ORDER BY created_at ASC`,
		etl.TriggerSchedule, etl.TriggerFileWatch,
	)
}

func (s *RunStore) list(query string, args ...any) ([]etl.Run, error) {
	rows, err := s.db.Conn().Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []etl.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}
