package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type PipelineRun struct {
	ID               string          `json:"id"`
	Query            string          `json:"query"`
	Status           string          `json:"status"`
	FirstFailedStage string          `json:"first_failed_stage,omitempty"`
	Trace            json.RawMessage `json:"trace,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

const runColumns = `id, query, status, first_failed_stage, trace, started_at, completed_at`

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*PipelineRun, error) {
	r := &PipelineRun{}
	var firstFailed, trace *string
	err := scanner.Scan(&r.ID, &r.Query, &r.Status, &firstFailed, &trace, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if firstFailed != nil {
		r.FirstFailedStage = *firstFailed
	}
	if trace != nil {
		r.Trace = json.RawMessage(*trace)
	}
	return r, nil
}

func (s *Store) SaveRun(r *PipelineRun) error {
	_, err := s.db.Exec(`
		INSERT INTO pipeline_runs (id, query, status, first_failed_stage, trace)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			first_failed_stage = excluded.first_failed_stage,
			trace = excluded.trace,
			completed_at = CASE WHEN excluded.status IN ('completed', 'failed') THEN CURRENT_TIMESTAMP ELSE completed_at END`,
		r.ID, r.Query, r.Status, nullable(r.FirstFailedStage), nullableRaw(r.Trace))
	if err != nil {
		return fmt.Errorf("save pipeline run: %w", err)
	}
	return nil
}

func (s *Store) UpdateRun(id, status, firstFailedStage string, trace json.RawMessage) error {
	_, err := s.db.Exec(`
		UPDATE pipeline_runs
		SET status = ?, first_failed_stage = ?, trace = ?,
		    completed_at = CASE WHEN ? IN ('completed', 'failed') THEN CURRENT_TIMESTAMP ELSE completed_at END
		WHERE id = ?`, status, nullable(firstFailedStage), nullableRaw(trace), status, id)
	return err
}

func (s *Store) GetRun(id string) (*PipelineRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline run: %w", err)
	}
	return r, nil
}

func (s *Store) ListRuns(limit int) ([]PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []PipelineRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pipeline run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (s *Store) DeleteRun(id string) error {
	_, err := s.db.Exec(`DELETE FROM pipeline_runs WHERE id = ?`, id)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableRaw(v json.RawMessage) any {
	if len(v) == 0 {
		return nil
	}
	return string(v)
}
