package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ScheduledQuery is a recurring pipeline query: the scheduler fires a pipeline
// run each time next_run_at comes due.
type ScheduledQuery struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Query      string     `json:"query"`
	Schedule   string     `json:"schedule"` // schedule.Schedule JSON
	Status     string     `json:"status"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

const scheduleColumns = `id, name, query, schedule, status, next_run_at, last_run_at, last_status, last_error, created_at`

func scanScheduledQuery(scanner interface {
	Scan(dest ...any) error
}) (*ScheduledQuery, error) {
	q := &ScheduledQuery{}
	var lastStatus, lastError *string
	err := scanner.Scan(&q.ID, &q.Name, &q.Query, &q.Schedule, &q.Status,
		&q.NextRunAt, &q.LastRunAt, &lastStatus, &lastError, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastStatus != nil {
		q.LastStatus = *lastStatus
	}
	if lastError != nil {
		q.LastError = *lastError
	}
	return q, nil
}

func (s *Store) SaveScheduledQuery(q *ScheduledQuery) error {
	_, err := s.db.Exec(`
		INSERT INTO scheduled_queries (id, name, query, schedule, status, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			query = excluded.query,
			schedule = excluded.schedule,
			status = excluded.status,
			next_run_at = excluded.next_run_at`,
		q.ID, q.Name, q.Query, q.Schedule, q.Status, q.NextRunAt)
	if err != nil {
		return fmt.Errorf("save scheduled query: %w", err)
	}
	return nil
}

func (s *Store) GetScheduledQuery(id string) (*ScheduledQuery, error) {
	row := s.db.QueryRow(`SELECT `+scheduleColumns+` FROM scheduled_queries WHERE id = ?`, id)
	q, err := scanScheduledQuery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scheduled query: %w", err)
	}
	return q, nil
}

func (s *Store) ListScheduledQueries() ([]ScheduledQuery, error) {
	rows, err := s.db.Query(`SELECT ` + scheduleColumns + ` FROM scheduled_queries ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled queries: %w", err)
	}
	defer rows.Close()

	var queries []ScheduledQuery
	for rows.Next() {
		q, err := scanScheduledQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled query: %w", err)
		}
		queries = append(queries, *q)
	}
	return queries, rows.Err()
}

// DueScheduledQueries returns active queries whose next run time has passed.
func (s *Store) DueScheduledQueries(now time.Time) ([]ScheduledQuery, error) {
	rows, err := s.db.Query(`
		SELECT `+scheduleColumns+` FROM scheduled_queries
		WHERE status = 'active' AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at`, now)
	if err != nil {
		return nil, fmt.Errorf("due scheduled queries: %w", err)
	}
	defer rows.Close()

	var queries []ScheduledQuery
	for rows.Next() {
		q, err := scanScheduledQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled query: %w", err)
		}
		queries = append(queries, *q)
	}
	return queries, rows.Err()
}

// MarkScheduledQueryRun records the outcome of a fired run and the next due time.
// A nil nextRun deactivates the query (one-shot schedules).
func (s *Store) MarkScheduledQueryRun(id, lastStatus, lastError string, nextRun *time.Time) error {
	status := "active"
	if nextRun == nil {
		status = "completed"
	}
	_, err := s.db.Exec(`
		UPDATE scheduled_queries
		SET last_run_at = CURRENT_TIMESTAMP, last_status = ?, last_error = ?,
		    next_run_at = ?, status = ?
		WHERE id = ?`, lastStatus, nullable(lastError), nextRun, status, id)
	return err
}

func (s *Store) DeleteScheduledQuery(id string) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_queries WHERE id = ?`, id)
	return err
}
