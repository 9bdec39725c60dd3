package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/outreach/internal/model"
)

const logColumns = `id, execution_id, job_id, workflow_id, step, status, message, error_message, duration_ms, created_at`

// ExecutionLogService appends and reads execution log entries. Entries are
// never updated or deleted.
type ExecutionLogService struct {
	db DB
}

// NewExecutionLogService creates a new ExecutionLogService.
func NewExecutionLogService(db DB) *ExecutionLogService {
	return &ExecutionLogService{db: db}
}

// Append inserts an entry and fills in its id and timestamp.
func (s *ExecutionLogService) Append(ctx context.Context, e *model.ExecutionLogEntry) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO execution_logs (execution_id, job_id, workflow_id, step, status, message, error_message, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		e.ExecutionID, e.JobID, e.WorkflowID, e.Step, e.Status, e.Message, e.ErrorMessage, e.DurationMs,
	).Scan(&e.ID, &e.Timestamp)
	if err != nil {
		return fmt.Errorf("append execution log %s/%s: %w", e.ExecutionID, e.Step, err)
	}
	return nil
}

func collectLogEntries(rows pgx.Rows) ([]model.ExecutionLogEntry, error) {
	defer rows.Close()
	var entries []model.ExecutionLogEntry
	for rows.Next() {
		var e model.ExecutionLogEntry
		if err := rows.Scan(&e.ID, &e.ExecutionID, &e.JobID, &e.WorkflowID, &e.Step, &e.Status,
			&e.Message, &e.ErrorMessage, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution logs: %w", err)
	}
	return entries, nil
}

// ListByExecution returns the timeline of one run in insertion order.
func (s *ExecutionLogService) ListByExecution(ctx context.Context, executionID string) ([]model.ExecutionLogEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+logColumns+` FROM execution_logs WHERE execution_id = $1 ORDER BY id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list execution logs for %s: %w", executionID, err)
	}
	return collectLogEntries(rows)
}

// ListByJob returns every entry recorded for a job across its runs.
func (s *ExecutionLogService) ListByJob(ctx context.Context, jobID string) ([]model.ExecutionLogEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+logColumns+` FROM execution_logs WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list execution logs for job %s: %w", jobID, err)
	}
	return collectLogEntries(rows)
}

// StepStats returns per-step outcome counts for entries recorded since the
// given time. Started markers are not outcomes and are excluded.
func (s *ExecutionLogService) StepStats(ctx context.Context, since time.Time) ([]model.StepStat, error) {
	rows, err := s.db.Query(ctx,
		`SELECT step,
		        count(*),
		        count(*) FILTER (WHERE status = $2),
		        count(*) FILTER (WHERE status = $3)
		 FROM execution_logs
		 WHERE created_at >= $1 AND status <> $4
		 GROUP BY step
		 ORDER BY step`,
		since, model.LogStatusSuccess, model.LogStatusFailed, model.LogStatusStarted,
	)
	if err != nil {
		return nil, fmt.Errorf("execution log step stats: %w", err)
	}
	defer rows.Close()

	var stats []model.StepStat
	for rows.Next() {
		var st model.StepStat
		if err := rows.Scan(&st.Step, &st.Total, &st.Success, &st.Failed); err != nil {
			return nil, fmt.Errorf("scan step stat: %w", err)
		}
		if st.Total > 0 {
			st.SuccessRate = float64(st.Success) / float64(st.Total) * 100
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step stats: %w", err)
	}
	return stats, nil
}
