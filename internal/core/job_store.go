package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/outreach/internal/model"
	"github.com/edvin/outreach/internal/platform"
)

const jobColumns = `id, workflow_id, scheduled_time, status, execution_id, sent_count, failed_count, created_at, started_at, completed_at, failed_at, error_message`

// JobStore persists scheduled jobs and owns the claim protocol. Every status
// change is a single conditional UPDATE guarded by the expected current status.
type JobStore struct {
	db DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db DB) *JobStore {
	return &JobStore{db: db}
}

func scanJob(row pgx.Row) (*model.ScheduledJob, error) {
	var j model.ScheduledJob
	err := row.Scan(&j.ID, &j.WorkflowID, &j.ScheduledTime, &j.Status, &j.ExecutionID,
		&j.SentCount, &j.FailedCount, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
		&j.FailedAt, &j.ErrorMessage)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]model.ScheduledJob, error) {
	defer rows.Close()
	var jobs []model.ScheduledJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scheduled jobs: %w", err)
	}
	return jobs, nil
}

// Schedule creates a pending job for workflowID at the given time. Scheduling
// the same (workflow, time) twice returns the existing job with created=false.
func (s *JobStore) Schedule(ctx context.Context, workflowID string, at time.Time) (*model.ScheduledJob, bool, error) {
	at = at.UTC().Truncate(time.Second)
	job, err := scanJob(s.db.QueryRow(ctx,
		`INSERT INTO scheduled_jobs (id, workflow_id, scheduled_time, status, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (workflow_id, scheduled_time) DO NOTHING
		 RETURNING `+jobColumns,
		platform.NewID(), workflowID, at, model.JobStatusPending,
	))
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert scheduled job for workflow %s: %w", workflowID, err)
	}

	job, err = scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs WHERE workflow_id = $1 AND scheduled_time = $2`,
		workflowID, at,
	))
	if err != nil {
		return nil, false, fmt.Errorf("get existing job for workflow %s at %s: %w", workflowID, at.Format(time.RFC3339), err)
	}
	return job, false, nil
}

// Get returns a job by id.
func (s *JobStore) Get(ctx context.Context, id string) (*model.ScheduledJob, error) {
	job, err := scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get scheduled job %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get scheduled job %s: %w", id, err)
	}
	return job, nil
}

// ListDue returns pending jobs scheduled at or before now, oldest first.
func (s *JobStore) ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledJob, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs
		 WHERE status = $1 AND scheduled_time <= $2
		 ORDER BY scheduled_time, id
		 LIMIT $3`,
		model.JobStatusPending, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	return collectJobs(rows)
}

// ListPending returns pending jobs scheduled in [from, to), oldest first.
func (s *JobStore) ListPending(ctx context.Context, from, to time.Time, limit int) ([]model.ScheduledJob, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs
		 WHERE status = $1 AND scheduled_time >= $2 AND scheduled_time < $3
		 ORDER BY scheduled_time, id
		 LIMIT $4`,
		model.JobStatusPending, from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	return collectJobs(rows)
}

// Claim transitions a job from pending to running for executionID. It reports
// false when another execution claimed it first or it is no longer pending;
// at most one concurrent caller observes true.
func (s *JobStore) Claim(ctx context.Context, id, executionID string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE scheduled_jobs SET status = $1, execution_id = $2, started_at = $3
		 WHERE id = $4 AND status = $5`,
		model.JobStatusRunning, executionID, now, id, model.JobStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim scheduled job %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Complete transitions a running job to completed.
func (s *JobStore) Complete(ctx context.Context, id string, c model.JobCompletion, now time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE scheduled_jobs SET status = $1, completed_at = $2, sent_count = $3, failed_count = $4
		 WHERE id = $5 AND status = $6`,
		model.JobStatusCompleted, now, c.SentCount, c.FailedCount, id, model.JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("complete scheduled job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete scheduled job %s: %w", id, model.ErrInvalidTransition)
	}
	return nil
}

// Fail transitions a running job to failed with an error message.
func (s *JobStore) Fail(ctx context.Context, id, message string, c model.JobCompletion, now time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE scheduled_jobs SET status = $1, failed_at = $2, error_message = $3, sent_count = $4, failed_count = $5
		 WHERE id = $6 AND status = $7`,
		model.JobStatusFailed, now, message, c.SentCount, c.FailedCount, id, model.JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("fail scheduled job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fail scheduled job %s: %w", id, model.ErrInvalidTransition)
	}
	return nil
}

// Cancel transitions a pending job to cancelled. Running jobs cannot be cancelled.
func (s *JobStore) Cancel(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE scheduled_jobs SET status = $1 WHERE id = $2 AND status = $3`,
		model.JobStatusCancelled, id, model.JobStatusPending,
	)
	if err != nil {
		return fmt.Errorf("cancel scheduled job %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("cancel scheduled job: %w", err)
	}
	if model.IsTerminalJobStatus(job.Status) {
		return fmt.Errorf("cancel scheduled job %s: already %s: %w", id, job.Status, model.ErrInvalidTransition)
	}
	return fmt.Errorf("cancel scheduled job %s in status %s: %w", id, job.Status, model.ErrInvalidTransition)
}

// CancelPendingForWorkflow cancels every pending job of a workflow and returns
// how many were cancelled.
func (s *JobStore) CancelPendingForWorkflow(ctx context.Context, workflowID string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE scheduled_jobs SET status = $1 WHERE workflow_id = $2 AND status = $3`,
		model.JobStatusCancelled, workflowID, model.JobStatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel pending jobs for workflow %s: %w", workflowID, err)
	}
	return tag.RowsAffected(), nil
}

// FailStale fails running jobs started before cutoff and returns them.
func (s *JobStore) FailStale(ctx context.Context, cutoff, now time.Time, message string) ([]model.ScheduledJob, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE scheduled_jobs SET status = $1, failed_at = $2, error_message = $3
		 WHERE status = $4 AND started_at < $5
		 RETURNING `+jobColumns,
		model.JobStatusFailed, now, message, model.JobStatusRunning, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	return collectJobs(rows)
}

// JobFilter narrows List results. Empty fields match everything.
type JobFilter struct {
	Status     string
	WorkflowID string
}

// List returns jobs ordered by id (creation order) with cursor pagination.
func (s *JobStore) List(ctx context.Context, filter JobFilter, limit int, cursor string) ([]model.ScheduledJob, bool, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs WHERE true`
	var args []any
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.WorkflowID != "" {
		query += fmt.Sprintf(` AND workflow_id = $%d`, argIdx)
		args = append(args, filter.WorkflowID)
		argIdx++
	}
	if cursor != "" {
		query += fmt.Sprintf(` AND id > $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY id`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list scheduled jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(jobs) > limit
	if hasMore {
		jobs = jobs[:limit]
	}
	return jobs, hasMore, nil
}
