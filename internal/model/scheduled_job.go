package model

import "time"

// ScheduledJob is one scheduled run of a workflow. Rows are never deleted.
type ScheduledJob struct {
	ID            string     `json:"id"`
	WorkflowID    string     `json:"workflow_id"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	Status        string     `json:"status"`
	ExecutionID   *string    `json:"execution_id,omitempty"`
	SentCount     int        `json:"sent_count"`
	FailedCount   int        `json:"failed_count"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
}

// JobView decorates a job with display-timezone fields for the monitoring surface.
type JobView struct {
	ScheduledJob
	ScheduledTimeDisplay string `json:"scheduled_time_display"`
	// MinutesFromNow is negative for jobs scheduled in the past.
	MinutesFromNow int `json:"minutes_from_now"`
}

// NewJobView builds a JobView relative to now, rendered in loc.
func NewJobView(job ScheduledJob, now time.Time, loc *time.Location) JobView {
	if loc == nil {
		loc = time.UTC
	}
	return JobView{
		ScheduledJob:         job,
		ScheduledTimeDisplay: job.ScheduledTime.In(loc).Format("2006-01-02 15:04:05 MST"),
		MinutesFromNow:       int(job.ScheduledTime.Sub(now).Truncate(time.Minute) / time.Minute),
	}
}

// JobCompletion carries the aggregate counters written when a job completes.
type JobCompletion struct {
	SentCount   int
	FailedCount int
}
