package model

import "time"

// ExecutionLogEntry is one append-only step record of a dispatch run.
type ExecutionLogEntry struct {
	ID           int64     `json:"id"`
	ExecutionID  string    `json:"execution_id"`
	JobID        *string   `json:"job_id,omitempty"`
	WorkflowID   *string   `json:"workflow_id,omitempty"`
	Step         string    `json:"step"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	DurationMs   *int64    `json:"duration_ms,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// StepStat is the success rate of one step over a window.
type StepStat struct {
	Step        string  `json:"step"`
	Total       int     `json:"total"`
	Success     int     `json:"success"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// TriggerSignal records one invocation of the dispatcher by the external timer.
type TriggerSignal struct {
	ID           int64     `json:"id"`
	Source       string    `json:"source"`
	ReceivedAt   time.Time `json:"received_at"`
	ExecutedJobs int       `json:"executed_jobs"`
	DurationMs   int64     `json:"duration_ms"`
}
