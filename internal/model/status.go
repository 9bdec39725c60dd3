package model

// Scheduled job status constants.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Workflow status constants.
const (
	WorkflowStatusDraft  = "draft"
	WorkflowStatusActive = "active"
	WorkflowStatusPaused = "paused"
)

// Execution log step status constants.
const (
	LogStatusStarted = "started"
	LogStatusSuccess = "success"
	LogStatusFailed  = "failed"
	LogStatusWarning = "warning"
)

// Execution log step names.
const (
	StepCronTrigger     = "cron_trigger"
	StepJobsQuery       = "jobs_query"
	StepStaleReap       = "stale_reap"
	StepJobClaim        = "job_claim"
	StepWorkflowExecute = "workflow_execute"
	StepTargetExtract   = "target_extract"
	StepMessageGenerate = "message_generate"
	StepSMSAPICall      = "sms_api_call"
	StepStatusUpdate    = "status_update"
	StepReschedule      = "reschedule"
)

// jobTransitions lists the allowed target statuses for each non-terminal status.
var jobTransitions = map[string][]string{
	JobStatusPending: {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed},
}

// IsTerminalJobStatus reports whether a job in this status can never change again.
func IsTerminalJobStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionJob reports whether from -> to is an edge of the job state machine.
func CanTransitionJob(from, to string) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
