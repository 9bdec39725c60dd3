package request

import "time"

// ScheduleWorkflow creates a one-off job at ScheduledTime.
type ScheduleWorkflow struct {
	ScheduledTime time.Time `json:"scheduled_time" validate:"required"`
}

// SetWorkflowCron replaces a workflow's recurring schedule. An empty
// expression removes it.
type SetWorkflowCron struct {
	CronExpression string `json:"cron_expression" validate:"omitempty,cron"`
}
