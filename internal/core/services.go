package core

import "time"

type Services struct {
	Jobs             *JobStore
	ExecutionLogs    *ExecutionLogService
	TriggerSignals   *TriggerSignalStore
	Workflows        *WorkflowService
	TargetGroups     *TargetGroupService
	Templates        *TemplateService
	MappingTemplates *MappingTemplateService
	Scheduler        *Scheduler
	Dashboard        *DashboardService
	Search           *SearchService
}

// NewServices wires every core service over db. Cron expressions are
// evaluated in loc.
func NewServices(db DB, loc *time.Location) *Services {
	jobs := NewJobStore(db)
	workflows := NewWorkflowService(db)
	return &Services{
		Jobs:             jobs,
		ExecutionLogs:    NewExecutionLogService(db),
		TriggerSignals:   NewTriggerSignalStore(db),
		Workflows:        workflows,
		TargetGroups:     NewTargetGroupService(db),
		Templates:        NewTemplateService(db),
		MappingTemplates: NewMappingTemplateService(db),
		Scheduler:        NewScheduler(jobs, workflows, loc),
		Dashboard:        NewDashboardService(db),
		Search:           NewSearchService(db),
	}
}
