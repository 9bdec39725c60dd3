package core

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/edvin/outreach/internal/model"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron checks a standard 5-field cron expression (descriptors such as
// @daily are accepted).
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return &model.ConfigurationError{Subject: "cron expression", Reason: err.Error()}
	}
	return nil
}

// NextOccurrence returns the first activation of expr strictly after after,
// evaluated in loc and returned in UTC.
func NextOccurrence(expr string, after time.Time, loc *time.Location) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, &model.ConfigurationError{Subject: "cron expression", Reason: err.Error()}
	}
	if loc == nil {
		loc = time.UTC
	}
	next := sched.Next(after.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q has no future activation", expr)
	}
	return next.UTC(), nil
}

// Scheduler creates scheduled jobs for workflows.
type Scheduler struct {
	jobs      *JobStore
	workflows *WorkflowService
	loc       *time.Location
}

// NewScheduler creates a Scheduler. Cron expressions are evaluated in loc.
func NewScheduler(jobs *JobStore, workflows *WorkflowService, loc *time.Location) *Scheduler {
	return &Scheduler{jobs: jobs, workflows: workflows, loc: loc}
}

// ScheduleAt creates a one-off job for a workflow that is not a draft.
func (s *Scheduler) ScheduleAt(ctx context.Context, workflowID string, at time.Time) (*model.ScheduledJob, bool, error) {
	w, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, false, fmt.Errorf("schedule workflow: %w", err)
	}
	if w.Status == model.WorkflowStatusDraft {
		return nil, false, &model.ConfigurationError{
			Subject: fmt.Sprintf("workflow %s", workflowID),
			Reason:  "draft workflows cannot be scheduled",
		}
	}
	return s.jobs.Schedule(ctx, workflowID, at)
}

// ScheduleNext creates the next recurring job of an active workflow with a
// cron expression. It returns nil when the workflow is not recurring or not
// active.
func (s *Scheduler) ScheduleNext(ctx context.Context, workflowID string, now time.Time) (*model.ScheduledJob, error) {
	w, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("schedule next run: %w", err)
	}
	if w.Status != model.WorkflowStatusActive || w.CronExpression == nil || *w.CronExpression == "" {
		return nil, nil
	}

	next, err := NextOccurrence(*w.CronExpression, now, s.loc)
	if err != nil {
		return nil, fmt.Errorf("schedule next run of workflow %s: %w", workflowID, err)
	}
	job, _, err := s.jobs.Schedule(ctx, workflowID, next)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Activate marks a workflow active and schedules its next recurring run.
func (s *Scheduler) Activate(ctx context.Context, workflowID string, now time.Time) (*model.ScheduledJob, error) {
	if err := s.workflows.SetStatus(ctx, workflowID, model.WorkflowStatusActive); err != nil {
		return nil, fmt.Errorf("activate workflow: %w", err)
	}
	return s.ScheduleNext(ctx, workflowID, now)
}

// Pause marks a workflow paused and cancels its pending jobs.
func (s *Scheduler) Pause(ctx context.Context, workflowID string) (int64, error) {
	if err := s.workflows.SetStatus(ctx, workflowID, model.WorkflowStatusPaused); err != nil {
		return 0, fmt.Errorf("pause workflow: %w", err)
	}
	return s.jobs.CancelPendingForWorkflow(ctx, workflowID)
}
