package definition

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/outreach/internal/core"
	"github.com/edvin/outreach/internal/model"
)

type TemplateStore interface {
	Upsert(ctx context.Context, t *model.Template) error
	UpsertTargetMapping(ctx context.Context, m *model.TargetTemplateMapping) error
}

type TargetGroupStore interface {
	Upsert(ctx context.Context, tg *model.TargetGroup) error
}

type WorkflowStore interface {
	Upsert(ctx context.Context, w *model.Workflow) error
	AttachTargetGroup(ctx context.Context, workflowID, targetGroupID string, position int) error
	AttachTemplate(ctx context.Context, workflowID, templateID string, mappings []model.VariableMapping, position int) error
}

type WorkflowScheduler interface {
	ScheduleAt(ctx context.Context, workflowID string, at time.Time) (*model.ScheduledJob, bool, error)
	ScheduleNext(ctx context.Context, workflowID string, now time.Time) (*model.ScheduledJob, error)
}

type MappingTemplateStore interface {
	Create(ctx context.Context, mt *model.MappingTemplate) error
}

// MappingValidator rejects variable mappings that could never resolve.
type MappingValidator interface {
	Validate(m model.VariableMapping) error
}

// Stores are the write targets of an Applier.
type Stores struct {
	Templates        TemplateStore
	TargetGroups     TargetGroupStore
	Workflows        WorkflowStore
	Scheduler        WorkflowScheduler
	MappingTemplates MappingTemplateStore
}

// StoresFromServices wires the core services into Stores.
func StoresFromServices(svc *core.Services) Stores {
	return Stores{
		Templates:        svc.Templates,
		TargetGroups:     svc.TargetGroups,
		Workflows:        svc.Workflows,
		Scheduler:        svc.Scheduler,
		MappingTemplates: svc.MappingTemplates,
	}
}

// Summary counts what an Apply wrote.
type Summary struct {
	Templates        int
	TargetGroups     int
	Workflows        int
	Bindings         int
	MappingTemplates int
	ScheduledJobs    []*model.ScheduledJob
}

type Applier struct {
	stores    Stores
	validator MappingValidator
	logger    zerolog.Logger
	now       func() time.Time
}

// NewApplier creates an Applier. validator may be nil.
func NewApplier(stores Stores, validator MappingValidator, logger zerolog.Logger) *Applier {
	return &Applier{stores: stores, validator: validator, logger: logger, now: time.Now}
}

// Apply upserts every object of def. Templates and target groups are written
// before the workflows that reference them. Mapping templates are always
// created anew.
func (a *Applier) Apply(ctx context.Context, def *Definition) (*Summary, error) {
	if err := a.validateMappings(def); err != nil {
		return nil, err
	}

	sum := &Summary{}
	for _, t := range def.Templates {
		if err := a.stores.Templates.Upsert(ctx, &model.Template{ID: t.ID, Name: t.Name, Content: t.Content}); err != nil {
			return sum, err
		}
		sum.Templates++
	}

	for _, tg := range def.TargetGroups {
		group := &model.TargetGroup{
			ID:             tg.ID,
			Name:           tg.Name,
			Type:           tg.Type,
			Table:          tg.Table,
			Filters:        tg.Filters,
			Query:          tg.Query,
			MappingColumns: tg.MappingColumns,
			ExpectedFields: tg.Fields,
			ContactColumn:  tg.ContactColumn,
		}
		if err := a.stores.TargetGroups.Upsert(ctx, group); err != nil {
			return sum, err
		}
		sum.TargetGroups++
	}

	now := a.now()
	for _, w := range def.Workflows {
		if err := a.applyWorkflow(ctx, w, now, sum); err != nil {
			return sum, err
		}
	}

	for _, mt := range def.MappingTemplates {
		m := &model.MappingTemplate{Name: mt.Name, Description: mt.Description, Mappings: mt.Mappings, IsFavorite: mt.Favorite}
		if err := a.stores.MappingTemplates.Create(ctx, m); err != nil {
			return sum, err
		}
		sum.MappingTemplates++
	}

	return sum, nil
}

func (a *Applier) applyWorkflow(ctx context.Context, w WorkflowDef, now time.Time, sum *Summary) error {
	status := w.Status
	if status == "" {
		status = model.WorkflowStatusDraft
	}
	if err := a.stores.Workflows.Upsert(ctx, &model.Workflow{ID: w.ID, Name: w.Name, Status: status, CronExpression: w.Cron}); err != nil {
		return err
	}
	for i, tg := range w.TargetGroups {
		if err := a.stores.Workflows.AttachTargetGroup(ctx, w.ID, tg, i); err != nil {
			return err
		}
	}
	for i, t := range w.Templates {
		if err := a.stores.Workflows.AttachTemplate(ctx, w.ID, t.Template, t.Mappings, i); err != nil {
			return err
		}
	}
	for _, b := range w.Bindings {
		m := &model.TargetTemplateMapping{TargetGroupID: b.TargetGroup, TemplateID: b.Template, FieldMappings: b.Fields}
		if err := a.stores.Templates.UpsertTargetMapping(ctx, m); err != nil {
			return err
		}
		sum.Bindings++
	}
	sum.Workflows++

	if w.ScheduleAt != nil {
		job, created, err := a.stores.Scheduler.ScheduleAt(ctx, w.ID, *w.ScheduleAt)
		if err != nil {
			return fmt.Errorf("schedule workflow %s: %w", w.ID, err)
		}
		if created {
			sum.ScheduledJobs = append(sum.ScheduledJobs, job)
		}
	}
	if status == model.WorkflowStatusActive && w.Cron != nil {
		job, err := a.stores.Scheduler.ScheduleNext(ctx, w.ID, now)
		if err != nil {
			return err
		}
		if job != nil {
			sum.ScheduledJobs = append(sum.ScheduledJobs, job)
		}
	}

	a.logger.Info().Str("workflow_id", w.ID).Str("status", status).Msg("workflow applied")
	return nil
}

func (a *Applier) validateMappings(def *Definition) error {
	if a.validator == nil {
		return nil
	}
	check := func(ms []model.VariableMapping) error {
		for _, m := range ms {
			if err := a.validator.Validate(m); err != nil {
				return err
			}
		}
		return nil
	}
	for _, w := range def.Workflows {
		for _, t := range w.Templates {
			if err := check(t.Mappings); err != nil {
				return fmt.Errorf("workflow %s template %s: %w", w.ID, t.Template, err)
			}
		}
	}
	for _, mt := range def.MappingTemplates {
		if err := check(mt.Mappings); err != nil {
			return fmt.Errorf("mapping template %q: %w", mt.Name, err)
		}
	}
	return nil
}
