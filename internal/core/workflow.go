package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/outreach/internal/model"
)

// WorkflowService manages workflows and their attached target groups and templates.
type WorkflowService struct {
	db DB
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(db DB) *WorkflowService {
	return &WorkflowService{db: db}
}

// Get returns a workflow by id.
func (s *WorkflowService) Get(ctx context.Context, id string) (*model.Workflow, error) {
	var w model.Workflow
	err := s.db.QueryRow(ctx,
		`SELECT id, name, status, cron_expression, created_at, updated_at FROM workflows WHERE id = $1`, id,
	).Scan(&w.ID, &w.Name, &w.Status, &w.CronExpression, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get workflow %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	return &w, nil
}

// Upsert creates or replaces a workflow.
func (s *WorkflowService) Upsert(ctx context.Context, w *model.Workflow) error {
	if w.CronExpression != nil {
		if err := ValidateCron(*w.CronExpression); err != nil {
			return fmt.Errorf("upsert workflow %s: %w", w.ID, err)
		}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflows (id, name, status, cron_expression, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status,
		   cron_expression = EXCLUDED.cron_expression, updated_at = now()`,
		w.ID, w.Name, w.Status, w.CronExpression,
	)
	if err != nil {
		return fmt.Errorf("upsert workflow %s: %w", w.ID, err)
	}
	return nil
}

// SetStatus changes a workflow's status.
func (s *WorkflowService) SetStatus(ctx context.Context, id, status string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflows SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("set workflow %s status to %s: %w", id, status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set workflow %s status: %w", id, model.ErrNotFound)
	}
	return nil
}

// SetCron replaces a workflow's recurring schedule. A nil expression makes
// the workflow one-off.
func (s *WorkflowService) SetCron(ctx context.Context, id string, expr *string) error {
	if expr != nil {
		if err := ValidateCron(*expr); err != nil {
			return fmt.Errorf("set workflow %s schedule: %w", id, err)
		}
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE workflows SET cron_expression = $1, updated_at = now() WHERE id = $2`, expr, id)
	if err != nil {
		return fmt.Errorf("set workflow %s schedule: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set workflow %s schedule: %w", id, model.ErrNotFound)
	}
	return nil
}

// AttachTargetGroup adds a target group to a workflow at the given position.
func (s *WorkflowService) AttachTargetGroup(ctx context.Context, workflowID, targetGroupID string, position int) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_target_groups (workflow_id, target_group_id, position)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (workflow_id, target_group_id) DO UPDATE SET position = EXCLUDED.position`,
		workflowID, targetGroupID, position,
	)
	if err != nil {
		return fmt.Errorf("attach target group %s to workflow %s: %w", targetGroupID, workflowID, err)
	}
	return nil
}

// AttachTemplate adds a template with its variable mappings to a workflow.
func (s *WorkflowService) AttachTemplate(ctx context.Context, workflowID, templateID string, mappings []model.VariableMapping, position int) error {
	data, err := marshalJSON(mappings)
	if err != nil {
		return fmt.Errorf("encode variable mappings: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO workflow_templates (workflow_id, template_id, variable_mappings, position)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (workflow_id, template_id) DO UPDATE SET variable_mappings = EXCLUDED.variable_mappings, position = EXCLUDED.position`,
		workflowID, templateID, data, position,
	)
	if err != nil {
		return fmt.Errorf("attach template %s to workflow %s: %w", templateID, workflowID, err)
	}
	return nil
}

// RecordPreviewValues stores the values a preview resolved as the
// actual_value of the matching variable mappings. Sends never read them.
func (s *WorkflowService) RecordPreviewValues(ctx context.Context, workflowID, templateID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode preview values: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`UPDATE workflow_templates SET variable_mappings = (
			SELECT COALESCE(jsonb_agg(
				CASE WHEN $3::jsonb ? (m->>'template_variable')
					THEN m || jsonb_build_object('actual_value', $3::jsonb->>(m->>'template_variable'))
					ELSE m END
				ORDER BY ord), '[]'::jsonb)
			FROM jsonb_array_elements(variable_mappings) WITH ORDINALITY AS e(m, ord))
		 WHERE workflow_id = $1 AND template_id = $2`,
		workflowID, templateID, data,
	)
	if err != nil {
		return fmt.Errorf("record preview values for %s/%s: %w", workflowID, templateID, err)
	}
	return nil
}

// LoadPlan loads a workflow with its ordered target groups, templates,
// variable mappings and target mappings.
func (s *WorkflowService) LoadPlan(ctx context.Context, id string) (*model.WorkflowPlan, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	plan := &model.WorkflowPlan{Workflow: *w}

	tgRows, err := s.db.Query(ctx,
		`SELECT `+prefixColumns("tg", targetGroupColumns)+`
		 FROM workflow_target_groups wtg JOIN target_groups tg ON tg.id = wtg.target_group_id
		 WHERE wtg.workflow_id = $1
		 ORDER BY wtg.position, tg.id`, id)
	if err != nil {
		return nil, fmt.Errorf("load target groups of workflow %s: %w", id, err)
	}
	defer tgRows.Close()
	for tgRows.Next() {
		tg, err := scanTargetGroup(tgRows)
		if err != nil {
			return nil, fmt.Errorf("scan target group of workflow %s: %w", id, err)
		}
		plan.TargetGroups = append(plan.TargetGroups, *tg)
	}
	if err := tgRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate target groups of workflow %s: %w", id, err)
	}

	tRows, err := s.db.Query(ctx,
		`SELECT t.id, t.name, t.content, t.created_at, t.updated_at, wt.variable_mappings
		 FROM workflow_templates wt JOIN message_templates t ON t.id = wt.template_id
		 WHERE wt.workflow_id = $1
		 ORDER BY wt.position, t.id`, id)
	if err != nil {
		return nil, fmt.Errorf("load templates of workflow %s: %w", id, err)
	}
	defer tRows.Close()
	for tRows.Next() {
		var (
			tp       model.TemplatePlan
			mappings []byte
		)
		if err := tRows.Scan(&tp.Template.ID, &tp.Template.Name, &tp.Template.Content,
			&tp.Template.CreatedAt, &tp.Template.UpdatedAt, &mappings); err != nil {
			return nil, fmt.Errorf("scan template of workflow %s: %w", id, err)
		}
		if err := unmarshalJSON(mappings, &tp.Mappings); err != nil {
			return nil, fmt.Errorf("decode variable mappings of template %s: %w", tp.Template.ID, err)
		}
		plan.Templates = append(plan.Templates, tp)
	}
	if err := tRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates of workflow %s: %w", id, err)
	}

	mRows, err := s.db.Query(ctx,
		`SELECT m.id, m.target_group_id, m.template_id, m.field_mappings, m.created_at, m.updated_at
		 FROM target_template_mappings m
		 JOIN workflow_target_groups wtg ON wtg.target_group_id = m.target_group_id AND wtg.workflow_id = $1
		 JOIN workflow_templates wt ON wt.template_id = m.template_id AND wt.workflow_id = $1
		 ORDER BY m.id`, id)
	if err != nil {
		return nil, fmt.Errorf("load target mappings of workflow %s: %w", id, err)
	}
	defer mRows.Close()
	for mRows.Next() {
		var (
			m      model.TargetTemplateMapping
			fields []byte
		)
		if err := mRows.Scan(&m.ID, &m.TargetGroupID, &m.TemplateID, &fields, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan target mapping of workflow %s: %w", id, err)
		}
		if err := unmarshalJSON(fields, &m.FieldMappings); err != nil {
			return nil, fmt.Errorf("decode field mappings of %s: %w", m.ID, err)
		}
		plan.TargetMappings = append(plan.TargetMappings, m)
	}
	if err := mRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate target mappings of workflow %s: %w", id, err)
	}

	return plan, nil
}

// prefixColumns qualifies a comma separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
