package model

import "time"

// Workflow is an operator-defined campaign.
type Workflow struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	CronExpression *string   `json:"cron_expression,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Template is a message template with #{name} placeholders.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplatePlan is one template of a workflow together with its mappings.
type TemplatePlan struct {
	Template Template          `json:"template"`
	Mappings []VariableMapping `json:"mappings"`
}

// WorkflowPlan is everything the dispatcher needs to run a workflow.
type WorkflowPlan struct {
	Workflow       Workflow                `json:"workflow"`
	TargetGroups   []TargetGroup           `json:"target_groups"`
	Templates      []TemplatePlan          `json:"templates"`
	TargetMappings []TargetTemplateMapping `json:"target_mappings"`
}

// TargetMapping returns the direct field binding for a (group, template) pair, if any.
func (p *WorkflowPlan) TargetMapping(targetGroupID, templateID string) *TargetTemplateMapping {
	for i := range p.TargetMappings {
		m := &p.TargetMappings[i]
		if m.TargetGroupID == targetGroupID && m.TemplateID == templateID {
			return m
		}
	}
	return nil
}
