package definition

import (
	"time"

	"github.com/edvin/outreach/internal/model"
)

// Definition is a campaign catalog file: templates, target groups,
// workflows and saved mapping sets.
type Definition struct {
	Templates        []TemplateDef        `yaml:"templates" validate:"dive"`
	TargetGroups     []TargetGroupDef     `yaml:"target_groups" validate:"dive"`
	Workflows        []WorkflowDef        `yaml:"workflows" validate:"dive"`
	MappingTemplates []MappingTemplateDef `yaml:"mapping_templates" validate:"dive"`
}

type TemplateDef struct {
	ID      string `yaml:"id" validate:"required"`
	Name    string `yaml:"name" validate:"required"`
	Content string `yaml:"content" validate:"required"`
}

type TargetGroupDef struct {
	ID            string `yaml:"id" validate:"required"`
	Name          string `yaml:"name" validate:"required"`
	Type          string `yaml:"type" validate:"required,oneof=static dynamic"`
	ContactColumn string `yaml:"contact_column" validate:"required"`

	Table   string                  `yaml:"table" validate:"required_if=Type static"`
	Filters []model.FilterCondition `yaml:"filters" validate:"dive"`
	Fields  []string                `yaml:"fields"`

	Query          string   `yaml:"query" validate:"required_if=Type dynamic"`
	MappingColumns []string `yaml:"mapping_columns"`
}

type WorkflowDef struct {
	ID     string  `yaml:"id" validate:"required"`
	Name   string  `yaml:"name" validate:"required"`
	Status string  `yaml:"status" validate:"omitempty,oneof=draft active paused"`
	Cron   *string `yaml:"cron" validate:"omitempty,cron"`

	TargetGroups []string             `yaml:"target_groups" validate:"required,min=1"`
	Templates    []WorkflowTemplateDef `yaml:"templates" validate:"required,min=1,dive"`
	// Bindings map target group columns directly onto template variables.
	Bindings []BindingDef `yaml:"bindings" validate:"dive"`

	// ScheduleAt creates a one-off job when the file is applied.
	ScheduleAt *time.Time `yaml:"schedule_at"`
}

type WorkflowTemplateDef struct {
	Template string                  `yaml:"template" validate:"required"`
	Mappings []model.VariableMapping `yaml:"mappings" validate:"dive"`
}

type BindingDef struct {
	TargetGroup string               `yaml:"target_group" validate:"required"`
	Template    string               `yaml:"template" validate:"required"`
	Fields      []model.FieldMapping `yaml:"fields" validate:"required,min=1,dive"`
}

type MappingTemplateDef struct {
	Name        string                  `yaml:"name" validate:"required,max=200"`
	Description string                  `yaml:"description"`
	Favorite    bool                    `yaml:"favorite"`
	Mappings    []model.VariableMapping `yaml:"mappings" validate:"required,min=1,dive"`
}
