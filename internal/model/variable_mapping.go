package model

import "time"

// Variable source types.
const (
	SourceField    = "field"
	SourceQuery    = "query"
	SourceFunction = "function"
)

// Variable formatters.
const (
	FormatText     = "text"
	FormatNumber   = "number"
	FormatCurrency = "currency"
	FormatDate     = "date"
)

// VariableMapping is the rule for resolving one template placeholder.
type VariableMapping struct {
	TemplateVariable string `json:"template_variable" yaml:"template_variable" validate:"required"`
	SourceType       string `json:"source_type" yaml:"source_type" validate:"required,oneof=field query function"`
	// SourceField is a row field name, SQL text, or function name depending on SourceType.
	SourceField    string `json:"source_field" yaml:"source_field" validate:"required"`
	DefaultValue   string `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	Formatter      string `json:"formatter,omitempty" yaml:"formatter,omitempty" validate:"omitempty,oneof=text number currency date"`
	SelectedColumn string `json:"selected_column,omitempty" yaml:"selected_column,omitempty"`
	// ActualValue is the last previewed value. Never read at send time.
	ActualValue string `json:"actual_value,omitempty" yaml:"-"`
}

// FieldMapping binds a template variable directly to a column of a target
// group's rows.
type FieldMapping struct {
	TemplateVariable string `json:"template_variable" yaml:"template_variable" validate:"required"`
	TargetField      string `json:"target_field" yaml:"target_field" validate:"required"`
	Formatter        string `json:"formatter,omitempty" yaml:"formatter,omitempty" validate:"omitempty,oneof=text number currency date"`
	DefaultValue     string `json:"default_value,omitempty" yaml:"default_value,omitempty"`
}

// AsVariableMapping converts the binding into an equivalent field-sourced mapping.
func (f FieldMapping) AsVariableMapping() VariableMapping {
	return VariableMapping{
		TemplateVariable: f.TemplateVariable,
		SourceType:       SourceField,
		SourceField:      f.TargetField,
		DefaultValue:     f.DefaultValue,
		Formatter:        f.Formatter,
	}
}

// TargetTemplateMapping associates one target group with one template.
type TargetTemplateMapping struct {
	ID            string         `json:"id"`
	TargetGroupID string         `json:"target_group_id"`
	TemplateID    string         `json:"template_id"`
	FieldMappings []FieldMapping `json:"field_mappings"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// MappingTemplate is a saved, reusable set of variable mappings.
type MappingTemplate struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Mappings    []VariableMapping `json:"mappings"`
	IsFavorite  bool              `json:"is_favorite"`
	UsageCount  int               `json:"usage_count"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
