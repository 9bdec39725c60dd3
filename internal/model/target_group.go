package model

import "time"

// Target group types.
const (
	TargetTypeStatic  = "static"
	TargetTypeDynamic = "dynamic"
)

// Filter operators for static target groups.
const (
	FilterEquals      = "equals"
	FilterContains    = "contains"
	FilterGreaterThan = "greater_than"
	FilterLessThan    = "less_than"
)

// FilterCondition is one predicate of a static target group.
type FilterCondition struct {
	Field    string `json:"field" yaml:"field" validate:"required"`
	Operator string `json:"operator" yaml:"operator" validate:"required,oneof=equals contains greater_than less_than"`
	Value    string `json:"value" yaml:"value"`
}

// TargetGroup defines an audience, either a filtered table (static) or an
// arbitrary query (dynamic).
type TargetGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`

	// Static
	Table   string            `json:"table,omitempty"`
	Filters []FilterCondition `json:"filters,omitempty"`

	// Dynamic
	Query          string   `json:"query,omitempty"`
	MappingColumns []string `json:"mapping_columns,omitempty"`

	// ExpectedFields are the projected columns (static) or the declared output
	// columns (dynamic).
	ExpectedFields []string `json:"expected_fields,omitempty"`
	ContactColumn  string   `json:"contact_column"`

	LastExecuted *time.Time `json:"last_executed,omitempty"`
	LastCount    *int       `json:"last_count,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
