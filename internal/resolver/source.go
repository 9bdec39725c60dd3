package resolver

import (
	"fmt"
	"strings"

	"github.com/edvin/outreach/internal/model"
	"github.com/edvin/outreach/internal/query"
)

// Source is where a variable's value comes from. It is a closed set: a row
// field, a parameterized query, or a registered function.
type Source interface {
	sealed()
}

// FieldSource reads a named field of the recipient row.
type FieldSource struct {
	Field string
}

// QuerySource runs a statement with {field} placeholders bound from the row.
type QuerySource struct {
	Statement      string
	SelectedColumn string
}

// FunctionSource calls a registered pure function.
type FunctionSource struct {
	Name string
	Fn   Func
}

func (FieldSource) sealed()    {}
func (QuerySource) sealed()    {}
func (FunctionSource) sealed() {}

// ParseSource maps a mapping's source type onto its variant.
func ParseSource(m model.VariableMapping, funcs *Registry) (Source, error) {
	switch m.SourceType {
	case model.SourceField:
		if strings.TrimSpace(m.SourceField) == "" {
			return nil, fmt.Errorf("field source needs a field name")
		}
		return FieldSource{Field: m.SourceField}, nil
	case model.SourceQuery:
		if strings.TrimSpace(m.SourceField) == "" {
			return nil, fmt.Errorf("query source needs a statement")
		}
		if names := query.EmbeddedPlaceholders(m.SourceField); len(names) > 0 {
			return nil, fmt.Errorf("placeholder {%s} inside a string literal cannot be bound; use '{%s}' or concatenate", names[0], names[0])
		}
		return QuerySource{Statement: m.SourceField, SelectedColumn: m.SelectedColumn}, nil
	case model.SourceFunction:
		fn, ok := funcs.Lookup(m.SourceField)
		if !ok {
			return nil, fmt.Errorf("unknown function %q", m.SourceField)
		}
		return FunctionSource{Name: m.SourceField, Fn: fn}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", m.SourceType)
	}
}
