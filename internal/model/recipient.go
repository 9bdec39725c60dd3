package model

// RecipientRow is one audience member: a contact address plus arbitrary named fields.
type RecipientRow struct {
	Contact string         `json:"contact"`
	Fields  map[string]any `json:"fields"`
}

// Field returns the named field and whether it is present and non-null.
func (r RecipientRow) Field(name string) (any, bool) {
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// PersonalizedMessage is one rendered message for one recipient and template.
type PersonalizedMessage struct {
	RecipientContact string `json:"recipient_contact"`
	TemplateID       string `json:"template_id"`
	TargetGroupID    string `json:"target_group_id"`
	RenderedContent  string `json:"rendered_content"`
	// FallbackCount is how many variables resolved to their default.
	FallbackCount int `json:"fallback_count"`
}
