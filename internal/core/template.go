package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/outreach/internal/model"
	"github.com/edvin/outreach/internal/platform"
)

// TemplateService stores message templates and the direct field bindings
// between target groups and templates.
type TemplateService struct {
	db DB
}

// NewTemplateService creates a new TemplateService.
func NewTemplateService(db DB) *TemplateService {
	return &TemplateService{db: db}
}

// Get returns a template by id.
func (s *TemplateService) Get(ctx context.Context, id string) (*model.Template, error) {
	var t model.Template
	err := s.db.QueryRow(ctx,
		`SELECT id, name, content, created_at, updated_at FROM message_templates WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Content, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get template %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return &t, nil
}

// Upsert creates or replaces a template.
func (s *TemplateService) Upsert(ctx context.Context, t *model.Template) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO message_templates (id, name, content, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, content = EXCLUDED.content, updated_at = now()`,
		t.ID, t.Name, t.Content,
	)
	if err != nil {
		return fmt.Errorf("upsert template %s: %w", t.ID, err)
	}
	return nil
}

// UpsertTargetMapping creates or replaces the field bindings of one
// (target group, template) pair.
func (s *TemplateService) UpsertTargetMapping(ctx context.Context, m *model.TargetTemplateMapping) error {
	if m.ID == "" {
		m.ID = platform.NewID()
	}
	fields, err := marshalJSON(m.FieldMappings)
	if err != nil {
		return fmt.Errorf("encode field mappings: %w", err)
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO target_template_mappings (id, target_group_id, template_id, field_mappings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 ON CONFLICT (target_group_id, template_id) DO UPDATE SET field_mappings = EXCLUDED.field_mappings, updated_at = now()
		 RETURNING id`,
		m.ID, m.TargetGroupID, m.TemplateID, fields,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("upsert target mapping %s/%s: %w", m.TargetGroupID, m.TemplateID, err)
	}
	return nil
}
