package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/outreach/internal/model"
	"github.com/edvin/outreach/internal/platform"
)

const mappingTemplateColumns = `id, name, description, mappings, is_favorite, usage_count, created_at, updated_at`

// MappingTemplateService stores reusable sets of variable mappings.
type MappingTemplateService struct {
	db DB
}

// NewMappingTemplateService creates a new MappingTemplateService.
func NewMappingTemplateService(db DB) *MappingTemplateService {
	return &MappingTemplateService{db: db}
}

func scanMappingTemplate(row pgx.Row) (*model.MappingTemplate, error) {
	var (
		mt       model.MappingTemplate
		mappings []byte
	)
	if err := row.Scan(&mt.ID, &mt.Name, &mt.Description, &mappings, &mt.IsFavorite,
		&mt.UsageCount, &mt.CreatedAt, &mt.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(mappings, &mt.Mappings); err != nil {
		return nil, fmt.Errorf("decode mappings of mapping template %s: %w", mt.ID, err)
	}
	return &mt, nil
}

// Create inserts a mapping template and fills in its id and timestamps.
func (s *MappingTemplateService) Create(ctx context.Context, mt *model.MappingTemplate) error {
	if mt.ID == "" {
		mt.ID = platform.NewID()
	}
	data, err := marshalJSON(mt.Mappings)
	if err != nil {
		return fmt.Errorf("encode mappings: %w", err)
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO mapping_templates (id, name, description, mappings, is_favorite, usage_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, now(), now())
		 RETURNING created_at, updated_at`,
		mt.ID, mt.Name, mt.Description, data, mt.IsFavorite,
	).Scan(&mt.CreatedAt, &mt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert mapping template %s: %w", mt.Name, err)
	}
	return nil
}

// Get returns a mapping template by id.
func (s *MappingTemplateService) Get(ctx context.Context, id string) (*model.MappingTemplate, error) {
	mt, err := scanMappingTemplate(s.db.QueryRow(ctx,
		`SELECT `+mappingTemplateColumns+` FROM mapping_templates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get mapping template %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping template %s: %w", id, err)
	}
	return mt, nil
}

// List returns mapping templates, favorites first, then most used.
func (s *MappingTemplateService) List(ctx context.Context, favoritesOnly bool) ([]model.MappingTemplate, error) {
	query := `SELECT ` + mappingTemplateColumns + ` FROM mapping_templates`
	if favoritesOnly {
		query += ` WHERE is_favorite`
	}
	query += ` ORDER BY is_favorite DESC, usage_count DESC, name`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list mapping templates: %w", err)
	}
	defer rows.Close()

	var out []model.MappingTemplate
	for rows.Next() {
		mt, err := scanMappingTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mapping template: %w", err)
		}
		out = append(out, *mt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mapping templates: %w", err)
	}
	return out, nil
}

// SetFavorite marks or unmarks a mapping template as favorite.
func (s *MappingTemplateService) SetFavorite(ctx context.Context, id string, favorite bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE mapping_templates SET is_favorite = $1, updated_at = now() WHERE id = $2`, favorite, id)
	if err != nil {
		return fmt.Errorf("set favorite on mapping template %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set favorite on mapping template %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// Use increments the usage counter and returns the template's mappings.
func (s *MappingTemplateService) Use(ctx context.Context, id string) (*model.MappingTemplate, error) {
	mt, err := scanMappingTemplate(s.db.QueryRow(ctx,
		`UPDATE mapping_templates SET usage_count = usage_count + 1, updated_at = now()
		 WHERE id = $1 RETURNING `+mappingTemplateColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("use mapping template %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("use mapping template %s: %w", id, err)
	}
	return mt, nil
}

// Delete removes a mapping template.
func (s *MappingTemplateService) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM mapping_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete mapping template %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete mapping template %s: %w", id, model.ErrNotFound)
	}
	return nil
}
