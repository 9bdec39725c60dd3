package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/outreach/internal/model"
)

const targetGroupColumns = `id, name, type, table_name, filters, query, expected_fields, contact_column, mapping_columns, last_executed, last_count, created_at, updated_at`

// TargetGroupService manages audience definitions.
type TargetGroupService struct {
	db DB
}

// NewTargetGroupService creates a new TargetGroupService.
func NewTargetGroupService(db DB) *TargetGroupService {
	return &TargetGroupService{db: db}
}

func scanTargetGroup(row pgx.Row) (*model.TargetGroup, error) {
	var (
		tg                       model.TargetGroup
		filters, expected, mcols []byte
	)
	err := row.Scan(&tg.ID, &tg.Name, &tg.Type, &tg.Table, &filters, &tg.Query, &expected,
		&tg.ContactColumn, &mcols, &tg.LastExecuted, &tg.LastCount, &tg.CreatedAt, &tg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(filters, &tg.Filters); err != nil {
		return nil, fmt.Errorf("decode filters of target group %s: %w", tg.ID, err)
	}
	if err := unmarshalJSON(expected, &tg.ExpectedFields); err != nil {
		return nil, fmt.Errorf("decode expected fields of target group %s: %w", tg.ID, err)
	}
	if err := unmarshalJSON(mcols, &tg.MappingColumns); err != nil {
		return nil, fmt.Errorf("decode mapping columns of target group %s: %w", tg.ID, err)
	}
	return &tg, nil
}

// Get returns a target group by id.
func (s *TargetGroupService) Get(ctx context.Context, id string) (*model.TargetGroup, error) {
	tg, err := scanTargetGroup(s.db.QueryRow(ctx,
		`SELECT `+targetGroupColumns+` FROM target_groups WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get target group %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get target group %s: %w", id, err)
	}
	return tg, nil
}

// Upsert creates or replaces a target group definition. Execution statistics
// are preserved.
func (s *TargetGroupService) Upsert(ctx context.Context, tg *model.TargetGroup) error {
	filters, err := marshalJSON(tg.Filters)
	if err != nil {
		return fmt.Errorf("encode filters of target group %s: %w", tg.ID, err)
	}
	expected, err := marshalJSON(tg.ExpectedFields)
	if err != nil {
		return fmt.Errorf("encode expected fields of target group %s: %w", tg.ID, err)
	}
	mcols, err := marshalJSON(tg.MappingColumns)
	if err != nil {
		return fmt.Errorf("encode mapping columns of target group %s: %w", tg.ID, err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO target_groups (id, name, type, table_name, filters, query, expected_fields, contact_column, mapping_columns, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type, table_name = EXCLUDED.table_name,
		   filters = EXCLUDED.filters, query = EXCLUDED.query, expected_fields = EXCLUDED.expected_fields,
		   contact_column = EXCLUDED.contact_column, mapping_columns = EXCLUDED.mapping_columns, updated_at = now()`,
		tg.ID, tg.Name, tg.Type, tg.Table, filters, tg.Query, expected, tg.ContactColumn, mcols,
	)
	if err != nil {
		return fmt.Errorf("upsert target group %s: %w", tg.ID, err)
	}
	return nil
}

// RecordExecution stores the row count of the latest full pass.
func (s *TargetGroupService) RecordExecution(ctx context.Context, id string, count int, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE target_groups SET last_executed = $1, last_count = $2 WHERE id = $3`,
		at, count, id,
	)
	if err != nil {
		return fmt.Errorf("record execution of target group %s: %w", id, err)
	}
	return nil
}

// List returns target groups ordered by id with cursor pagination.
func (s *TargetGroupService) List(ctx context.Context, limit int, cursor string) ([]model.TargetGroup, bool, error) {
	query := `SELECT ` + targetGroupColumns + ` FROM target_groups`
	args := []any{}
	argIdx := 1
	if cursor != "" {
		query += fmt.Sprintf(` WHERE id > $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}
	query += ` ORDER BY id`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list target groups: %w", err)
	}
	defer rows.Close()

	var groups []model.TargetGroup
	for rows.Next() {
		tg, err := scanTargetGroup(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan target group: %w", err)
		}
		groups = append(groups, *tg)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate target groups: %w", err)
	}

	hasMore := len(groups) > limit
	if hasMore {
		groups = groups[:limit]
	}
	return groups, hasMore, nil
}

// marshalJSON encodes v for a JSONB column, writing [] for nil slices.
func marshalJSON[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	return json.Marshal(v)
}

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
