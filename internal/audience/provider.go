package audience

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/outreach/internal/model"
	"github.com/edvin/outreach/internal/query"
	"github.com/edvin/outreach/internal/resolver"
)

const (
	// MaxPreviewRows caps preview requests.
	MaxPreviewRows = 5
	// DefaultPreviewRows is used when a preview asks for zero rows.
	DefaultPreviewRows = 3
)

// Provider turns target group definitions into recipient rows.
type Provider struct {
	exec   query.Executor
	logger zerolog.Logger
}

// NewProvider creates a Provider over the recipient data executor.
func NewProvider(exec query.Executor, logger zerolog.Logger) *Provider {
	return &Provider{exec: exec, logger: logger}
}

// Stream runs a full pass over the target group, calling fn once per recipient
// with one row in memory at a time. It returns the number of rows delivered to fn.
// Executor failures are returned as *model.AudienceResolutionError and
// definition problems as *model.ConfigurationError. An error returned by fn
// stops the pass and is returned unchanged.
func (p *Provider) Stream(ctx context.Context, tg model.TargetGroup, fn func(model.RecipientRow) error) (int, error) {
	statement, args, err := p.statement(tg)
	if err != nil {
		return 0, err
	}

	var (
		count     int
		skipped   int
		stopErr   error
		contactAt int
	)
	onColumns := func(columns []string) error {
		contactAt = slices.Index(columns, tg.ContactColumn)
		if contactAt < 0 {
			stopErr = &model.ConfigurationError{
				Subject: fmt.Sprintf("target group %s", tg.ID),
				Reason:  fmt.Sprintf("contact column %q not in result columns %v", tg.ContactColumn, columns),
			}
			return stopErr
		}
		return nil
	}
	err = p.exec.Stream(ctx, statement, args, onColumns, func(columns []string, values []any) error {
		contact, ok := resolver.Stringify(values[contactAt])
		if !ok {
			skipped++
			return nil
		}
		fields := make(map[string]any, len(columns))
		for i, c := range columns {
			fields[c] = values[i]
		}
		count++
		if err := fn(model.RecipientRow{Contact: strings.TrimSpace(contact), Fields: fields}); err != nil {
			stopErr = err
			return err
		}
		return nil
	})

	if skipped > 0 {
		p.logger.Warn().Str("target_group_id", tg.ID).Int("skipped", skipped).Msg("skipped rows without contact")
	}
	if stopErr != nil && errors.Is(err, stopErr) {
		return count, stopErr
	}
	if err != nil {
		return count, &model.AudienceResolutionError{TargetGroupID: tg.ID, Err: err}
	}
	return count, nil
}

// Preview returns the first limit rows (at most MaxPreviewRows) of the same
// ordered pass Stream produces. Preview rows are for display only.
func (p *Provider) Preview(ctx context.Context, tg model.TargetGroup, limit int) ([]model.RecipientRow, error) {
	if limit <= 0 {
		limit = DefaultPreviewRows
	}
	limit = min(limit, MaxPreviewRows)

	var rows []model.RecipientRow
	_, err := p.Stream(ctx, tg, func(row model.RecipientRow) error {
		rows = append(rows, row)
		if len(rows) >= limit {
			return query.ErrStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, query.ErrStop) {
		return nil, err
	}
	return rows, nil
}

func (p *Provider) statement(tg model.TargetGroup) (string, []any, error) {
	subject := fmt.Sprintf("target group %s", tg.ID)
	if strings.TrimSpace(tg.ContactColumn) == "" {
		return "", nil, &model.ConfigurationError{Subject: subject, Reason: "contact column is not set"}
	}

	switch tg.Type {
	case model.TargetTypeStatic:
		return StaticStatement(tg, p.exec.Style())
	case model.TargetTypeDynamic:
		if strings.TrimSpace(tg.Query) == "" {
			return "", nil, &model.ConfigurationError{Subject: subject, Reason: "dynamic target group has no query"}
		}
		return tg.Query, nil, nil
	default:
		return "", nil, &model.ConfigurationError{Subject: subject, Reason: fmt.Sprintf("unknown target group type %q", tg.Type)}
	}
}
