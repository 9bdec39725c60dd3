package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/outreach/internal/model"
)

// TriggerSignalStore records each invocation of the dispatcher by the
// external timer.
type TriggerSignalStore struct {
	db DB
}

// NewTriggerSignalStore creates a new TriggerSignalStore.
func NewTriggerSignalStore(db DB) *TriggerSignalStore {
	return &TriggerSignalStore{db: db}
}

// Record inserts a signal and fills in its id.
func (s *TriggerSignalStore) Record(ctx context.Context, sig *model.TriggerSignal) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO trigger_signals (source, received_at, executed_jobs, duration_ms)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		sig.Source, sig.ReceivedAt, sig.ExecutedJobs, sig.DurationMs,
	).Scan(&sig.ID)
	if err != nil {
		return fmt.Errorf("record trigger signal: %w", err)
	}
	return nil
}

// Last returns the most recent signal, or model.ErrNotFound if none was ever recorded.
func (s *TriggerSignalStore) Last(ctx context.Context) (*model.TriggerSignal, error) {
	var sig model.TriggerSignal
	err := s.db.QueryRow(ctx,
		`SELECT id, source, received_at, executed_jobs, duration_ms
		 FROM trigger_signals ORDER BY received_at DESC LIMIT 1`,
	).Scan(&sig.ID, &sig.Source, &sig.ReceivedAt, &sig.ExecutedJobs, &sig.DurationMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("last trigger signal: %w", model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("last trigger signal: %w", err)
	}
	return &sig, nil
}
