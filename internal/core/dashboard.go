package core

import (
	"context"
	"fmt"
	"time"
)

// JobStats holds aggregate scheduled job counts.
type JobStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`

	// Delayed counts pending jobs overdue by more than the delay threshold.
	Delayed int `json:"delayed"`
	// Upcoming counts pending jobs due within the upcoming window.
	Upcoming int `json:"upcoming"`
	// StaleRunning counts running jobs started before the stale cutoff.
	StaleRunning int `json:"stale_running"`

	WorkflowsByStatus []StatusCount `json:"workflows_by_status"`
}

// StatusCount holds a count grouped by status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// StatsWindow sets the thresholds JobStats classifies against.
type StatsWindow struct {
	Now            time.Time
	DelayedAfter   time.Duration
	UpcomingWithin time.Duration
	// StaleAfter of zero disables stale running detection.
	StaleAfter time.Duration
}

// DashboardService queries aggregate scheduler stats from the core DB.
type DashboardService struct {
	db DB
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(db DB) *DashboardService {
	return &DashboardService{db: db}
}

// JobStats returns job counts using a single query.
func (s *DashboardService) JobStats(ctx context.Context, w StatsWindow) (*JobStats, error) {
	const countsQuery = `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'running'),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'failed'),
			count(*) FILTER (WHERE status = 'cancelled'),
			count(*) FILTER (WHERE status = 'pending' AND scheduled_time < $1),
			count(*) FILTER (WHERE status = 'pending' AND scheduled_time >= $2 AND scheduled_time < $3),
			count(*) FILTER (WHERE status = 'running' AND $4::boolean AND started_at < $5)
		FROM scheduled_jobs`

	staleCutoff := w.Now.Add(-w.StaleAfter)
	stats := &JobStats{}
	err := s.db.QueryRow(ctx, countsQuery,
		w.Now.Add(-w.DelayedAfter),
		w.Now, w.Now.Add(w.UpcomingWithin),
		w.StaleAfter > 0, staleCutoff,
	).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Completed,
		&stats.Failed,
		&stats.Cancelled,
		&stats.Delayed,
		&stats.Upcoming,
		&stats.StaleRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("job stats counts: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT status, count(*) FROM workflows GROUP BY status ORDER BY count(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("job stats workflows by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.WorkflowsByStatus = append(stats.WorkflowsByStatus, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return stats, nil
}
