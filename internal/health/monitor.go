package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/edvin/outreach/internal/core"
	"github.com/edvin/outreach/internal/model"
)

// Health levels.
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
	StatusUnknown  = "unknown"
)

// Recommendation levels.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Thresholds configures the monitor's classifications.
type Thresholds struct {
	DelayedAfter   time.Duration
	UpcomingWithin time.Duration
	TriggerHealthy time.Duration
	TriggerWarning time.Duration
	StepWindow     time.Duration
	// StaleRunningAfter of zero disables stale running detection.
	StaleRunningAfter time.Duration
	// Step success rates (percent) below these raise recommendations once a
	// step has at least MinStepSamples outcomes in the window.
	StepWarningRate  float64
	StepCriticalRate float64
	MinStepSamples   int
	ListLimit        int
}

// DefaultThresholds assumes the external timer fires every five minutes.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DelayedAfter:      5 * time.Minute,
		UpcomingWithin:    30 * time.Minute,
		TriggerHealthy:    7 * time.Minute,
		TriggerWarning:    15 * time.Minute,
		StepWindow:        24 * time.Hour,
		StaleRunningAfter: time.Hour,
		StepWarningRate:   90,
		StepCriticalRate:  50,
		MinStepSamples:    5,
		ListLimit:         20,
	}
}

// StatsSource provides aggregate job counts.
type StatsSource interface {
	JobStats(ctx context.Context, w core.StatsWindow) (*core.JobStats, error)
}

// JobLister lists pending jobs in a time range.
type JobLister interface {
	ListPending(ctx context.Context, from, to time.Time, limit int) ([]model.ScheduledJob, error)
}

// StepStatsSource provides per-step outcome counts.
type StepStatsSource interface {
	StepStats(ctx context.Context, since time.Time) ([]model.StepStat, error)
}

// TriggerSignalSource returns the most recent trigger signal, or an error
// wrapping model.ErrNotFound when none was recorded.
type TriggerSignalSource interface {
	Last(ctx context.Context) (*model.TriggerSignal, error)
}

// Recommendation is one suggested operator action.
type Recommendation struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// TriggerHealth describes the external timer.
type TriggerHealth struct {
	Status           string     `json:"status"`
	LastSignalAt     *time.Time `json:"last_signal_at,omitempty"`
	MinutesSinceLast *int       `json:"minutes_since_last,omitempty"`
	LastExecutedJobs int        `json:"last_executed_jobs"`
	LastDurationMs   int64      `json:"last_duration_ms"`
}

// Report is one health evaluation.
type Report struct {
	Status          string           `json:"status"`
	CheckedAt       time.Time        `json:"checked_at"`
	Jobs            core.JobStats    `json:"jobs"`
	DelayedJobs     []model.JobView  `json:"delayed_jobs"`
	UpcomingJobs    []model.JobView  `json:"upcoming_jobs"`
	Trigger         TriggerHealth    `json:"trigger"`
	Steps           []model.StepStat `json:"steps"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Monitor is a read-only aggregator over the job store, execution log and
// trigger signal history.
type Monitor struct {
	stats    StatsSource
	jobs     JobLister
	steps    StepStatsSource
	triggers TriggerSignalSource
	th       Thresholds
	loc      *time.Location
	now      func() time.Time
}

// NewMonitor creates a Monitor. Job times are displayed in loc.
func NewMonitor(stats StatsSource, jobs JobLister, steps StepStatsSource, triggers TriggerSignalSource, th Thresholds, loc *time.Location) *Monitor {
	return &Monitor{stats: stats, jobs: jobs, steps: steps, triggers: triggers, th: th, loc: loc, now: time.Now}
}

// Check evaluates scheduler health.
func (m *Monitor) Check(ctx context.Context) (*Report, error) {
	now := m.now()
	r := &Report{CheckedAt: now}

	stats, err := m.stats.JobStats(ctx, core.StatsWindow{
		Now:            now,
		DelayedAfter:   m.th.DelayedAfter,
		UpcomingWithin: m.th.UpcomingWithin,
		StaleAfter:     m.th.StaleRunningAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	r.Jobs = *stats

	delayed, err := m.jobs.ListPending(ctx, time.Time{}, now.Add(-m.th.DelayedAfter), m.th.ListLimit)
	if err != nil {
		return nil, fmt.Errorf("health check delayed jobs: %w", err)
	}
	upcoming, err := m.jobs.ListPending(ctx, now, now.Add(m.th.UpcomingWithin), m.th.ListLimit)
	if err != nil {
		return nil, fmt.Errorf("health check upcoming jobs: %w", err)
	}
	r.DelayedJobs = m.views(delayed, now)
	r.UpcomingJobs = m.views(upcoming, now)

	last, err := m.triggers.Last(ctx)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("health check trigger: %w", err)
	}
	r.Trigger = m.triggerHealth(last, now)

	r.Steps, err = m.steps.StepStats(ctx, now.Add(-m.th.StepWindow))
	if err != nil {
		return nil, fmt.Errorf("health check step stats: %w", err)
	}

	r.Recommendations = m.recommend(r)
	r.Status = overallStatus(r.Recommendations)
	return r, nil
}

func (m *Monitor) views(jobs []model.ScheduledJob, now time.Time) []model.JobView {
	out := make([]model.JobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, model.NewJobView(j, now, m.loc))
	}
	return out
}

// ClassifyTrigger classifies the time since the last trigger signal.
func ClassifyTrigger(since time.Duration, healthy, warning time.Duration) string {
	switch {
	case since <= healthy:
		return StatusHealthy
	case since <= warning:
		return StatusWarning
	default:
		return StatusCritical
	}
}

func (m *Monitor) triggerHealth(last *model.TriggerSignal, now time.Time) TriggerHealth {
	if last == nil {
		return TriggerHealth{Status: StatusUnknown}
	}
	since := now.Sub(last.ReceivedAt)
	minutes := int(since / time.Minute)
	at := last.ReceivedAt
	return TriggerHealth{
		Status:           ClassifyTrigger(since, m.th.TriggerHealthy, m.th.TriggerWarning),
		LastSignalAt:     &at,
		MinutesSinceLast: &minutes,
		LastExecutedJobs: last.ExecutedJobs,
		LastDurationMs:   last.DurationMs,
	}
}

func (m *Monitor) recommend(r *Report) []Recommendation {
	var recs []Recommendation
	add := func(level, msg, action string) {
		recs = append(recs, Recommendation{Level: level, Message: msg, Action: action})
	}

	switch r.Trigger.Status {
	case StatusUnknown:
		add(LevelWarning, "No dispatch trigger has ever been recorded",
			"Configure the external timer to call POST /cron/dispatch every 5 minutes")
	case StatusWarning:
		add(LevelWarning, fmt.Sprintf("Dispatch trigger last fired %d minutes ago", *r.Trigger.MinutesSinceLast),
			"Check the external timer schedule and recent trigger failures")
	case StatusCritical:
		add(LevelCritical, fmt.Sprintf("Dispatch trigger has not fired for %d minutes", *r.Trigger.MinutesSinceLast),
			"Check that the external timer is running and that its CRON_SECRET matches")
	}

	if r.Jobs.Delayed > 0 {
		level := LevelWarning
		if r.Trigger.Status == StatusHealthy {
			// The timer fires but due jobs are not picked up.
			level = LevelCritical
		}
		add(level, fmt.Sprintf("%d pending jobs are overdue by more than %s", r.Jobs.Delayed, m.th.DelayedAfter),
			"Run `outreachctl dispatch` and inspect the dispatcher logs for claim or query errors")
	}

	if r.Jobs.StaleRunning > 0 {
		add(LevelWarning, fmt.Sprintf("%d jobs have been running for more than %s", r.Jobs.StaleRunning, m.th.StaleRunningAfter),
			"The next dispatch tick fails them; check the send API and recipient database latency")
	}

	for _, st := range r.Steps {
		if st.Total < m.th.MinStepSamples {
			continue
		}
		msg := fmt.Sprintf("Step %s succeeded %.1f%% of %d times in the last %s", st.Step, st.SuccessRate, st.Total, m.th.StepWindow)
		switch {
		case st.SuccessRate < m.th.StepCriticalRate:
			add(LevelCritical, msg, stepAction(st.Step))
		case st.SuccessRate < m.th.StepWarningRate:
			add(LevelWarning, msg, stepAction(st.Step))
		}
	}

	if r.Jobs.Failed > 0 {
		add(LevelInfo, fmt.Sprintf("%d jobs have failed", r.Jobs.Failed),
			"Review error messages with GET /api/v1/jobs?status=failed")
	}
	if r.Jobs.Upcoming > 0 {
		add(LevelInfo, fmt.Sprintf("%d jobs are due in the next %s", r.Jobs.Upcoming, m.th.UpcomingWithin), "")
	}
	if len(recs) == 0 {
		add(LevelInfo, "Scheduler is healthy", "")
	}

	sort.SliceStable(recs, func(i, j int) bool { return levelRank(recs[i].Level) > levelRank(recs[j].Level) })
	return recs
}

func stepAction(step string) string {
	switch step {
	case model.StepSMSAPICall:
		return "Check the send API status and credentials"
	case model.StepTargetExtract:
		return "Check target group queries and the recipient database"
	case model.StepJobClaim, model.StepJobsQuery, model.StepStatusUpdate:
		return "Check the core database"
	default:
		return "Inspect recent execution logs for this step"
	}
}

func levelRank(level string) int {
	switch level {
	case LevelCritical:
		return 2
	case LevelWarning:
		return 1
	default:
		return 0
	}
}

func overallStatus(recs []Recommendation) string {
	status := StatusHealthy
	for _, r := range recs {
		switch r.Level {
		case LevelCritical:
			return StatusCritical
		case LevelWarning:
			status = StatusWarning
		}
	}
	return status
}
