package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/outreach/internal/core"
	"github.com/edvin/outreach/internal/metrics"
	"github.com/edvin/outreach/internal/model"
	"github.com/edvin/outreach/internal/personalize"
	"github.com/edvin/outreach/internal/platform"
	"github.com/edvin/outreach/internal/sender"
)

// StaleMessage is the error message written to running jobs that exceeded
// the stale threshold.
const StaleMessage = "execution timed out"

// Jobs is the subset of the job store the dispatcher drives.
type Jobs interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledJob, error)
	Claim(ctx context.Context, id, executionID string, now time.Time) (bool, error)
	Complete(ctx context.Context, id string, c model.JobCompletion, now time.Time) error
	Fail(ctx context.Context, id, message string, c model.JobCompletion, now time.Time) error
	FailStale(ctx context.Context, cutoff, now time.Time, message string) ([]model.ScheduledJob, error)
}

// Plans loads everything needed to run a workflow.
type Plans interface {
	LoadPlan(ctx context.Context, workflowID string) (*model.WorkflowPlan, error)
}

// ExecutionLog appends step records.
type ExecutionLog interface {
	Append(ctx context.Context, e *model.ExecutionLogEntry) error
}

// TriggerSignals records dispatcher invocations.
type TriggerSignals interface {
	Record(ctx context.Context, sig *model.TriggerSignal) error
}

// Rescheduler creates the next run of a recurring workflow.
type Rescheduler interface {
	ScheduleNext(ctx context.Context, workflowID string, now time.Time) (*model.ScheduledJob, error)
}

// AudienceStats records the size of a fully delivered target group.
type AudienceStats interface {
	RecordExecution(ctx context.Context, id string, count int, at time.Time) error
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, contact, content string) (*sender.Result, error)
}

// Deps are the dispatcher's collaborators.
type Deps struct {
	Jobs         Jobs
	Plans        Plans
	Logs         ExecutionLog
	Signals      TriggerSignals
	Scheduler    Rescheduler
	TargetGroups AudienceStats
	Engine       *personalize.Engine
	Sender       Sender
}

// DepsFromServices wires the core services into Deps.
func DepsFromServices(svc *core.Services, engine *personalize.Engine, s Sender) Deps {
	return Deps{
		Jobs:         svc.Jobs,
		Plans:        svc.Workflows,
		Logs:         svc.ExecutionLogs,
		Signals:      svc.TriggerSignals,
		Scheduler:    svc.Scheduler,
		TargetGroups: svc.TargetGroups,
		Engine:       engine,
		Sender:       s,
	}
}

// Options tune a Dispatcher.
type Options struct {
	// BatchSize caps the due jobs handled per invocation.
	BatchSize int
	// StaleAfter fails running jobs that started longer ago. Zero disables it.
	StaleAfter time.Duration
	Location   *time.Location
}

// Result is reported back to the external timer.
type Result struct {
	ExecutionID  string `json:"execution_id"`
	ExecutedJobs int    `json:"executed_jobs"`
	Completed    int    `json:"completed"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	Reaped       int    `json:"reaped"`
	DurationMs   int64  `json:"duration_ms"`
}

// Dispatcher runs due scheduled jobs. It holds no scheduling state of its
// own: every invocation lists due jobs and claims each one atomically, so
// overlapping invocations are safe.
type Dispatcher struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Dispatcher.
func New(deps Deps, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.BatchSize < 1 {
		opts.BatchSize = 100
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Dispatcher{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "dispatcher").Logger(),
		now:    time.Now,
	}
}

// Dispatch performs one tick: it fails stale running jobs, then claims and
// executes every due job. source names the caller ("http", "cli") in the
// recorded trigger signal. An error is returned only when due jobs could not
// be listed; per-job failures are written to the job and the execution log.
func (d *Dispatcher) Dispatch(ctx context.Context, source string) (*Result, error) {
	start := d.now()
	res := &Result{ExecutionID: platform.NewExecutionID()}
	logger := d.logger.With().Str("execution_id", res.ExecutionID).Logger()
	metrics.DispatchTicks.WithLabelValues(source).Inc()

	defer func() {
		res.DurationMs = d.now().Sub(start).Milliseconds()
		metrics.DispatchDuration.Observe(float64(res.DurationMs) / 1000)
		sig := &model.TriggerSignal{
			Source:       source,
			ReceivedAt:   start,
			ExecutedJobs: res.ExecutedJobs,
			DurationMs:   res.DurationMs,
		}
		if err := d.deps.Signals.Record(context.WithoutCancel(ctx), sig); err != nil {
			logger.Warn().Err(err).Msg("failed to record trigger signal")
		}
	}()

	d.append(ctx, logger, entry{execID: res.ExecutionID, step: model.StepCronTrigger, status: model.LogStatusStarted,
		message: fmt.Sprintf("dispatch triggered by %s", source)})

	if d.opts.StaleAfter > 0 {
		res.Reaped = d.reap(ctx, res.ExecutionID, start, logger)
	}

	queryStart := d.now()
	jobs, err := d.deps.Jobs.ListDue(ctx, start, d.opts.BatchSize)
	if err != nil {
		d.append(ctx, logger, entry{execID: res.ExecutionID, step: model.StepJobsQuery, status: model.LogStatusFailed,
			message: "failed to list due jobs", err: err, since: queryStart})
		logger.Error().Err(err).Msg("failed to list due jobs")
		return res, fmt.Errorf("list due jobs: %w", err)
	}
	d.append(ctx, logger, entry{execID: res.ExecutionID, step: model.StepJobsQuery, status: model.LogStatusSuccess,
		message: fmt.Sprintf("found %d due jobs", len(jobs)), since: queryStart})

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		switch d.execute(ctx, job) {
		case outcomeSkipped:
			res.Skipped++
		case outcomeCompleted:
			res.ExecutedJobs++
			res.Completed++
		case outcomeFailed:
			res.ExecutedJobs++
			res.Failed++
		}
	}

	d.append(ctx, logger, entry{execID: res.ExecutionID, step: model.StepCronTrigger, status: model.LogStatusSuccess,
		message: fmt.Sprintf("executed %d jobs (%d completed, %d failed, %d skipped)",
			res.ExecutedJobs, res.Completed, res.Failed, res.Skipped),
		since: start})
	logger.Info().
		Int("executed", res.ExecutedJobs).
		Int("completed", res.Completed).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Int("reaped", res.Reaped).
		Dur("duration", d.now().Sub(start)).
		Msg("dispatch finished")
	return res, nil
}

// reap fails running jobs that started before the stale cutoff and schedules
// their next recurring run.
func (d *Dispatcher) reap(ctx context.Context, execID string, now time.Time, logger zerolog.Logger) int {
	stale, err := d.deps.Jobs.FailStale(ctx, now.Add(-d.opts.StaleAfter), now, StaleMessage)
	if err != nil {
		d.append(ctx, logger, entry{execID: execID, step: model.StepStaleReap, status: model.LogStatusFailed,
			message: "failed to reap stale running jobs", err: err})
		logger.Error().Err(err).Msg("failed to reap stale running jobs")
		return 0
	}
	for i := range stale {
		job := &stale[i]
		metrics.DispatchJobs.WithLabelValues("reaped").Inc()
		d.append(ctx, logger, entry{execID: execID, job: job, step: model.StepStaleReap, status: model.LogStatusWarning,
			message: fmt.Sprintf("job running for more than %s marked failed", d.opts.StaleAfter)})
		logger.Warn().Str("job_id", job.ID).Str("workflow_id", job.WorkflowID).Msg("stale running job failed")
		d.reschedule(ctx, execID, job, logger)
	}
	return len(stale)
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCompleted
	outcomeFailed
)

// execute claims one job and runs it to a terminal state. Each run gets its
// own execution id so its timeline can be read on its own.
func (d *Dispatcher) execute(ctx context.Context, job model.ScheduledJob) outcome {
	runID := platform.NewExecutionID()
	logger := d.logger.With().
		Str("execution_id", runID).
		Str("job_id", job.ID).
		Str("workflow_id", job.WorkflowID).
		Logger()

	claimStart := d.now()
	claimed, err := d.deps.Jobs.Claim(ctx, job.ID, runID, claimStart)
	if err != nil {
		d.append(ctx, logger, entry{execID: runID, job: &job, step: model.StepJobClaim, status: model.LogStatusFailed,
			message: "failed to claim job", err: err, since: claimStart})
		logger.Error().Err(err).Msg("failed to claim job")
		return outcomeSkipped
	}
	if !claimed {
		metrics.DispatchJobs.WithLabelValues("conflict").Inc()
		d.append(ctx, logger, entry{execID: runID, job: &job, step: model.StepJobClaim, status: model.LogStatusWarning,
			message: model.ErrClaimConflict.Error(), since: claimStart})
		logger.Info().Msg("job already claimed, skipping")
		return outcomeSkipped
	}
	metrics.DispatchJobs.WithLabelValues("claimed").Inc()
	d.append(ctx, logger, entry{execID: runID, job: &job, step: model.StepJobClaim, status: model.LogStatusSuccess,
		message: "job claimed", since: claimStart})

	counts, runErr := d.run(ctx, runID, job, logger)

	// The job is owned by this run from here on; finish it even if the
	// caller went away.
	finishCtx := context.WithoutCancel(ctx)
	result := outcomeCompleted
	if runErr == nil && counts.SentCount == 0 && counts.FailedCount > 0 {
		runErr = fmt.Errorf("all %d sends failed", counts.FailedCount)
	}

	updateStart := d.now()
	if runErr != nil {
		result = outcomeFailed
		err = d.deps.Jobs.Fail(finishCtx, job.ID, runErr.Error(), counts, updateStart)
	} else {
		err = d.deps.Jobs.Complete(finishCtx, job.ID, counts, updateStart)
	}
	if err != nil {
		d.append(finishCtx, logger, entry{execID: runID, job: &job, step: model.StepStatusUpdate, status: model.LogStatusFailed,
			message: "failed to write terminal job status", err: err, since: updateStart})
		logger.Error().Err(err).Msg("failed to write terminal job status")
	} else if runErr != nil {
		metrics.DispatchJobs.WithLabelValues("failed").Inc()
		d.append(finishCtx, logger, entry{execID: runID, job: &job, step: model.StepStatusUpdate, status: model.LogStatusFailed,
			message: "job failed", err: runErr, since: updateStart})
		logger.Warn().Err(runErr).Int("sent", counts.SentCount).Int("failed", counts.FailedCount).Msg("job failed")
	} else {
		metrics.DispatchJobs.WithLabelValues("completed").Inc()
		d.append(finishCtx, logger, entry{execID: runID, job: &job, step: model.StepStatusUpdate, status: model.LogStatusSuccess,
			message: fmt.Sprintf("job completed: %d sent, %d failed", counts.SentCount, counts.FailedCount), since: updateStart})
		logger.Info().Int("sent", counts.SentCount).Int("failed", counts.FailedCount).Msg("job completed")
	}

	d.reschedule(finishCtx, runID, &job, logger)
	return result
}

// run loads the workflow, renders every message and hands each to the send
// API. Per-recipient delivery failures are counted, not returned.
func (d *Dispatcher) run(ctx context.Context, runID string, job model.ScheduledJob, logger zerolog.Logger) (model.JobCompletion, error) {
	var counts model.JobCompletion
	wfStart := d.now()
	d.append(ctx, logger, entry{execID: runID, job: &job, step: model.StepWorkflowExecute, status: model.LogStatusStarted,
		message: "loading workflow"})

	plan, err := d.deps.Plans.LoadPlan(ctx, job.WorkflowID)
	if err != nil {
		err = fmt.Errorf("load workflow %s: %w", job.WorkflowID, err)
		d.append(ctx, logger, entry{execID: runID, job: &job, step: model.StepWorkflowExecute, status: model.LogStatusFailed,
			message: "failed to load workflow", err: err, since: wfStart})
		return counts, err
	}
	if err := checkPlan(plan); err != nil {
		d.append(ctx, logger, entry{execID: runID, job: &job, step: model.StepWorkflowExecute, status: model.LogStatusFailed,
			message: "workflow cannot run", err: err, since: wfStart})
		return counts, err
	}
	for _, verr := range d.deps.Engine.Validate(plan) {
		d.append(ctx, logger, entry{execID: runID, job: &job, step: model.StepWorkflowExecute, status: model.LogStatusWarning,
			message: "invalid variable mapping resolves to its default", err: verr})
		logger.Warn().Err(verr).Msg("invalid variable mapping")
	}

	var sent, failed atomic.Int64
	emit := func(ctx context.Context, msg model.PersonalizedMessage) error {
		_, err := d.deps.Sender.Send(ctx, msg.RecipientContact, msg.RenderedContent)
		var de *model.DeliveryError
		switch {
		case err == nil:
			sent.Add(1)
			metrics.MessagesTotal.WithLabelValues("sent").Inc()
		case errors.As(err, &de):
			failed.Add(1)
			metrics.MessagesTotal.WithLabelValues("failed").Inc()
			d.append(ctx, logger, entry{execID: runID, job: &job, step: model.StepSMSAPICall, status: model.LogStatusFailed,
				message: fmt.Sprintf("send to %s failed (template %s)", msg.RecipientContact, msg.TemplateID), err: err})
		default:
			return err
		}
		return nil
	}

	genStart := d.now()
	run := d.deps.Engine.NewRun(plan)
	var messages, fallbacks int
	for _, tg := range plan.TargetGroups {
		tgStart := d.now()
		gr, err := run.Group(ctx, tg, emit)
		messages += gr.Messages
		fallbacks += gr.Fallbacks
		counts = model.JobCompletion{SentCount: int(sent.Load()), FailedCount: int(failed.Load())}
		if err != nil {
			err = fmt.Errorf("target group %s: %w", tg.ID, err)
			d.append(ctx, logger, entry{execID: runID, job: &job, step: model.StepTargetExtract, status: model.LogStatusFailed,
				message: fmt.Sprintf("target group %s aborted after %d recipients", tg.ID, gr.Recipients), err: err, since: tgStart})
			return counts, err
		}
		d.append(ctx, logger, entry{execID: runID, job: &job, step: model.StepTargetExtract, status: model.LogStatusSuccess,
			message: fmt.Sprintf("target group %s: %d recipients, %d messages, %d duplicates skipped",
				tg.ID, gr.Recipients, gr.Messages, gr.Duplicates),
			since: tgStart})
		if err := d.deps.TargetGroups.RecordExecution(ctx, tg.ID, gr.Recipients, d.now()); err != nil {
			logger.Warn().Err(err).Str("target_group_id", tg.ID).Msg("failed to record target group execution")
		}
	}
	metrics.VariableFallbacks.Add(float64(fallbacks))

	d.append(ctx, logger, entry{execID: runID, job: &job, step: model.StepMessageGenerate, status: model.LogStatusSuccess,
		message: fmt.Sprintf("rendered %d messages, %d variables used their default", messages, fallbacks), since: genStart})

	sendStatus := model.LogStatusSuccess
	switch {
	case counts.FailedCount > 0 && counts.SentCount == 0:
		sendStatus = model.LogStatusFailed
	case counts.FailedCount > 0:
		sendStatus = model.LogStatusWarning
	}
	d.append(ctx, logger, entry{execID: runID, job: &job, step: model.StepSMSAPICall, status: sendStatus,
		message: fmt.Sprintf("%d sent, %d failed", counts.SentCount, counts.FailedCount), since: genStart})

	d.append(ctx, logger, entry{execID: runID, job: &job, step: model.StepWorkflowExecute, status: model.LogStatusSuccess,
		message: fmt.Sprintf("workflow %q executed", plan.Workflow.Name), since: wfStart})
	return counts, nil
}

func checkPlan(plan *model.WorkflowPlan) error {
	subject := fmt.Sprintf("workflow %s", plan.Workflow.ID)
	switch {
	case len(plan.TargetGroups) == 0:
		return &model.ConfigurationError{Subject: subject, Reason: "no target groups"}
	case len(plan.Templates) == 0:
		return &model.ConfigurationError{Subject: subject, Reason: "no templates"}
	}
	return nil
}

func (d *Dispatcher) reschedule(ctx context.Context, execID string, job *model.ScheduledJob, logger zerolog.Logger) {
	start := d.now()
	next, err := d.deps.Scheduler.ScheduleNext(ctx, job.WorkflowID, start)
	switch {
	case err != nil:
		d.append(ctx, logger, entry{execID: execID, job: job, step: model.StepReschedule, status: model.LogStatusFailed,
			message: "failed to schedule next run", err: err, since: start})
		logger.Error().Err(err).Msg("failed to schedule next run")
	case next != nil:
		d.append(ctx, logger, entry{execID: execID, job: job, step: model.StepReschedule, status: model.LogStatusSuccess,
			message: fmt.Sprintf("next run at %s", next.ScheduledTime.In(d.opts.Location).Format("2006-01-02 15:04 MST")),
			since: start})
	}
}

// entry describes one execution log record. A zero since omits the duration.
type entry struct {
	execID  string
	job     *model.ScheduledJob
	step    string
	status  string
	message string
	err     error
	since   time.Time
}

func (d *Dispatcher) append(ctx context.Context, logger zerolog.Logger, e entry) {
	rec := &model.ExecutionLogEntry{
		ExecutionID: e.execID,
		Step:        e.step,
		Status:      e.status,
		Message:     e.message,
	}
	if e.job != nil {
		rec.JobID = &e.job.ID
		rec.WorkflowID = &e.job.WorkflowID
	}
	if e.err != nil {
		msg := e.err.Error()
		rec.ErrorMessage = &msg
	}
	if !e.since.IsZero() {
		ms := d.now().Sub(e.since).Milliseconds()
		rec.DurationMs = &ms
	}
	if err := d.deps.Logs.Append(ctx, rec); err != nil {
		logger.Warn().Err(err).Str("step", e.step).Msg("failed to append execution log")
	}
}
