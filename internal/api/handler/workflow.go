package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/outreach/internal/api/request"
	"github.com/edvin/outreach/internal/api/response"
	"github.com/edvin/outreach/internal/core"
	"github.com/edvin/outreach/internal/model"
	"github.com/edvin/outreach/internal/personalize"
)

// PlanPreviewer renders messages for the first rows of a plan's audiences.
type PlanPreviewer interface {
	Preview(ctx context.Context, plan *model.WorkflowPlan, limit int) ([]personalize.PreviewMessage, error)
}

type Workflow struct {
	workflows *core.WorkflowService
	scheduler *core.Scheduler
	previewer PlanPreviewer
	loc       *time.Location
	now       func() time.Time
}

func NewWorkflow(workflows *core.WorkflowService, scheduler *core.Scheduler, previewer PlanPreviewer, loc *time.Location) *Workflow {
	return &Workflow{workflows: workflows, scheduler: scheduler, previewer: previewer, loc: loc, now: time.Now}
}

// Get returns the workflow with its target groups, templates and mappings.
func (h *Workflow) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := h.workflows.LoadPlan(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, plan)
}

// Schedule creates a one-off job. Scheduling the same time twice returns the
// existing job with 200 instead of 201.
func (h *Workflow) Schedule(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.ScheduleWorkflow
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, created, err := h.scheduler.ScheduleAt(r.Context(), id, req.ScheduledTime)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.WriteJSON(w, status, model.NewJobView(*job, h.now(), h.loc))
}

func (h *Workflow) SetCron(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.SetWorkflowCron
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var expr *string
	if req.CronExpression != "" {
		expr = &req.CronExpression
	}
	if err := h.workflows.SetCron(r.Context(), id, expr); err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteNoContent(w)
}

// Activate marks the workflow active and schedules its next recurring run.
func (h *Workflow) Activate(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	next, err := h.scheduler.Activate(r.Context(), id, h.now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := map[string]any{"workflow_id": id, "status": model.WorkflowStatusActive}
	if next != nil {
		resp["next_job"] = model.NewJobView(*next, h.now(), h.loc)
	}
	response.WriteJSON(w, http.StatusOK, resp)
}

// Pause marks the workflow paused and cancels its pending jobs.
func (h *Workflow) Pause(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	cancelled, err := h.scheduler.Pause(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"workflow_id":    id,
		"status":         model.WorkflowStatusPaused,
		"cancelled_jobs": cancelled,
	})
}

// Preview renders messages for the first rows of each target group. Nothing
// is sent.
func (h *Workflow) Preview(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := request.ParsePreviewLimit(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := h.workflows.LoadPlan(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	messages, err := h.previewer.Preview(r.Context(), plan, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if messages == nil {
		messages = []personalize.PreviewMessage{}
	}
	for templateID, values := range previewValues(messages) {
		if err := h.workflows.RecordPreviewValues(r.Context(), id, templateID, values); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("workflow_id", id).Msg("record preview values")
		}
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// previewValues returns, per template, the variable values of the first
// previewed message.
func previewValues(messages []personalize.PreviewMessage) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, msg := range messages {
		if _, ok := out[msg.TemplateID]; ok {
			continue
		}
		values := make(map[string]string, len(msg.Resolutions))
		for _, res := range msg.Resolutions {
			values[res.Variable] = res.Value
		}
		out[msg.TemplateID] = values
	}
	return out
}
