package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/outreach/internal/api/request"
	"github.com/edvin/outreach/internal/api/response"
	"github.com/edvin/outreach/internal/core"
	"github.com/edvin/outreach/internal/model"
)

type Job struct {
	jobs *core.JobStore
	logs *core.ExecutionLogService
	loc  *time.Location
	now  func() time.Time
}

func NewJob(jobs *core.JobStore, logs *core.ExecutionLogService, loc *time.Location) *Job {
	return &Job{jobs: jobs, logs: logs, loc: loc, now: time.Now}
}

func (h *Job) views(jobs []model.ScheduledJob) []model.JobView {
	now := h.now()
	out := make([]model.JobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, model.NewJobView(j, now, h.loc))
	}
	return out
}

func (h *Job) List(w http.ResponseWriter, r *http.Request) {
	params, err := request.ParseJobListParams(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, hasMore, err := h.jobs.List(r.Context(), core.JobFilter{
		Status:     params.Status,
		WorkflowID: params.WorkflowID,
	}, params.Limit, params.Cursor)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var nextCursor string
	if hasMore && len(jobs) > 0 {
		nextCursor = jobs[len(jobs)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, h.views(jobs), nextCursor, hasMore)
}

func (h *Job) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, model.NewJobView(*job, h.now(), h.loc))
}

// Logs returns every execution log entry of a job in insertion order.
func (h *Job) Logs(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.logs.ListByJob(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []model.ExecutionLogEntry{}
	}
	response.WriteJSON(w, http.StatusOK, entries)
}

// Cancel cancels a pending job. Jobs in any other status answer 409.
func (h *Job) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.jobs.Cancel(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, model.NewJobView(*job, h.now(), h.loc))
}
