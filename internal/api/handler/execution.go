package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/outreach/internal/api/request"
	"github.com/edvin/outreach/internal/api/response"
	"github.com/edvin/outreach/internal/core"
)

type Execution struct {
	logs *core.ExecutionLogService
}

func NewExecution(logs *core.ExecutionLogService) *Execution {
	return &Execution{logs: logs}
}

// Get returns the timeline of one dispatch tick or job run.
func (h *Execution) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.logs.ListByExecution(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(entries) == 0 {
		response.WriteError(w, http.StatusNotFound, fmt.Sprintf("execution %s not found", id))
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"execution_id": id,
		"entries":      entries,
	})
}
