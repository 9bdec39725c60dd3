package handler

import (
	"context"
	"net/http"

	"github.com/edvin/outreach/internal/api/response"
	"github.com/edvin/outreach/internal/health"
)

// HealthChecker evaluates scheduler health.
type HealthChecker interface {
	Check(ctx context.Context) (*health.Report, error)
}

type Health struct {
	checker HealthChecker
}

func NewHealth(checker HealthChecker) *Health {
	return &Health{checker: checker}
}

// Scheduler reports scheduler health. The status code is 200 even when the
// report is critical; the dashboard reads the status field.
func (h *Health) Scheduler(w http.ResponseWriter, r *http.Request) {
	report, err := h.checker.Check(r.Context())
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, report)
}
