package handler

import (
	"net/http"
	"time"

	"github.com/edvin/outreach/internal/api/response"
	"github.com/edvin/outreach/internal/core"
	"github.com/edvin/outreach/internal/health"
)

type Dashboard struct {
	svc *core.DashboardService
	th  health.Thresholds
}

func NewDashboard(svc *core.DashboardService, th health.Thresholds) *Dashboard {
	return &Dashboard{svc: svc, th: th}
}

func (h *Dashboard) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.JobStats(r.Context(), core.StatsWindow{
		Now:            time.Now(),
		DelayedAfter:   h.th.DelayedAfter,
		UpcomingWithin: h.th.UpcomingWithin,
		StaleAfter:     h.th.StaleRunningAfter,
	})
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, stats)
}
