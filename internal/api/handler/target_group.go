package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/outreach/internal/api/request"
	"github.com/edvin/outreach/internal/api/response"
	"github.com/edvin/outreach/internal/core"
	"github.com/edvin/outreach/internal/model"
)

// AudiencePreviewer returns the first rows of a target group.
type AudiencePreviewer interface {
	Preview(ctx context.Context, tg model.TargetGroup, limit int) ([]model.RecipientRow, error)
}

type TargetGroup struct {
	svc      *core.TargetGroupService
	audience AudiencePreviewer
}

func NewTargetGroup(svc *core.TargetGroupService, audience AudiencePreviewer) *TargetGroup {
	return &TargetGroup{svc: svc, audience: audience}
}

func (h *TargetGroup) List(w http.ResponseWriter, r *http.Request) {
	pg := request.ParsePagination(r)

	groups, hasMore, err := h.svc.List(r.Context(), pg.Limit, pg.Cursor)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if groups == nil {
		groups = []model.TargetGroup{}
	}

	var nextCursor string
	if hasMore && len(groups) > 0 {
		nextCursor = groups[len(groups)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, groups, nextCursor, hasMore)
}

func (h *TargetGroup) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tg, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, tg)
}

// Preview returns the first rows of the audience for display. Preview rows
// are never used for delivery.
func (h *TargetGroup) Preview(w http.ResponseWriter, r *http.Request) {
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

	tg, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rows, err := h.audience.Preview(r.Context(), *tg, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rows == nil {
		rows = []model.RecipientRow{}
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"target_group_id": id,
		"rows":            rows,
	})
}
