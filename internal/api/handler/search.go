package handler

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/edvin/outreach/internal/api/response"
	"github.com/edvin/outreach/internal/core"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
)

var searchTypes = []string{"workflow", "target_group", "template", "mapping_template", "scheduled_job"}

type Search struct {
	svc *core.SearchService
}

func NewSearch(svc *core.SearchService) *Search {
	return &Search{svc: svc}
}

type searchResponse struct {
	Results []core.SearchResult `json:"results"`
}

// Search matches q against workflows, target groups, templates, mapping
// templates and job IDs. ?type= narrows the result to one catalog.
func (h *Search) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		response.WriteJSON(w, http.StatusOK, searchResponse{Results: []core.SearchResult{}})
		return
	}

	kind := r.URL.Query().Get("type")
	if kind != "" && !slices.Contains(searchTypes, kind) {
		response.WriteError(w, http.StatusBadRequest, "invalid type: must be one of "+strings.Join(searchTypes, ", "))
		return
	}

	limit := defaultSearchLimit
	if parsed, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && parsed > 0 {
		limit = min(parsed, maxSearchLimit)
	}

	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if kind != "" {
		results = slices.DeleteFunc(results, func(res core.SearchResult) bool { return res.Type != kind })
	}
	if results == nil {
		results = []core.SearchResult{}
	}

	response.WriteJSON(w, http.StatusOK, searchResponse{Results: results})
}
