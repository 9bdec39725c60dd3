package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/outreach/internal/api/request"
	"github.com/edvin/outreach/internal/api/response"
	"github.com/edvin/outreach/internal/core"
	"github.com/edvin/outreach/internal/model"
)

type MappingTemplate struct {
	svc *core.MappingTemplateService
}

func NewMappingTemplate(svc *core.MappingTemplateService) *MappingTemplate {
	return &MappingTemplate{svc: svc}
}

// List returns favorites first, then the most used. ?favorites=true narrows
// the list to favorites.
func (h *MappingTemplate) List(w http.ResponseWriter, r *http.Request) {
	favoritesOnly := r.URL.Query().Get("favorites") == "true"
	items, err := h.svc.List(r.Context(), favoritesOnly)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []model.MappingTemplate{}
	}
	response.WriteList(w, items)
}

func (h *MappingTemplate) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateMappingTemplate
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	mt := &model.MappingTemplate{
		Name:        req.Name,
		Description: req.Description,
		Mappings:    req.Mappings,
		IsFavorite:  req.IsFavorite,
	}
	if err := h.svc.Create(r.Context(), mt); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusCreated, mt)
}

func (h *MappingTemplate) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	mt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, mt)
}

func (h *MappingTemplate) SetFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.SetFavorite
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.SetFavorite(r.Context(), id, *req.IsFavorite); err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteNoContent(w)
}

// Use counts one use of the template and returns its mappings.
func (h *MappingTemplate) Use(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	mt, err := h.svc.Use(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, mt)
}

func (h *MappingTemplate) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteNoContent(w)
}
