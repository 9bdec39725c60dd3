package handler

import (
	"errors"
	"net/http"

	"github.com/edvin/outreach/internal/api/response"
	"github.com/edvin/outreach/internal/model"
)

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var cfgErr *model.ConfigurationError
	var audErr *model.AudienceResolutionError
	switch {
	case errors.Is(err, model.ErrNotFound):
		response.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrClaimConflict):
		response.WriteError(w, http.StatusConflict, err.Error())
	case errors.As(err, &cfgErr):
		response.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &audErr):
		response.WriteError(w, http.StatusBadGateway, err.Error())
	default:
		response.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
