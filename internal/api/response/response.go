package response

import (
	"encoding/json"
	"net/http"
)

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": message}.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

// WriteNoContent acknowledges a state change that has no body.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

type ErrorBody struct {
	Error string `json:"error"`
}

// ListResponse wraps an unpaginated list.
type ListResponse struct {
	Items any `json:"items"`
}

// WriteList writes {"items": items}.
func WriteList(w http.ResponseWriter, items any) {
	WriteJSON(w, http.StatusOK, ListResponse{Items: items})
}

// PaginatedResponse is a keyset page. NextCursor is empty on the last page.
type PaginatedResponse struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func WritePaginated(w http.ResponseWriter, status int, items any, nextCursor string, hasMore bool) {
	WriteJSON(w, status, PaginatedResponse{Items: items, NextCursor: nextCursor, HasMore: hasMore})
}
