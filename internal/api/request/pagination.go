package request

import (
	"net/http"
	"strconv"
	"strings"
)

// Pagination is a keyset page request. Cursor is the last ID of the previous
// page.
type Pagination struct {
	Limit  int
	Cursor string
}

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ParsePagination reads limit and cursor. A missing, malformed or
// non-positive limit falls back to DefaultLimit; larger limits are capped.
func ParsePagination(r *http.Request) Pagination {
	q := r.URL.Query()
	p := Pagination{Limit: DefaultLimit, Cursor: strings.TrimSpace(q.Get("cursor"))}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		p.Limit = min(limit, MaxLimit)
	}
	return p
}
