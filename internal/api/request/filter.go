package request

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/edvin/outreach/internal/model"
)

// JobListParams holds pagination and filter parameters for the job list.
type JobListParams struct {
	Pagination
	Status     string
	WorkflowID string
}

// ParseJobListParams extracts job list parameters from the query string.
func ParseJobListParams(r *http.Request) (JobListParams, error) {
	p := JobListParams{
		Pagination: ParsePagination(r),
		Status:     r.URL.Query().Get("status"),
		WorkflowID: r.URL.Query().Get("workflow_id"),
	}
	switch p.Status {
	case "", model.JobStatusPending, model.JobStatusRunning, model.JobStatusCompleted,
		model.JobStatusFailed, model.JobStatusCancelled:
	default:
		return p, fmt.Errorf("invalid status %q", p.Status)
	}
	return p, nil
}

// ParsePreviewLimit reads the optional limit query parameter of preview
// endpoints. Zero means the provider default.
func ParsePreviewLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return n, nil
}
