package handler

import (
	"context"
	"net/http"

	"github.com/edvin/outreach/internal/api/response"
	"github.com/edvin/outreach/internal/dispatch"
)

// Dispatcher runs one dispatch tick.
type Dispatcher interface {
	Dispatch(ctx context.Context, source string) (*dispatch.Result, error)
}

type Dispatch struct {
	d Dispatcher
}

func NewDispatch(d Dispatcher) *Dispatch {
	return &Dispatch{d: d}
}

// Trigger is called by the external timer. The tick runs to the end even if
// the caller disconnects, since claimed jobs must reach a terminal state.
func (h *Dispatch) Trigger(w http.ResponseWriter, r *http.Request) {
	res, err := h.d.Dispatch(context.WithoutCancel(r.Context()), "http")
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}
