package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civicgrid/dispatch/internal/service"
)

// DispatchHandler handles worker assignment and metrics endpoints.
type DispatchHandler struct {
	dispatch *service.DispatchService
}

// NewDispatchHandler creates a new DispatchHandler.
func NewDispatchHandler(dispatch *service.DispatchService) *DispatchHandler {
	return &DispatchHandler{dispatch: dispatch}
}

type assignRequest struct {
	WorkerID string `json:"worker_id"`
}

// Assign dispatches an issue to a named worker, or to the best available
// worker when worker_id is omitted.
func (h *DispatchHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeAndValidate(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	assignment, err := h.dispatch.Assign(r.Context(), chi.URLParam(r, "id"), req.WorkerID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, assignment)
}

// Metrics returns the performance counters for one worker.
func (h *DispatchHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.dispatch.Metrics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, metrics)
}
