package handler

import (
	"net/http"

	"github.com/civicgrid/dispatch/internal/service"
)

// SLAHandler exposes the derived overdue view.
type SLAHandler struct {
	monitor *service.SLAMonitor
}

// NewSLAHandler creates a new SLAHandler.
func NewSLAHandler(monitor *service.SLAMonitor) *SLAHandler {
	return &SLAHandler{monitor: monitor}
}

// Overdue lists issues past their SLA deadline, recomputed per call.
func (h *SLAHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	overdue, err := h.monitor.ListOverdue(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, overdue)
}
