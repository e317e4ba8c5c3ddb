package handler

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civicgrid/dispatch/internal/domain"
	"github.com/civicgrid/dispatch/internal/service"
)

// IssueHandler handles issue intake, lifecycle, and escalation endpoints.
type IssueHandler struct {
	issues *service.IssueService
}

// NewIssueHandler creates a new IssueHandler.
func NewIssueHandler(issues *service.IssueService) *IssueHandler {
	return &IssueHandler{issues: issues}
}

type createIssueRequest struct {
	Category    string `json:"category"`
	Description string `json:"description" validate:"required"`
	ImageBase64 string `json:"image_base64"`
	RiskScore   *int   `json:"risk_score" validate:"omitempty,min=0,max=100"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

type escalateRequest struct {
	Reason      string `json:"reason" validate:"required"`
	Severity    string `json:"severity" validate:"required,oneof=warning critical"`
	TriggeredBy string `json:"triggered_by"`
}

// Create ingests a new incident report.
func (h *IssueHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if err := decodeAndValidate(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	var image []byte
	if req.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			WriteError(w, fmt.Errorf("%w: image_base64 is not valid base64", domain.ErrInvalidInput))
			return
		}
		image = decoded
	}

	issue, err := h.issues.Create(r.Context(), service.CreateIssueInput{
		Category:    req.Category,
		Description: req.Description,
		Image:       image,
		RiskScore:   req.RiskScore,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, issue)
}

// Get returns one issue.
func (h *IssueHandler) Get(w http.ResponseWriter, r *http.Request) {
	issue, err := h.issues.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, issue)
}

// Transition moves an issue to a target status.
func (h *IssueHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	issue, err := h.issues.Transition(r.Context(), chi.URLParam(r, "id"), domain.IssueStatus(req.Status))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, issue)
}

// Escalate appends a manual entry to the escalation ledger.
func (h *IssueHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	var req escalateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	entry, err := h.issues.Escalate(r.Context(), chi.URLParam(r, "id"), req.Reason, domain.Severity(req.Severity), req.TriggeredBy)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, entry)
}

// Escalations lists an issue's escalation ledger entries.
func (h *IssueHandler) Escalations(w http.ResponseWriter, r *http.Request) {
	entries, err := h.issues.Escalations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, entries)
}
