package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civicgrid/dispatch/internal/domain"
	"github.com/civicgrid/dispatch/internal/service"
)

// ReviewHandler handles verification review endpoints.
type ReviewHandler struct {
	verifications *service.VerificationService
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(verifications *service.VerificationService) *ReviewHandler {
	return &ReviewHandler{verifications: verifications}
}

type reviewRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required"`
	Action     string `json:"action" validate:"required,oneof=approved rejected"`
	Comment    string `json:"comment"`
	Rating     *int   `json:"rating" validate:"omitempty,min=1,max=5"`
}

// Submit admits an approve/reject decision for an issue awaiting
// verification.
func (h *ReviewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeAndValidate(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	issue, err := h.verifications.Review(
		r.Context(),
		chi.URLParam(r, "id"),
		req.ReviewerID,
		domain.ReviewAction(req.Action),
		req.Comment,
		req.Rating,
	)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, issue)
}

// History lists an issue's verification records across rework cycles.
func (h *ReviewHandler) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.verifications.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, records)
}
