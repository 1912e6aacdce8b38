package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"certexam/internal/service"
	"certexam/internal/transport/rest/middleware"
)

// ReviewHandler serves post-submission review data
type ReviewHandler struct {
	reviewService *service.ReviewService
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(reviewService *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// Review handles GET /v1/attempts/{attemptId}/review
func (h *ReviewHandler) Review(w http.ResponseWriter, r *http.Request) {
	attemptID := mux.Vars(r)["attemptId"]
	userID := middleware.GetUserID(r.Context())

	review, err := h.reviewService.BuildReview(r.Context(), attemptID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// History handles GET /v1/users/me/attempts
func (h *ReviewHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	attempts, err := h.reviewService.History(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}
