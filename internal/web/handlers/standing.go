package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Standing handles GET /api/v1/score/{userId}. A missing record is not an
// error: it answers 200 with {"found": false}.
func (h *ScoringHandler) Standing(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	standing, err := h.svc.Standing(r.Context(), userID)
	if err != nil {
		respondScoringError(w, err)
		return
	}
	if standing == nil {
		respondJSON(w, http.StatusOK, map[string]any{"found": false})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"found":    true,
		"standing": standing,
	})
}
