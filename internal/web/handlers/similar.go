package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const (
	defaultSimilarLimit = 5
	maxSimilarLimit     = 50
)

// Similar handles GET /api/v1/similar/{userId}?limit=N.
func (h *ScoringHandler) Similar(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	limit := queryLimit(r, defaultSimilarLimit, maxSimilarLimit)

	matches, err := h.svc.Similar(r.Context(), userID, limit)
	if err != nil {
		respondScoringError(w, err)
		return
	}
	if matches == nil {
		respondJSON(w, http.StatusOK, map[string]any{"found": false})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"found":   true,
		"matches": matches,
	})
}
