package handlers

import (
	"net/http"
)

// Distribution handles GET /api/v1/distribution.
func (h *ScoringHandler) Distribution(w http.ResponseWriter, r *http.Request) {
	dist, err := h.svc.Distribution(r.Context())
	if err != nil {
		respondScoringError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dist)
}
