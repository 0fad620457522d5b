package handlers

import (
	"net/http"
)

// Health handles GET /api/v1/health.
func (h *ScoringHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.Health(r.Context()))
}
