package handlers

import (
	"net/http"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// Leaderboard handles GET /api/v1/leaderboard?limit=N.
func (h *ScoringHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultLeaderboardLimit, maxLeaderboardLimit)

	entries, err := h.svc.Leaderboard(r.Context(), limit)
	if err != nil {
		respondScoringError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
	})
}
