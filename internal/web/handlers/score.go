package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/aurum-app/facerank/internal/scoring"
)

type scoreRequest struct {
	UserID           string `json:"userId"`
	ImageBase64      string `json:"imageBase64"`
	NFTVerified      bool   `json:"nftVerified"`
	IdentityVerified bool   `json:"identityVerified"`
}

// Score handles POST /api/v1/score.
func (h *ScoringHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, scoring.CodeValidationError, errInvalidRequestBody)
		return
	}

	image, err := decodeImage(req.ImageBase64)
	if err != nil {
		respondError(w, http.StatusBadRequest, scoring.CodeValidationError, "imageBase64 is not valid base64")
		return
	}

	result, err := h.svc.Score(r.Context(), scoring.ScoreRequest{
		UserID:           req.UserID,
		Image:            image,
		NFTVerified:      req.NFTVerified,
		IdentityVerified: req.IdentityVerified,
	})
	if err != nil {
		log.Debug().Str("userId", sanitizeForLog(req.UserID)).Err(err).Msg("scoring request rejected")
		respondScoringError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// decodeImage accepts plain base64 or a data URL ("data:image/jpeg;base64,...").
func decodeImage(s string) ([]byte, error) {
	if idx := strings.Index(s, ";base64,"); idx >= 0 && strings.HasPrefix(s, "data:") {
		s = s[idx+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(s)
}
