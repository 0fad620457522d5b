// Package handlers implements the HTTP handlers of the scoring API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aurum-app/facerank/internal/scoring"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// ScoringHandler serves every scoring API endpoint.
type ScoringHandler struct {
	svc *scoring.Service
}

func NewScoringHandler(svc *scoring.Service) *ScoringHandler {
	return &ScoringHandler{svc: svc}
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends a typed error response: {"error": {"code", "message"}}.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]any{
		"error": &scoring.Error{Code: code, Message: message},
	})
}

// respondScoringError maps a scoring error to its HTTP status. Anything that
// is not a *scoring.Error is reported as an opaque processing error.
func respondScoringError(w http.ResponseWriter, err error) {
	var se *scoring.Error
	if !errors.As(err, &se) {
		respondError(w, http.StatusInternalServerError, scoring.CodeProcessingError, "internal error")
		return
	}
	respondError(w, statusForCode(se.Code), se.Code, se.Message)
}

func statusForCode(code string) int {
	switch code {
	case scoring.CodeValidationError:
		return http.StatusBadRequest
	case scoring.CodeDuplicateScore:
		return http.StatusConflict
	case scoring.CodeNoFaceDetected, scoring.CodeQualityTooLow:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// queryLimit parses a ?limit= query parameter with a default and a cap.
func queryLimit(r *http.Request, defaultLimit, maxLimit int) int {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}
