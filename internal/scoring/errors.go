package scoring

import "fmt"

// Stable rejection reason codes exposed to callers. No internal detail or
// backend identity ever crosses the boundary with them.
const (
	CodeValidationError = "validation_error"
	CodeDuplicateScore  = "duplicate_score_error"
	CodeNoFaceDetected  = "no_face_detected"
	CodeQualityTooLow   = "quality_too_low"
	CodeProcessingError = "processing_error"
)

// Error is a typed scoring rejection carrying a stable reason code and a
// human-readable message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
