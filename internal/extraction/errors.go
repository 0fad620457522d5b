package extraction

import (
	"errors"
	"fmt"
)

// ErrNoFaceDetected is returned when the backend finds no face in the image.
// It is a terminal result for the submission, never substituted by the
// fallback: the backend answered, the image just has no usable face.
var ErrNoFaceDetected = errors.New("no face detected in image")

// ErrEmptyImage is returned for a missing or empty payload.
var ErrEmptyImage = errors.New("empty image payload")

// ErrImageTooLarge is returned when the payload exceeds the configured cap.
var ErrImageTooLarge = errors.New("image payload too large")

// ErrUndecodableImage is returned when the payload is not a decodable image.
var ErrUndecodableImage = errors.New("image payload is not a decodable image")

// BackendError carries a non-success status from the extraction backend.
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Body)
}

// retryable reports whether an extraction attempt error is worth retrying:
// network failures, timeouts and 5xx statuses are; 4xx statuses and a clean
// no-face answer are not.
func retryable(err error) bool {
	if errors.Is(err, ErrNoFaceDetected) {
		return false
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.StatusCode >= 500
	}
	return true
}
