package synth

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialMissing is returned before any network call when no API key
	// is available.
	ErrCredentialMissing = errors.New("google API key not configured")

	// ErrEmptyResponse is returned when the API answered successfully but sent
	// no audio content.
	ErrEmptyResponse = errors.New("no audio content received from API")

	// ErrUnknownEngine is returned for engine names outside the supported set.
	ErrUnknownEngine = errors.New("unknown synthesis engine")
)

// unknownErrorMessage is used when the error body carries no message.
const unknownErrorMessage = "Unknown error"

// UpstreamError reports a non-success status from the synthesis API.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
}

// IsRetryable reports whether a later attempt could succeed.
func (e *UpstreamError) IsRetryable() bool {
	return e.Status == 429 || e.Status >= 500
}
