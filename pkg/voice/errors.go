package voice

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTranscript is returned for blank input.
	ErrEmptyTranscript = errors.New("voice: empty transcript")

	// ErrNoInterpreter is returned on a cache miss with no interpreter set.
	ErrNoInterpreter = errors.New("voice: no interpreter configured")

	// ErrNoAPIKey is returned when the interpreter has no API key.
	ErrNoAPIKey = errors.New("voice: API key required")

	// ErrNoChoices is returned when the model answered with nothing.
	ErrNoChoices = errors.New("voice: no choices returned")
)

// APIError is an error response from the chat completions API.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("voice: API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("voice: API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the request may succeed on retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
