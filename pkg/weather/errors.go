package weather

import (
	"errors"
	"fmt"
)

// ErrNoLocations is returned when GetWeatherThreats gets no usable location.
var ErrNoLocations = errors.New("weather: no valid locations")

// APIError is an error response from the alerts API.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("weather: API error %d (%s): %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("weather: API error %d", e.StatusCode)
}

// IsNotFound reports whether the point lies outside the service area.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsRetryable reports whether the request may succeed later.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
