package emergency

import "errors"

var (
	// ErrDispatcherClosed is returned by entry points after Shutdown.
	ErrDispatcherClosed = errors.New("emergency: dispatcher closed")

	// ErrInvalidLevel is wrapped for unknown auto-response level names.
	ErrInvalidLevel = errors.New("emergency: invalid auto-response level")

	// ErrInvalidDetection is returned for detections without a subtype or
	// with a confidence outside [0,1].
	ErrInvalidDetection = errors.New("emergency: invalid detection")
)
