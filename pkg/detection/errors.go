package detection

import "errors"

var (
	// ErrNoFrame is returned when no frame has been captured yet.
	ErrNoFrame = errors.New("detection: no frame available")

	// ErrStaleFrame is returned when the newest frame is older than the
	// configured maximum age.
	ErrStaleFrame = errors.New("detection: frame is stale")

	// ErrNoDetector is returned when a scanner is started without a detector.
	ErrNoDetector = errors.New("detection: no detector configured")

	// ErrNoSource is returned when a scanner is started without a frame source.
	ErrNoSource = errors.New("detection: no frame source configured")
)
