package location

import "errors"

var (
	// ErrPermissionDenied is reported when the user refused location access.
	ErrPermissionDenied = errors.New("location: permission denied")

	// ErrPositionUnavailable is reported when the source cannot produce a fix.
	ErrPositionUnavailable = errors.New("location: position unavailable")

	// ErrTimeout is reported when no fix arrived within WatchOptions.Timeout.
	ErrTimeout = errors.New("location: timeout")

	// ErrUnsupported is returned when no geolocation platform is available.
	ErrUnsupported = errors.New("location: geolocation unsupported")

	// ErrStopped is returned by operations on a stopped component.
	ErrStopped = errors.New("location: stopped")
)

// IsFatal reports whether err means no tier can ever succeed, so waiting
// for the fallback timers is pointless.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnsupported)
}
