package location

import (
	"time"

	"github.com/teslashibe/go-guardian/pkg/geo"
)

// Config holds the tunables of the acquisition and debounce pipeline.
type Config struct {
	// Watch tiers
	HighAccuracy WatchOptions
	Standard     WatchOptions

	// Fallback timing (both measured from Acquirer.Start)
	StandardAfter time.Duration // switch to the standard tier
	DefaultAfter  time.Duration // give up and use DefaultPosition

	// Position used when nothing else works
	DefaultPosition geo.Point

	// Debounce
	DebounceDelay           time.Duration // trailing window
	MinDisplacement         float64       // meters
	AccuracyImprovement     float64       // fraction, 0.1 = 10% better
	HighAccuracyNoticeBelow float64       // meters
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		HighAccuracy: WatchOptions{
			EnableHighAccuracy: true,
			Timeout:            10 * time.Second,
			MaximumAge:         0,
		},
		Standard: WatchOptions{
			EnableHighAccuracy: false,
			Timeout:            20 * time.Second,
			MaximumAge:         60 * time.Second,
		},

		StandardAfter: 5 * time.Second,
		DefaultAfter:  15 * time.Second,

		DefaultPosition: geo.ContinentalCentroid,

		DebounceDelay:           150 * time.Millisecond,
		MinDisplacement:         0.5,
		AccuracyImprovement:     0.1,
		HighAccuracyNoticeBelow: 100,
	}
}
