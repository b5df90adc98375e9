package threat

// Config tunes marker generation and filtering.
type Config struct {
	// Weather markers are moved to a random spot within this radius of the
	// user so they stay next to the user pin.
	WeatherJitterMeters float64

	// Ambient markers: 0..AmbientMax low markers within AmbientRadiusMeters.
	AmbientMax          int
	AmbientRadiusMeters float64

	// Chance per fetch of adding a reverse-geocoded area marker.
	AreaNoticeProbability float64

	// High severity feed markers farther than this (raw degrees) are hidden.
	HighSeverityRadiusDeg float64
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		WeatherJitterMeters:   150,
		AmbientMax:            2,
		AmbientRadiusMeters:   400,
		AreaNoticeProbability: 0.3,
		HighSeverityRadiusDeg: 0.1,
	}
}
