package emergency

import "time"

// Config tunes the dispatcher.
type Config struct {
	AutoResponseLevel AutoResponseLevel

	// Emergency call placed on automatic response.
	EmergencyNumber string
	SimulateCalls   bool

	// Contacts texted on a manual trigger.
	Contacts []string

	SirenDuration time.Duration
}

// DefaultConfig returns a conservative configuration: assist level,
// simulated calls.
func DefaultConfig() Config {
	return Config{
		AutoResponseLevel: AutoResponseAssist,
		EmergencyNumber:   "911",
		SimulateCalls:     true,
		SirenDuration:     30 * time.Second,
	}
}
