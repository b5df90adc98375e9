// Package events is the in-process message bus that connects detection
// sources, the emergency dispatcher and downstream responders.
//
// Every message is one of a closed set of typed variants. Consumers switch on
// the concrete type (or on Kind) instead of digging through loosely shaped
// payloads.
package events

import (
	"time"

	"github.com/teslashibe/go-guardian/pkg/geo"
)

// Kind identifies an event variant.
type Kind string

const (
	// Detection inputs
	KindWeaponDetected Kind = "weapon_detected"
	KindBLETrigger     Kind = "ble_emergency_trigger"

	// Dispatcher output
	KindEmergencyActivated Kind = "emergency_activated"

	// Location pipeline
	KindLocationUpdated Kind = "user_location_updated"

	// Downstream actions
	KindSendSMS        Kind = "send_sms"
	KindMakeCall       Kind = "make_call"
	KindStartRecording Kind = "start_emergency_recording"
	KindActivateSiren  Kind = "activate_emergency_siren"
	KindBroadcastAlert Kind = "broadcast_emergency_alert"
)

// Source tags where an emergency signal came from.
type Source string

const (
	SourceBLE    Source = "ble"
	SourceVoice  Source = "voice"
	SourceAI     Source = "ai"
	SourceManual Source = "manual"
	SourceSystem Source = "system"
)

// Event is implemented by every bus message. The set is closed: only types
// in this package satisfy it.
type Event interface {
	Kind() Kind
	sealed()
}

// WeaponDetected is raised by AI detectors.
type WeaponDetected struct {
	Subtype     string     `json:"subtype"` // "weapon", "struggle", "fall", ...
	Confidence  float64    `json:"confidence"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Location    *geo.Point `json:"location,omitempty"`
	At          time.Time  `json:"at"`
}

// BLETrigger is raised when a paired panic button is pressed.
type BLETrigger struct {
	DeviceID string    `json:"device_id"`
	Battery  float64   `json:"battery,omitempty"` // 0-1, 0 if unknown
	At       time.Time `json:"at"`
}

// EmergencyActivated is the standardized signal downstream consumers react to.
type EmergencyActivated struct {
	Source   Source     `json:"source"`
	AlertID  string     `json:"alert_id,omitempty"`
	Category string     `json:"category,omitempty"`
	Severity string     `json:"severity,omitempty"`
	Location *geo.Point `json:"location,omitempty"`
	At       time.Time  `json:"at"`
}

// LocationUpdated is published whenever the debounced user location changes.
type LocationUpdated struct {
	Position geo.Position `json:"position"`
}

// SendSMS asks the messaging responder to text emergency contacts.
type SendSMS struct {
	To      []string `json:"to"`
	Message string   `json:"message"`
}

// MakeCall asks the telephony responder to place a call.
type MakeCall struct {
	Number    string `json:"number"`
	Simulated bool   `json:"simulated"`
	Reason    string `json:"reason,omitempty"`
}

// StartRecording asks capture devices to start an evidence recording.
type StartRecording struct {
	AlertID string `json:"alert_id,omitempty"`
	Source  Source `json:"source"`
}

// ActivateSiren asks paired devices to sound their siren.
type ActivateSiren struct {
	Duration time.Duration `json:"duration"`
}

// BroadcastAlert fans an alert out to the user's circle.
type BroadcastAlert struct {
	AlertID  string     `json:"alert_id,omitempty"`
	Title    string     `json:"title"`
	Body     string     `json:"body"`
	Location *geo.Point `json:"location,omitempty"`
}

func (WeaponDetected) Kind() Kind     { return KindWeaponDetected }
func (BLETrigger) Kind() Kind         { return KindBLETrigger }
func (EmergencyActivated) Kind() Kind { return KindEmergencyActivated }
func (LocationUpdated) Kind() Kind    { return KindLocationUpdated }
func (SendSMS) Kind() Kind            { return KindSendSMS }
func (MakeCall) Kind() Kind           { return KindMakeCall }
func (StartRecording) Kind() Kind     { return KindStartRecording }
func (ActivateSiren) Kind() Kind      { return KindActivateSiren }
func (BroadcastAlert) Kind() Kind     { return KindBroadcastAlert }

func (WeaponDetected) sealed()     {}
func (BLETrigger) sealed()         {}
func (EmergencyActivated) sealed() {}
func (LocationUpdated) sealed()    {}
func (SendSMS) sealed()            {}
func (MakeCall) sealed()           {}
func (StartRecording) sealed()     {}
func (ActivateSiren) sealed()      {}
func (BroadcastAlert) sealed()     {}
