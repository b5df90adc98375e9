// Package protocol defines the WebSocket message envelope shared by the
// dashboard stream and panic-button device bridges.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Server → Dashboard messages
	TypeEvent   MessageType = "event"   // Bus event
	TypeMarkers MessageType = "markers" // Threat map marker list
	TypeNotice  MessageType = "notice"  // User notice
	TypeState   MessageType = "state"   // App state snapshot

	// Device → Server messages
	TypeBLETrigger MessageType = "ble_trigger" // Panic button pressed
	TypeLocation   MessageType = "location"    // GPS fix from the phone/bridge
	TypeFrame      MessageType = "frame"       // Camera frame for weapon detection

	// Server → Device messages
	TypeSiren  MessageType = "siren"  // Sound the siren
	TypeRecord MessageType = "record" // Start evidence recording

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Server → Dashboard Message Types
// =============================================================================

// EventData wraps a bus event.
type EventData struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// StateData is a snapshot of the app shown on connect and on change.
type StateData struct {
	AutoResponseLevel string        `json:"auto_response_level"`
	LocationState     string        `json:"location_state"`
	Location          *PositionData `json:"location,omitempty"`
	Markers           int           `json:"markers"`
	Devices           int           `json:"devices"`
	Emergency         bool          `json:"emergency"`
}

// =============================================================================
// Device → Server Message Types
// =============================================================================

// BLETriggerData reports a panic button press.
type BLETriggerData struct {
	Button  string  `json:"button,omitempty"`  // Button serial when a bridge pairs several
	Battery float64 `json:"battery,omitempty"` // 0-1, 0 if unknown
}

// PositionData is a GPS fix.
type PositionData struct {
	Lat       float64 `json:"latitude"`
	Lng       float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`            // meters
	Timestamp int64   `json:"timestamp,omitempty"` // Unix milliseconds
}

// FrameData contains a camera frame
type FrameData struct {
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Format string `json:"format"` // "jpeg"
	Data   string `json:"data"`   // base64 encoded
}

// =============================================================================
// Server → Device Message Types
// =============================================================================

// SirenCommand asks a device to sound its siren.
type SirenCommand struct {
	DurationMs int64 `json:"duration_ms"`
}

// RecordCommand asks a device to start recording evidence.
type RecordCommand struct {
	AlertID string `json:"alert_id,omitempty"`
	Source  string `json:"source,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
