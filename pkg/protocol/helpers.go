package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-guardian/pkg/events"
	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/notify"
	"github.com/teslashibe/go-guardian/pkg/threat"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// FromEvent encodes a bus event for the dashboard stream.
func FromEvent(e events.Event) (*Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", e.Kind(), err)
	}
	return NewMessage(TypeEvent, EventData{
		Kind:    string(e.Kind()),
		Payload: payload,
	})
}

// NewMarkersMessage creates a threat marker list message.
func NewMarkersMessage(markers []threat.Marker) (*Message, error) {
	if markers == nil {
		markers = []threat.Marker{}
	}
	return NewMessage(TypeMarkers, markers)
}

// NewNoticeMessage creates a notice message.
func NewNoticeMessage(n notify.Notice) (*Message, error) {
	return NewMessage(TypeNotice, n)
}

// NewStateMessage creates a state message
func NewStateMessage(state StateData) (*Message, error) {
	return NewMessage(TypeState, state)
}

// NewBLETriggerMessage creates a panic button message.
func NewBLETriggerMessage(button string, battery float64) (*Message, error) {
	return NewMessage(TypeBLETrigger, BLETriggerData{Button: button, Battery: battery})
}

// NewLocationMessage creates a GPS fix message.
func NewLocationMessage(pos geo.Position) (*Message, error) {
	return NewMessage(TypeLocation, PositionFrom(pos))
}

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(width, height int, jpegData []byte) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:  width,
		Height: height,
		Format: "jpeg",
		Data:   base64.StdEncoding.EncodeToString(jpegData),
	})
}

// NewCommandMessage creates a device command message. Known commands get
// their typed payload; anything else is passed through as-is.
func NewCommandMessage(command string, data any) (*Message, error) {
	return NewMessage(MessageType(command), data)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// PositionFrom converts a geo position to its wire form.
func PositionFrom(pos geo.Position) PositionData {
	var ts int64
	if !pos.Timestamp.IsZero() {
		ts = pos.Timestamp.UnixMilli()
	}
	return PositionData{Lat: pos.Lat, Lng: pos.Lng, Accuracy: pos.Accuracy, Timestamp: ts}
}

// Position converts the wire form back to a geo position. A missing
// timestamp is stamped with now.
func (p PositionData) Position(now time.Time) geo.Position {
	ts := now
	if p.Timestamp > 0 {
		ts = time.UnixMilli(p.Timestamp)
	}
	return geo.Position{Lat: p.Lat, Lng: p.Lng, Accuracy: p.Accuracy, Timestamp: ts}
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetEventData extracts event data from a message
func (m *Message) GetEventData() (*EventData, error) {
	var data EventData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetBLETriggerData extracts panic button data from a message
func (m *Message) GetBLETriggerData() (*BLETriggerData, error) {
	var data BLETriggerData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPositionData extracts a GPS fix from a message
func (m *Message) GetPositionData() (*PositionData, error) {
	var data PositionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if !(geo.Point{Lat: data.Lat, Lng: data.Lng}).Valid() {
		return nil, fmt.Errorf("invalid coordinates %.6f,%.6f", data.Lat, data.Lng)
	}
	if data.Accuracy < 0 {
		return nil, fmt.Errorf("invalid accuracy %.1f", data.Accuracy)
	}
	return &data, nil
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetSirenCommand extracts a siren command from a message
func (m *Message) GetSirenCommand() (*SirenCommand, error) {
	var data SirenCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRecordCommand extracts a record command from a message
func (m *Message) GetRecordCommand() (*RecordCommand, error) {
	var data RecordCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
