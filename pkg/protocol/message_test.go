package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/teslashibe/go-guardian/pkg/events"
	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/notify"
	"github.com/teslashibe/go-guardian/pkg/threat"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
	}{
		{"ble trigger", TypeBLETrigger, BLETriggerData{Button: "btn-1", Battery: 0.8}},
		{"state", TypeState, StateData{AutoResponseLevel: "assist"}},
		{"nil data", TypePing, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if err != nil {
				t.Fatalf("NewMessage() error = %v", err)
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
			if tt.data == nil && msg.Data != nil {
				t.Error("nil data should leave Data empty")
			}
		})
	}
}

func TestNewMessage_MarshalError(t *testing.T) {
	if _, err := NewMessage(TypeEvent, make(chan int)); err == nil {
		t.Error("expected marshal error for channel payload")
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", `{"type":"ping","ts":1}`, false},
		{"invalid json", `{not json`, true},
		{"missing type", `{"ts":1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromEvent(t *testing.T) {
	p := geo.Point{Lat: 40.7128, Lng: -74.006}
	msg, err := FromEvent(events.EmergencyActivated{
		Source:   events.SourceBLE,
		Location: &p,
	})
	if err != nil {
		t.Fatalf("FromEvent() error = %v", err)
	}
	if msg.Type != TypeEvent {
		t.Errorf("Type = %v, want %v", msg.Type, TypeEvent)
	}

	data, err := msg.GetEventData()
	if err != nil {
		t.Fatalf("GetEventData() error = %v", err)
	}
	if data.Kind != string(events.KindEmergencyActivated) {
		t.Errorf("Kind = %q, want %q", data.Kind, events.KindEmergencyActivated)
	}

	var ev events.EmergencyActivated
	if err := json.Unmarshal(data.Payload, &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.Source != events.SourceBLE || ev.Location == nil || *ev.Location != p {
		t.Errorf("payload = %+v", ev)
	}
}

func TestMarkersMessage(t *testing.T) {
	msg, err := NewMarkersMessage(nil)
	if err != nil {
		t.Fatalf("NewMarkersMessage() error = %v", err)
	}
	if string(msg.Data) != "[]" {
		t.Errorf("nil markers should encode as [], got %s", msg.Data)
	}

	m := threat.NewMarker(geo.Point{Lat: 1, Lng: 2}, threat.LevelHigh, threat.TypePhysical, "t", "d")
	msg, _ = NewMarkersMessage([]threat.Marker{m})
	var got []threat.Marker
	if err := msg.ParseData(&got); err != nil {
		t.Fatalf("ParseData: %v", err)
	}
	if len(got) != 1 || got[0].ID != m.ID {
		t.Errorf("markers = %+v", got)
	}
}

func TestNoticeMessage(t *testing.T) {
	msg, err := NewNoticeMessage(notify.Notice{Title: notify.TitleLocationDetected, Level: notify.LevelSuccess})
	if err != nil {
		t.Fatalf("NewNoticeMessage() error = %v", err)
	}
	var n notify.Notice
	msg.ParseData(&n)
	if n.Title != notify.TitleLocationDetected {
		t.Errorf("Title = %q", n.Title)
	}
}

func TestLocationMessage(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	pos := geo.Position{Lat: 40.7128, Lng: -74.006, Accuracy: 12, Timestamp: at}

	msg, err := NewLocationMessage(pos)
	if err != nil {
		t.Fatalf("NewLocationMessage() error = %v", err)
	}
	data, err := msg.GetPositionData()
	if err != nil {
		t.Fatalf("GetPositionData() error = %v", err)
	}
	got := data.Position(time.Now())
	if got.Lat != pos.Lat || got.Lng != pos.Lng || got.Accuracy != 12 || !got.Timestamp.Equal(at) {
		t.Errorf("Position() = %+v, want %+v", got, pos)
	}
}

func TestPositionData_MissingTimestamp(t *testing.T) {
	now := time.Now()
	got := PositionData{Lat: 1, Lng: 2}.Position(now)
	if !got.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, now)
	}
}

func TestGetPositionData_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data PositionData
	}{
		{"latitude out of range", PositionData{Lat: 91, Lng: 0}},
		{"longitude out of range", PositionData{Lat: 0, Lng: 181}},
		{"negative accuracy", PositionData{Lat: 0, Lng: 0, Accuracy: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, _ := NewMessage(TypeLocation, tt.data)
			if _, err := msg.GetPositionData(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFrameMessage(t *testing.T) {
	jpegData := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

	msg, err := NewFrameMessage(640, 480, jpegData)
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}

	frameData, err := msg.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	if frameData.Format != "jpeg" {
		t.Errorf("Format = %v, want jpeg", frameData.Format)
	}

	decoded, err := frameData.DecodeFrameData()
	if err != nil {
		t.Fatalf("DecodeFrameData() error = %v", err)
	}
	if len(decoded) != len(jpegData) {
		t.Errorf("Decoded length = %v, want %v", len(decoded), len(jpegData))
	}
}

func TestCommandMessage(t *testing.T) {
	msg, err := NewCommandMessage("siren", SirenCommand{DurationMs: 30000})
	if err != nil {
		t.Fatalf("NewCommandMessage() error = %v", err)
	}
	if msg.Type != TypeSiren {
		t.Errorf("Type = %v, want %v", msg.Type, TypeSiren)
	}
	cmd, err := msg.GetSirenCommand()
	if err != nil || cmd.DurationMs != 30000 {
		t.Errorf("GetSirenCommand() = %+v, %v", cmd, err)
	}

	msg, _ = NewCommandMessage("record", map[string]any{"alert_id": "a1", "source": "ble"})
	rec, err := msg.GetRecordCommand()
	if err != nil || rec.AlertID != "a1" || rec.Source != "ble" {
		t.Errorf("GetRecordCommand() = %+v, %v", rec, err)
	}
}

func TestPingPong(t *testing.T) {
	ping, _ := NewPingMessage("abc")
	pd, err := ping.GetPingData()
	if err != nil || pd.ID != "abc" || pd.Timestamp == 0 {
		t.Fatalf("GetPingData() = %+v, %v", pd, err)
	}

	pong, _ := NewPongMessage("abc", 1000, 1025)
	pg, err := pong.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}
	if pg.LatencyMs != 25 {
		t.Errorf("LatencyMs = %d, want 25", pg.LatencyMs)
	}
}
