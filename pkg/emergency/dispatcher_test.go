package emergency

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-guardian/internal/log"
	"github.com/teslashibe/go-guardian/pkg/events"
	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/notify"
)

// eventLog records every event on a bus in publish order.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func watch(bus *events.Bus) *eventLog {
	l := &eventLog{}
	bus.SubscribeAll(func(e events.Event) {
		l.mu.Lock()
		l.events = append(l.events, e)
		l.mu.Unlock()
	})
	return l
}

func (l *eventLog) kinds() []events.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Kind, len(l.events))
	for i, e := range l.events {
		out[i] = e.Kind()
	}
	return out
}

func (l *eventLog) count(kind events.Kind) int {
	n := 0
	for _, k := range l.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) first(kind events.Kind) events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Kind() == kind {
			return e
		}
	}
	return nil
}

func newTestDispatcher(t *testing.T, cfg Config) (*Dispatcher, *events.Bus, *notify.Recorder) {
	t.Helper()
	bus := events.NewBus(log.Discard())
	rec := notify.NewRecorder(0)
	d := NewDispatcher(bus, WithConfig(cfg), WithNotifier(rec), WithLogger(log.Discard()))
	if err := d.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	t.Cleanup(d.Shutdown)
	return d, bus, rec
}

func TestHandleManualTrigger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Contacts = []string{"+15550100", "+15550101"}
	d, bus, rec := newTestDispatcher(t, cfg)
	evs := watch(bus)
	d.SetLocation(geo.Point{Lat: 40.7128, Lng: -74.0060})

	inc, err := d.HandleManualTrigger(context.Background(), events.SourceVoice)
	if err != nil {
		t.Fatalf("HandleManualTrigger: %v", err)
	}

	want := []events.Kind{
		events.KindEmergencyActivated,
		events.KindStartRecording,
		events.KindActivateSiren,
		events.KindSendSMS,
	}
	got := evs.kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}

	act := evs.first(events.KindEmergencyActivated).(events.EmergencyActivated)
	if act.Source != events.SourceVoice || act.AlertID != inc.ID || act.Location == nil {
		t.Errorf("EmergencyActivated = %+v", act)
	}
	sms := evs.first(events.KindSendSMS).(events.SendSMS)
	if len(sms.To) != 2 {
		t.Errorf("sms recipients = %v", sms.To)
	}

	if rec.Count(notify.TitleEmergencyActivated) != 1 {
		t.Error("expected an Emergency Activated notice")
	}
	incidents, _ := d.Incidents(context.Background(), 10)
	if len(incidents) != 1 || incidents[0].Source != events.SourceVoice || !incidents[0].HasLocation {
		t.Errorf("incidents = %+v", incidents)
	}
}

func TestManualTriggerWithoutContacts(t *testing.T) {
	d, bus, _ := newTestDispatcher(t, DefaultConfig())
	evs := watch(bus)

	if _, err := d.HandleManualTrigger(context.Background(), ""); err != nil {
		t.Fatalf("HandleManualTrigger: %v", err)
	}
	if evs.count(events.KindSendSMS) != 0 {
		t.Error("SMS sent with no contacts configured")
	}
	act := evs.first(events.KindEmergencyActivated).(events.EmergencyActivated)
	if act.Source != events.SourceManual {
		t.Errorf("source = %s, want manual", act.Source)
	}
}

func TestBLETriggerThroughBus(t *testing.T) {
	_, bus, _ := newTestDispatcher(t, DefaultConfig())
	evs := watch(bus)

	bus.Publish(events.BLETrigger{DeviceID: "btn-1", At: time.Now()})

	act, ok := evs.first(events.KindEmergencyActivated).(events.EmergencyActivated)
	if !ok || act.Source != events.SourceBLE {
		t.Errorf("EmergencyActivated = %+v, want source ble", act)
	}
}

func TestWeaponDetectedThroughBus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoResponseLevel = AutoResponseFull
	d, bus, _ := newTestDispatcher(t, cfg)
	evs := watch(bus)

	bus.Publish(events.LocationUpdated{Position: geo.Position{Lat: 1, Lng: 2}})
	bus.Publish(events.WeaponDetected{Subtype: "weapon", Confidence: 0.95, At: time.Now()})

	act, ok := evs.first(events.KindEmergencyActivated).(events.EmergencyActivated)
	if !ok {
		t.Fatal("no EmergencyActivated")
	}
	if act.Source != events.SourceAI || act.Category != "security" || act.Severity != "critical" {
		t.Errorf("EmergencyActivated = %+v", act)
	}
	if act.Location == nil || *act.Location != (geo.Point{Lat: 1, Lng: 2}) {
		t.Errorf("location = %v, want last bus location", act.Location)
	}
	if evs.count(events.KindMakeCall) != 1 || evs.count(events.KindBroadcastAlert) != 1 {
		t.Errorf("events = %v, want a call and a broadcast", evs.kinds())
	}
	if p := d.LastLocation(); p == nil || p.Lat != 1 {
		t.Errorf("LastLocation = %v", p)
	}
}

func TestHandleThreatDetection(t *testing.T) {
	tests := []struct {
		name       string
		level      AutoResponseLevel
		det        Detection
		wantAction Action
		wantEsc    bool
		wantLevel  int
		wantCalls  int
		wantNotice int
	}{
		{
			name:       "critical weapon full",
			level:      AutoResponseFull,
			det:        Detection{Subtype: "weapon", Confidence: 0.95},
			wantAction: ActionAutomatic, wantEsc: true, wantLevel: 3, wantCalls: 1,
		},
		{
			name:       "critical weapon assist",
			level:      AutoResponseAssist,
			det:        Detection{Subtype: "weapon", Confidence: 0.95},
			wantAction: ActionNotify, wantEsc: true, wantLevel: 3, wantNotice: 1,
		},
		{
			name:       "low fall full",
			level:      AutoResponseFull,
			det:        Detection{Subtype: "fall", Confidence: 0.3},
			wantAction: ActionLog, wantLevel: 1,
		},
		{
			name:       "medium smoke none",
			level:      AutoResponseNone,
			det:        Detection{Subtype: "smoke", Confidence: 0.65},
			wantAction: ActionLog, wantLevel: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AutoResponseLevel = tt.level
			d, bus, rec := newTestDispatcher(t, cfg)
			evs := watch(bus)

			resp, err := d.HandleThreatDetection(context.Background(), tt.det)
			if err != nil {
				t.Fatalf("HandleThreatDetection: %v", err)
			}
			if resp.Action != tt.wantAction {
				t.Errorf("action = %s, want %s", resp.Action, tt.wantAction)
			}
			if resp.Escalated != tt.wantEsc || (evs.count(events.KindEmergencyActivated) == 1) != tt.wantEsc {
				t.Errorf("escalated = %v, want %v", resp.Escalated, tt.wantEsc)
			}
			if resp.Alert.Level != tt.wantLevel {
				t.Errorf("alert level = %d, want %d", resp.Alert.Level, tt.wantLevel)
			}
			if resp.Alert.ID == "" || resp.Alert.Title == "" {
				t.Errorf("alert = %+v", resp.Alert)
			}
			if n := evs.count(events.KindMakeCall); n != tt.wantCalls {
				t.Errorf("calls = %d, want %d", n, tt.wantCalls)
			}
			if n := rec.Count(notify.TitleThreatDetected); n != tt.wantNotice {
				t.Errorf("notices = %d, want %d", n, tt.wantNotice)
			}
		})
	}
}

func TestHandleThreatDetectionInvalid(t *testing.T) {
	d, _, _ := newTestDispatcher(t, DefaultConfig())
	for _, det := range []Detection{
		{Subtype: "", Confidence: 0.5},
		{Subtype: "weapon", Confidence: 1.5},
		{Subtype: "weapon", Confidence: -0.1},
	} {
		if _, err := d.HandleThreatDetection(context.Background(), det); !errors.Is(err, ErrInvalidDetection) {
			t.Errorf("%+v: err = %v, want ErrInvalidDetection", det, err)
		}
	}
}

func TestHandleAutomaticResponseDirect(t *testing.T) {
	d, bus, rec := newTestDispatcher(t, DefaultConfig())
	evs := watch(bus)
	alert := DetectionAlert{ID: "a1", Title: "Knife"}

	tests := []struct {
		severity Severity
		level    AutoResponseLevel
		want     Action
	}{
		{SeverityCritical, AutoResponseFull, ActionAutomatic},
		{SeverityCritical, AutoResponseAssist, ActionNotify},
		{SeverityLow, AutoResponseFull, ActionLog},
	}
	for _, tt := range tests {
		got := d.HandleAutomaticResponse(context.Background(), alert, Classification{Severity: tt.severity, Category: CategorySecurity}, tt.level)
		if got != tt.want {
			t.Errorf("(%s, %s) = %s, want %s", tt.severity, tt.level, got, tt.want)
		}
	}

	if n := evs.count(events.KindMakeCall); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
	call := evs.first(events.KindMakeCall).(events.MakeCall)
	if call.Number != "911" || !call.Simulated {
		t.Errorf("call = %+v", call)
	}
	if rec.Count(notify.TitleThreatDetected) != 1 {
		t.Error("expected one notify-only notice")
	}
}

func TestDispatcherLifecycle(t *testing.T) {
	bus := events.NewBus(log.Discard())
	d := NewDispatcher(bus, WithLogger(log.Discard()))

	if d.Active() {
		t.Error("active before Activate")
	}
	d.Activate()
	d.Activate()
	if !d.Active() {
		t.Error("not active after Activate")
	}
	if n := bus.Len(); n != 3 {
		t.Errorf("subscriptions = %d, want 3 (Activate must be idempotent)", n)
	}

	d.Shutdown()
	if d.Active() || bus.Len() != 0 {
		t.Errorf("active = %v subscriptions = %d after Shutdown", d.Active(), bus.Len())
	}
	if _, err := d.HandleManualTrigger(context.Background(), events.SourceManual); !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("HandleManualTrigger err = %v, want ErrDispatcherClosed", err)
	}
	if _, err := d.HandleThreatDetection(context.Background(), Detection{Subtype: "weapon", Confidence: 1}); !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("HandleThreatDetection err = %v, want ErrDispatcherClosed", err)
	}
	if err := d.Activate(); !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("Activate err = %v, want ErrDispatcherClosed", err)
	}

	// BLE triggers after shutdown go nowhere.
	evs := watch(bus)
	bus.Publish(events.BLETrigger{DeviceID: "x"})
	if evs.count(events.KindEmergencyActivated) != 0 {
		t.Error("dispatcher reacted after Shutdown")
	}
}

func TestIndependentDispatchers(t *testing.T) {
	busA := events.NewBus(log.Discard())
	busB := events.NewBus(log.Discard())
	a := NewDispatcher(busA, WithLogger(log.Discard()))
	b := NewDispatcher(busB, WithLogger(log.Discard()))
	a.Activate()
	b.Activate()
	defer a.Shutdown()
	defer b.Shutdown()

	evsB := watch(busB)
	busA.Publish(events.BLETrigger{DeviceID: "a"})
	if evsB.count(events.KindEmergencyActivated) != 0 {
		t.Error("dispatchers share state")
	}
}

func TestSetAutoResponseLevel(t *testing.T) {
	d, _, _ := newTestDispatcher(t, DefaultConfig())
	if d.AutoResponseLevel() != AutoResponseAssist {
		t.Errorf("default level = %s, want assist", d.AutoResponseLevel())
	}
	if err := d.SetAutoResponseLevel(AutoResponseFull); err != nil {
		t.Fatalf("SetAutoResponseLevel: %v", err)
	}
	if d.AutoResponseLevel() != AutoResponseFull {
		t.Errorf("level = %s, want full", d.AutoResponseLevel())
	}
	if err := d.SetAutoResponseLevel("yolo"); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("err = %v, want ErrInvalidLevel", err)
	}
}

func TestDefaultLocationIsNotTracked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Contacts = []string{"+15550100"}
	d, bus, _ := newTestDispatcher(t, cfg)
	evs := watch(bus)

	bus.Publish(events.LocationUpdated{Position: geo.Position{Lat: 39.8283, Lng: -98.5795, Default: true}})
	if loc := d.LastLocation(); loc != nil {
		t.Fatalf("LastLocation() = %v, want nil for the fallback position", loc)
	}

	if _, err := d.HandleManualTrigger(context.Background(), events.SourceBLE); err != nil {
		t.Fatal(err)
	}
	sms := evs.first(events.KindSendSMS).(events.SendSMS)
	if strings.Contains(sms.Message, "39.828300") {
		t.Errorf("sms carries the fallback position: %q", sms.Message)
	}

	bus.Publish(events.LocationUpdated{Position: geo.Position{Lat: 40.7128, Lng: -74.0060, Accuracy: 10}})
	if loc := d.LastLocation(); loc == nil || loc.Lat != 40.7128 {
		t.Errorf("LastLocation() = %v, want the real fix", loc)
	}
}

func TestDetectionVerified(t *testing.T) {
	tests := []struct {
		source events.Source
		want   bool
	}{
		{events.SourceManual, true},
		{events.SourceAI, false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.source), func(t *testing.T) {
			d, _, _ := newTestDispatcher(t, DefaultConfig())
			resp, err := d.HandleThreatDetection(context.Background(),
				Detection{Subtype: "weapon", Confidence: 0.8, Source: tt.source})
			if err != nil {
				t.Fatal(err)
			}
			if resp.Alert.Verified != tt.want {
				t.Errorf("Verified = %v, want %v", resp.Alert.Verified, tt.want)
			}
		})
	}
}
