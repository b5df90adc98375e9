package emergency

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-guardian/pkg/events"
	"github.com/teslashibe/go-guardian/pkg/notify"
)

// Device command names understood by panic button bridges.
const (
	CommandSiren  = "siren"
	CommandRecord = "record"
)

// DeviceCommander sends a command to every connected device and returns
// how many received it.
type DeviceCommander interface {
	BroadcastCommand(command string, data any) int
}

// Responder carries out downstream action events. Calls and texts are
// simulated: they surface as notices. Siren and recording commands go to
// connected devices.
type Responder struct {
	bus      *events.Bus
	notifier notify.Notifier
	devices  DeviceCommander
	logger   *slog.Logger

	mu   sync.Mutex
	subs []*events.Subscription
}

// NewResponder creates a responder. devices may be nil.
func NewResponder(bus *events.Bus, notifier notify.Notifier, devices DeviceCommander, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		bus:      bus,
		notifier: notifier,
		devices:  devices,
		logger:   logger.With("component", "emergency.responder"),
	}
}

// Start subscribes to the action events.
func (r *Responder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.subs) > 0 {
		return
	}
	r.subs = []*events.Subscription{
		r.bus.Subscribe(events.KindMakeCall, r.handle),
		r.bus.Subscribe(events.KindSendSMS, r.handle),
		r.bus.Subscribe(events.KindBroadcastAlert, r.handle),
		r.bus.Subscribe(events.KindActivateSiren, r.handle),
		r.bus.Subscribe(events.KindStartRecording, r.handle),
	}
}

// Stop unsubscribes.
func (r *Responder) Stop() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

func (r *Responder) handle(e events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch ev := e.(type) {
	case events.MakeCall:
		verb := "Calling"
		if ev.Simulated {
			verb = "Simulated call to"
		}
		r.logger.Warn("emergency call", "number", ev.Number, "simulated", ev.Simulated, "reason", ev.Reason)
		notify.Send(ctx, r.notifier, r.logger, notify.Notice{
			Title: notify.TitleEmergencyCall,
			Body:  fmt.Sprintf("%s %s: %s", verb, ev.Number, ev.Reason),
			Level: notify.LevelUrgent,
		})

	case events.SendSMS:
		r.logger.Info("texting contacts", "count", len(ev.To))
		notify.Send(ctx, r.notifier, r.logger, notify.Notice{
			Title: notify.TitleContactsNotified,
			Body:  fmt.Sprintf("Sent to %s: %s", strings.Join(ev.To, ", "), ev.Message),
			Level: notify.LevelWarning,
		})

	case events.BroadcastAlert:
		data := map[string]string{"alert_id": ev.AlertID}
		if ev.Location != nil {
			data["location"] = ev.Location.String()
		}
		notify.Send(ctx, r.notifier, r.logger, notify.Notice{
			Title: notify.TitleEmergencyAlert,
			Body:  ev.Title + ": " + ev.Body,
			Level: notify.LevelUrgent,
			Data:  data,
		})

	case events.ActivateSiren:
		r.command(CommandSiren, map[string]any{"duration_ms": ev.Duration.Milliseconds()})

	case events.StartRecording:
		r.command(CommandRecord, map[string]any{"alert_id": ev.AlertID, "source": string(ev.Source)})
	}
}

func (r *Responder) command(name string, data any) {
	if r.devices == nil {
		r.logger.Debug("no device commander, command dropped", "command", name)
		return
	}
	n := r.devices.BroadcastCommand(name, data)
	r.logger.Info("device command sent", "command", name, "devices", n)
}
