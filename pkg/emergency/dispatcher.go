package emergency

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-guardian/pkg/events"
	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/notify"
)

// Dispatcher receives panic triggers and detections and fans them out as
// EmergencyActivated signals plus downstream action events.
//
// Lifecycle: NewDispatcher, Activate, Shutdown. Nothing is global; tests
// create as many as they need.
type Dispatcher struct {
	bus      *events.Bus
	cfg      Config
	store    IncidentStore
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	level    AutoResponseLevel
	active   bool
	closed   bool
	subs     []*events.Subscription
	location *geo.Point
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) { d.cfg = cfg }
}

// WithStore sets where incidents are recorded.
func WithStore(s IncidentStore) Option {
	return func(d *Dispatcher) { d.store = s }
}

// WithNotifier sets the sink for user notices.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates an inactive dispatcher publishing on bus.
func NewDispatcher(bus *events.Bus, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		bus:    bus,
		cfg:    DefaultConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.store == nil {
		d.store = NewMemoryStore(0)
	}
	if d.cfg.AutoResponseLevel == "" {
		d.cfg.AutoResponseLevel = AutoResponseAssist
	}
	d.level = d.cfg.AutoResponseLevel
	d.logger = d.logger.With("component", "emergency.dispatcher")
	return d
}

// Activate subscribes to detection inputs. Calling it again is a no-op.
func (d *Dispatcher) Activate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	if d.active {
		return nil
	}

	d.subs = append(d.subs,
		d.bus.Subscribe(events.KindWeaponDetected, func(e events.Event) {
			w := e.(events.WeaponDetected)
			det := Detection{
				Subtype:     w.Subtype,
				Confidence:  w.Confidence,
				Title:       w.Title,
				Description: w.Description,
				Location:    w.Location,
				Source:      events.SourceAI,
			}
			if _, err := d.HandleThreatDetection(context.Background(), det); err != nil {
				d.logger.Warn("detection not handled", "error", err)
			}
		}),
		d.bus.Subscribe(events.KindBLETrigger, func(e events.Event) {
			b := e.(events.BLETrigger)
			d.logger.Info("panic button pressed", "device", b.DeviceID, "battery", b.Battery)
			if _, err := d.HandleManualTrigger(context.Background(), events.SourceBLE); err != nil {
				d.logger.Warn("ble trigger not handled", "error", err)
			}
		}),
		d.bus.Subscribe(events.KindLocationUpdated, func(e events.Event) {
			pos := e.(events.LocationUpdated).Position
			if pos.Default {
				return
			}
			p := pos.Point()
			d.mu.Lock()
			d.location = &p
			d.mu.Unlock()
		}),
	)
	d.active = true
	d.logger.Info("dispatcher active", "auto_response", d.level)
	return nil
}

// Active reports whether the dispatcher is listening.
func (d *Dispatcher) Active() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// Shutdown unsubscribes from the bus. Entry points fail afterwards.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	subs := d.subs
	d.subs = nil
	d.active = false
	d.closed = true
	d.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	d.logger.Info("dispatcher shut down")
}

// AutoResponseLevel returns the current policy.
func (d *Dispatcher) AutoResponseLevel() AutoResponseLevel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.level
}

// SetAutoResponseLevel changes the policy at runtime.
func (d *Dispatcher) SetAutoResponseLevel(level AutoResponseLevel) error {
	if _, err := ParseAutoResponseLevel(string(level)); err != nil {
		return err
	}
	d.mu.Lock()
	old := d.level
	d.level = level
	d.mu.Unlock()
	d.logger.Info("auto-response level changed", "from", old, "to", level)
	return nil
}

// LastLocation returns the last location seen on the bus.
func (d *Dispatcher) LastLocation() *geo.Point {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.location == nil {
		return nil
	}
	p := *d.location
	return &p
}

// SetLocation records the user location directly.
func (d *Dispatcher) SetLocation(p geo.Point) {
	d.mu.Lock()
	d.location = &p
	d.mu.Unlock()
}

// Incidents returns recent incidents, newest first.
func (d *Dispatcher) Incidents(ctx context.Context, limit int) ([]Incident, error) {
	return d.store.Recent(ctx, limit)
}

func (d *Dispatcher) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// HandleManualTrigger raises an emergency from a panic button, voice command
// or the UI: it publishes EmergencyActivated, starts recording, sounds the
// siren and texts the configured contacts.
func (d *Dispatcher) HandleManualTrigger(ctx context.Context, source events.Source) (*Incident, error) {
	if d.isClosed() {
		return nil, ErrDispatcherClosed
	}
	if source == "" {
		source = events.SourceManual
	}

	loc := d.LastLocation()
	inc := Incident{
		ID:        uuid.NewString(),
		Kind:      IncidentManual,
		Source:    source,
		Title:     "Emergency triggered via " + string(source),
		Severity:  SeverityCritical,
		Escalated: true,
		CreatedAt: d.now(),
	}
	inc.setLocation(loc)

	d.logger.Warn("emergency activated", "source", source, "incident", inc.ID)

	d.bus.Publish(events.EmergencyActivated{
		Source:   source,
		AlertID:  inc.ID,
		Severity: string(inc.Severity),
		Location: loc,
		At:       inc.CreatedAt,
	})
	d.bus.Publish(events.StartRecording{AlertID: inc.ID, Source: source})
	d.bus.Publish(events.ActivateSiren{Duration: d.cfg.SirenDuration})
	if len(d.cfg.Contacts) > 0 {
		d.bus.Publish(events.SendSMS{
			To:      append([]string(nil), d.cfg.Contacts...),
			Message: smsBody(source, loc),
		})
	}

	d.record(ctx, inc)
	notify.Send(ctx, d.notifier, d.logger, notify.Notice{
		Title: notify.TitleEmergencyActivated,
		Body:  fmt.Sprintf("Emergency mode activated (%s). Recording started and contacts alerted.", source),
		Level: notify.LevelUrgent,
		Data:  map[string]string{"incident_id": inc.ID, "source": string(source)},
	})
	return &inc, nil
}

// Response is the outcome of HandleThreatDetection.
type Response struct {
	Alert          DetectionAlert `json:"alert"`
	Classification Classification `json:"classification"`
	Action         Action         `json:"action"`
	Escalated      bool           `json:"escalated"`
}

// HandleThreatDetection classifies a detection, records it and applies the
// auto-response policy. High and critical detections are escalated with an
// EmergencyActivated signal.
func (d *Dispatcher) HandleThreatDetection(ctx context.Context, det Detection) (*Response, error) {
	if d.isClosed() {
		return nil, ErrDispatcherClosed
	}
	if strings.TrimSpace(det.Subtype) == "" || det.Confidence < 0 || det.Confidence > 1 {
		return nil, fmt.Errorf("%w: subtype=%q confidence=%v", ErrInvalidDetection, det.Subtype, det.Confidence)
	}
	if det.Source == "" {
		det.Source = events.SourceAI
	}

	c := Classify(det.Subtype, det.Confidence)
	loc := det.Location
	if loc == nil {
		loc = d.LastLocation()
	}

	alert := DetectionAlert{
		ID:          uuid.NewString(),
		Title:       det.Title,
		Description: det.Description,
		Level:       c.Severity.AlertLevel(),
		Timestamp:   d.now(),
		Location:    loc,
		Confidence:  det.Confidence,
		Verified:    det.Source == events.SourceManual,
	}
	if alert.Title == "" {
		alert.Title = defaultTitle(c)
	}

	escalate := c.Severity.AtLeast(SeverityHigh)
	if escalate {
		d.bus.Publish(events.EmergencyActivated{
			Source:   det.Source,
			AlertID:  alert.ID,
			Category: string(c.Category),
			Severity: string(c.Severity),
			Location: loc,
			At:       alert.Timestamp,
		})
	}

	level := d.AutoResponseLevel()
	action := d.HandleAutomaticResponse(ctx, alert, c, level)

	inc := Incident{
		ID:          alert.ID,
		Kind:        IncidentDetection,
		Source:      det.Source,
		Title:       alert.Title,
		Description: alert.Description,
		Category:    c.Category,
		Severity:    c.Severity,
		Confidence:  c.Confidence,
		Action:      action,
		Escalated:   escalate,
		CreatedAt:   alert.Timestamp,
	}
	inc.setLocation(loc)
	d.record(ctx, inc)

	return &Response{Alert: alert, Classification: c, Action: action, Escalated: escalate}, nil
}

// HandleAutomaticResponse decides and carries out the response to a
// classified alert under level. Automatic places the emergency call and
// broadcasts the alert; notify raises a user notice; log only logs.
func (d *Dispatcher) HandleAutomaticResponse(ctx context.Context, alert DetectionAlert, c Classification, level AutoResponseLevel) Action {
	action := DecideAutomaticResponse(c.Severity, level)

	switch action {
	case ActionAutomatic:
		d.logger.Warn("automatic response", "alert", alert.ID, "category", c.Category, "severity", c.Severity)
		d.bus.Publish(events.MakeCall{
			Number:    d.cfg.EmergencyNumber,
			Simulated: d.cfg.SimulateCalls,
			Reason:    fmt.Sprintf("%s emergency: %s", c.Category, alert.Title),
		})
		d.bus.Publish(events.BroadcastAlert{
			AlertID:  alert.ID,
			Title:    alert.Title,
			Body:     fmt.Sprintf("%s (%s severity, %.0f%% confidence)", alert.Description, c.Severity, c.Confidence*100),
			Location: alert.Location,
		})
	case ActionNotify:
		notify.Send(ctx, d.notifier, d.logger, notify.Notice{
			Title: notify.TitleThreatDetected,
			Body:  fmt.Sprintf("%s: %s severity %s threat. Tap to respond.", alert.Title, c.Severity, c.Category),
			Level: levelForSeverity(c.Severity),
			Data:  map[string]string{"alert_id": alert.ID, "category": string(c.Category)},
		})
	default:
		d.logger.Info("detection logged", "alert", alert.ID, "subtype", c.Subtype,
			"category", c.Category, "severity", c.Severity, "auto_response", level)
	}
	return action
}

func (d *Dispatcher) record(ctx context.Context, inc Incident) {
	if err := d.store.Save(ctx, inc); err != nil {
		d.logger.Error("failed to record incident", "id", inc.ID, "error", err)
	}
}

func defaultTitle(c Classification) string {
	switch c.Category {
	case CategoryHealth:
		return "Possible medical emergency"
	case CategorySecurity:
		return "Possible security threat"
	default:
		return "Environmental hazard detected"
	}
}

func levelForSeverity(s Severity) notify.Level {
	switch s {
	case SeverityCritical, SeverityHigh:
		return notify.LevelUrgent
	case SeverityMedium:
		return notify.LevelWarning
	default:
		return notify.LevelInfo
	}
}

func smsBody(source events.Source, loc *geo.Point) string {
	msg := fmt.Sprintf("EMERGENCY: I need help (triggered via %s).", source)
	if loc != nil {
		msg += fmt.Sprintf(" My location: https://maps.google.com/?q=%.6f,%.6f", loc.Lat, loc.Lng)
	}
	return msg
}
