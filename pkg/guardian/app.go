package guardian

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-guardian/internal/log"
	"github.com/teslashibe/go-guardian/pkg/detection"
	"github.com/teslashibe/go-guardian/pkg/detection/yolo"
	"github.com/teslashibe/go-guardian/pkg/devices"
	"github.com/teslashibe/go-guardian/pkg/emergency"
	"github.com/teslashibe/go-guardian/pkg/events"
	"github.com/teslashibe/go-guardian/pkg/feed"
	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/geocode"
	"github.com/teslashibe/go-guardian/pkg/location"
	"github.com/teslashibe/go-guardian/pkg/notify"
	"github.com/teslashibe/go-guardian/pkg/protocol"
	"github.com/teslashibe/go-guardian/pkg/threat"
	"github.com/teslashibe/go-guardian/pkg/voice"
	"github.com/teslashibe/go-guardian/pkg/weather"
	"github.com/teslashibe/go-guardian/pkg/web"
)

var (
	// ErrRefreshFailed is returned by Refresh when a marker source panics.
	ErrRefreshFailed = errors.New("guardian: refresh failed")

	// ErrClosed is returned by Run after Shutdown.
	ErrClosed = errors.New("guardian: app is shut down")
)

// EmergencyWindow is how long the dashboard shows an emergency as active.
const EmergencyWindow = 5 * time.Minute

// App is the main Guardian application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config Config
	logger *slog.Logger

	// Core
	bus        *events.Bus
	notifier   notify.Notifier
	notices    *notify.Recorder
	dispatcher *emergency.Dispatcher
	responder  *emergency.Responder

	// Location pipeline
	platform  *location.PushPlatform
	acquirer  *location.Acquirer
	debouncer *location.Debouncer

	// Threat map
	nearby   web.NearbySource
	realtime web.RealTimeSource

	// Voice
	voice *voice.CommandProcessor

	// Vision
	frames   *detection.FrameBuffer
	detector *yolo.Detector
	scanner  *detection.WeaponScanner

	// Transports
	devices *devices.Hub
	web     *web.Server

	refresh chan struct{}

	mu            sync.Mutex
	markers       []threat.Marker
	lastEmergency time.Time
	subs          []*events.Subscription
	closed        bool
}

// New creates a new Guardian application with the given configuration.
// Environment and file overrides are applied by the caller.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &App{
		config:  cfg,
		logger:  log.Component("guardian"),
		refresh: make(chan struct{}, 1),
		markers: []threat.Marker{},
	}
	return app, nil
}

// Init initializes all components.
// Call this after New() and before Run().
func (a *App) Init(ctx context.Context) error {
	a.logger.Info("initializing", "port", a.config.Port, "auto_response", a.config.AutoResponseLevel)

	a.bus = events.NewBus(log.Component("events"))

	if err := a.initEmergency(ctx); err != nil {
		return fmt.Errorf("emergency init: %w", err)
	}
	a.initLocation()
	if err := a.initThreats(); err != nil {
		return fmt.Errorf("threat init: %w", err)
	}
	if err := a.initVoice(); err != nil {
		return fmt.Errorf("voice init: %w", err)
	}
	if err := a.initVision(); err != nil {
		a.logger.Warn("weapon detection disabled", "error", err)
	}
	a.initTransports()

	a.subs = append(a.subs,
		a.bus.SubscribeAll(a.web.PublishEvent),
		a.bus.Subscribe(events.KindEmergencyActivated, func(events.Event) {
			a.mu.Lock()
			a.lastEmergency = time.Now()
			a.mu.Unlock()
			a.web.PublishState()
		}),
	)
	return nil
}

// initEmergency builds the notifier fan-out, incident store and dispatcher.
func (a *App) initEmergency(ctx context.Context) error {
	a.notices = notify.NewRecorder(100)

	// The web sink is bound lazily: the server is built after the dispatcher.
	sinks := notify.Multi{
		notify.NewLogNotifier(log.Component("notice")),
		a.notices,
		notify.Func(func(ctx context.Context, n notify.Notice) error {
			if a.web == nil {
				return nil
			}
			return a.web.Notify(ctx, n)
		}),
	}
	if a.config.FCMProjectID != "" {
		fcm, err := notify.NewFCMNotifier(ctx, notify.FCMConfig{
			ProjectID:       a.config.FCMProjectID,
			CredentialsFile: a.config.FCMCredentialsFile,
			Topic:           a.config.FCMTopic,
			DeviceToken:     a.config.FCMDeviceToken,
			MinLevel:        notify.LevelWarning,
		}, log.Component("fcm"))
		if err != nil {
			a.logger.Warn("push notifications disabled", "error", err)
		} else {
			sinks = append(sinks, fcm)
		}
	}
	a.notifier = sinks

	level, err := emergency.ParseAutoResponseLevel(a.config.AutoResponseLevel)
	if err != nil {
		return err
	}
	ecfg := emergency.DefaultConfig()
	ecfg.AutoResponseLevel = level
	ecfg.EmergencyNumber = a.config.EmergencyNumber
	ecfg.SimulateCalls = a.config.SimulateCalls
	ecfg.Contacts = a.config.Contacts

	opts := []emergency.Option{
		emergency.WithConfig(ecfg),
		emergency.WithNotifier(a.notifier),
		emergency.WithLogger(log.Component("emergency")),
	}
	if a.config.DynamoTable != "" {
		client, err := emergency.NewDynamoDBClient(ctx, a.config.AWSRegion, a.config.DynamoEndpoint)
		if err != nil {
			return err
		}
		opts = append(opts, emergency.WithStore(
			emergency.NewDynamoDBStore(client, a.config.DynamoTable, log.Component("incidents"))))
		a.logger.Info("incidents stored in dynamodb", "table", a.config.DynamoTable)
	}

	a.dispatcher = emergency.NewDispatcher(a.bus, opts...)
	return a.dispatcher.Activate()
}

// initLocation wires push platform -> acquirer -> debouncer.
func (a *App) initLocation() {
	lcfg := location.DefaultConfig()
	lcfg.DefaultPosition = a.config.DefaultLocation

	a.platform = location.NewPushPlatform()
	a.debouncer = location.NewDebouncer(lcfg, a.bus, a.notifier)
	a.debouncer.SetLogger(log.Component("location.debounce"))
	a.debouncer.SetHighAccuracy(true)
	a.debouncer.OnUpdate(func(geo.Position) {
		a.RequestRefresh()
	})

	a.acquirer = location.NewAcquirer(a.platform, lcfg,
		location.WithPositionHandler(func(pos geo.Position) {
			a.debouncer.Submit(pos)
		}),
		location.WithStateHandler(func(from, to location.State) {
			if to == location.StateAwaitingStandard || to == location.StateUsingDefault {
				a.debouncer.SetHighAccuracy(false)
			}
			if a.web != nil {
				a.web.PublishState()
			}
		}),
		location.WithNotifier(a.notifier),
		location.WithLogger(log.Component("location")),
	)
}

// initThreats builds the nearby aggregator and the real-time feed filter.
func (a *App) initThreats() error {
	var wopts []weather.Option
	if a.config.WeatherURL != "" {
		wopts = append(wopts, weather.WithBaseURL(a.config.WeatherURL))
	}
	wopts = append(wopts, weather.WithLogger(log.Component("weather")))

	var gopts []geocode.Option
	if a.config.GeocodeURL != "" {
		gopts = append(gopts, geocode.WithBaseURL(a.config.GeocodeURL))
	}
	gopts = append(gopts, geocode.WithLogger(log.Component("geocode")))

	a.nearby = threat.NewAggregator(weather.NewClient(wopts...), geocode.NewClient(gopts...),
		threat.WithLogger(log.Component("threat")))

	// A nil *feed.Client must not reach the filter as a non-nil interface.
	var source threat.Feed
	if a.config.FeedURL != "" {
		fopts := []feed.Option{
			feed.WithBaseURL(a.config.FeedURL),
			feed.WithLogger(log.Component("feed")),
		}
		if a.config.FeedClientID != "" {
			fopts = append(fopts, feed.WithClientCredentials(
				a.config.FeedClientID, a.config.FeedClientSecret, a.config.FeedTokenURL))
		}
		client, err := feed.NewClient(fopts...)
		if err != nil {
			return err
		}
		source = client
	}
	a.realtime = threat.NewRealTimeFilter(source, 0, log.Component("threat.filter"))
	return nil
}

// initVoice builds the command processor. Without an API key only emergency
// phrases and cached answers are served.
func (a *App) initVoice() error {
	var interp voice.Interpreter
	if a.config.OpenAIKey != "" {
		opts := []voice.InterpreterOption{
			voice.WithAPIKey(a.config.OpenAIKey),
			voice.WithInterpreterLogger(log.Component("voice.openai")),
		}
		if a.config.OpenAIBaseURL != "" {
			opts = append(opts, voice.WithBaseURL(a.config.OpenAIBaseURL))
		}
		if a.config.OpenAIModel != "" {
			opts = append(opts, voice.WithModel(a.config.OpenAIModel))
		}
		o, err := voice.NewOpenAIInterpreter(opts...)
		if err != nil {
			return err
		}
		interp = o
	}

	pcfg := voice.DefaultProcessorConfig()
	cache := voice.NewResponseCache(pcfg.CacheSize)
	a.voice = voice.NewCommandProcessor(pcfg, a.dispatcher, interp, cache, log.Component("voice"))
	return nil
}

// initVision sets up the frame buffer and, with a model, the weapon scanner.
func (a *App) initVision() error {
	a.frames = detection.NewFrameBuffer(10 * time.Second)
	if a.config.YOLOModelPath == "" {
		return nil
	}

	ycfg := yolo.DefaultConfig()
	ycfg.ModelPath = a.config.YOLOModelPath
	det, err := yolo.New(ycfg, log.Component("yolo"))
	if err != nil {
		return err
	}
	a.detector = det

	var source detection.FrameSource = a.frames
	if a.config.CameraSnapshotURL != "" {
		source = detection.NewSnapshotSource(a.config.CameraSnapshotURL, 5*time.Second)
	}

	dcfg := detection.DefaultConfig()
	dcfg.Interval = a.config.DetectionInterval
	a.scanner = detection.NewWeaponScanner(det, source, a.bus,
		detection.WithConfig(dcfg),
		detection.WithLogger(log.Component("detection")),
		detection.WithLocation(a.dispatcher.LastLocation),
	)
	a.logger.Info("weapon detection enabled", "model", ycfg.ModelPath)
	return nil
}

// initTransports builds the device hub, responder and web server.
func (a *App) initTransports() {
	a.devices = devices.NewHub(a.bus,
		devices.WithLocationSink(a.platform),
		devices.WithFrameSink(a.frames),
		devices.WithLogger(log.Component("devices")),
	)
	a.responder = emergency.NewResponder(a.bus, a.notifier, a.devices, log.Component("responder"))

	wcfg := web.DefaultConfig()
	wcfg.Port = a.config.Port
	wcfg.StaticDir = a.config.StaticDir
	a.web = web.NewServer(wcfg, web.Deps{
		Emergency: a.dispatcher,
		Locations: locations{a},
		Nearby:    a.nearby,
		RealTime:  a.realtime,
		Map:       a.Markers,
		Voice:     a.voice,
		Frames:    a.frames,
		Devices:   a.devices,
		State:     a.State,
	}, log.Component("web"))
}

// Run starts the background loops and the web server.
// Blocks until context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.mu.Unlock()

	a.responder.Start()
	a.acquirer.Start()
	if a.scanner != nil {
		if err := a.scanner.Start(ctx); err != nil {
			a.logger.Warn("scanner not started", "error", err)
		}
	}
	go a.refreshLoop(ctx)

	errc := make(chan error, 1)
	go func() {
		errc <- a.web.Start()
	}()

	a.logger.Info("guardian running", "url", "http://localhost:"+a.config.Port)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return fmt.Errorf("web server: %w", err)
	}
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	subs := a.subs
	a.subs = nil
	a.mu.Unlock()

	if a.scanner != nil {
		a.scanner.Stop()
	}
	if a.acquirer != nil {
		a.acquirer.Stop()
	}
	if a.debouncer != nil {
		a.debouncer.Stop()
	}
	if a.responder != nil {
		a.responder.Stop()
	}
	if a.dispatcher != nil {
		a.dispatcher.Shutdown()
	}
	for _, s := range subs {
		s.Unsubscribe()
	}
	if a.web != nil {
		if err := a.web.Shutdown(); err != nil {
			a.logger.Warn("web shutdown", "error", err)
		}
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			a.logger.Warn("detector close", "error", err)
		}
	}
	a.logger.Info("goodbye")
}

// RequestRefresh schedules a marker refresh. Requests made while one is
// pending coalesce.
func (a *App) RequestRefresh() {
	select {
	case a.refresh <- struct{}{}:
	default:
	}
}

func (a *App) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(a.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-a.refresh:
		}
		if err := a.Refresh(ctx); err != nil {
			a.logger.Warn("refresh", "error", err)
		}
	}
}

// Refresh rebuilds the marker list around the current location and pushes
// it to the dashboard. Without a location it does nothing. If a source
// panics the previous list is kept and a notice is raised.
func (a *App) Refresh(ctx context.Context) (err error) {
	pos, ok := a.debouncer.Last()
	if !ok {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("refresh panicked", "panic", r)
			notify.Send(ctx, a.notifier, a.logger, notify.New(notify.LevelError,
				notify.TitleRefreshFailed, "Could not update nearby threats"))
			err = fmt.Errorf("%w: %v", ErrRefreshFailed, r)
		}
	}()

	user := pos.Point()
	// The fallback position is not a known location for the feed filter.
	var known *geo.Point
	if !pos.Default {
		known = &user
	}
	markers := a.nearby.FetchNearbyData(ctx, user)
	markers = append(markers, a.realtime.FetchRealTimeThreats(ctx, known)...)
	markers = threat.Dedupe(markers)

	a.mu.Lock()
	a.markers = markers
	a.mu.Unlock()

	a.logger.Debug("markers refreshed", "count", len(markers), "lat", user.Lat, "lng", user.Lng)
	a.web.PublishMarkers(markers)
	a.web.PublishState()
	return nil
}

// Markers returns a copy of the current marker list.
func (a *App) Markers() []threat.Marker {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]threat.Marker, len(a.markers))
	copy(out, a.markers)
	return out
}

// Notices returns the recent notices raised by any component.
func (a *App) Notices() []notify.Notice {
	return a.notices.All()
}

// State returns the dashboard state snapshot.
func (a *App) State() protocol.StateData {
	a.mu.Lock()
	markers := len(a.markers)
	emergencyActive := !a.lastEmergency.IsZero() && time.Since(a.lastEmergency) < EmergencyWindow
	a.mu.Unlock()

	st := protocol.StateData{
		AutoResponseLevel: string(a.dispatcher.AutoResponseLevel()),
		LocationState:     a.acquirer.State().String(),
		Markers:           markers,
		Devices:           a.devices.Count(),
		Emergency:         emergencyActive,
	}
	if pos, ok := a.debouncer.Last(); ok {
		pd := protocol.PositionFrom(pos)
		st.Location = &pd
	}
	return st
}

// Web returns the web server.
func (a *App) Web() *web.Server {
	return a.web
}

// Bus returns the event bus.
func (a *App) Bus() *events.Bus {
	return a.bus
}

// locations adapts the location pipeline to web.Locations.
type locations struct{ a *App }

func (l locations) Push(pos geo.Position)         { l.a.platform.Push(pos) }
func (l locations) Current() (geo.Position, bool) { return l.a.debouncer.Last() }
func (l locations) State() string                 { return l.a.acquirer.State().String() }
