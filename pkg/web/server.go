// Package web serves the Guardian REST API and the live dashboard stream.
package web

import (
	"context"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-guardian/pkg/devices"
	"github.com/teslashibe/go-guardian/pkg/emergency"
	"github.com/teslashibe/go-guardian/pkg/events"
	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/hub"
	"github.com/teslashibe/go-guardian/pkg/notify"
	"github.com/teslashibe/go-guardian/pkg/protocol"
	"github.com/teslashibe/go-guardian/pkg/threat"
	"github.com/teslashibe/go-guardian/pkg/voice"
)

// Config holds server settings.
type Config struct {
	Port         string
	StaticDir    string // Dashboard assets, empty to disable
	AllowOrigins string // CORS origins
}

// DefaultConfig returns local development defaults.
func DefaultConfig() Config {
	return Config{
		Port:         "8080",
		StaticDir:    "./web",
		AllowOrigins: "*",
	}
}

// Emergency is the dispatcher surface used by the API.
type Emergency interface {
	HandleManualTrigger(ctx context.Context, source events.Source) (*emergency.Incident, error)
	HandleThreatDetection(ctx context.Context, det emergency.Detection) (*emergency.Response, error)
	Incidents(ctx context.Context, limit int) ([]emergency.Incident, error)
	AutoResponseLevel() emergency.AutoResponseLevel
	SetAutoResponseLevel(level emergency.AutoResponseLevel) error
}

// Locations accepts fixes and reports the debounced user location.
type Locations interface {
	Push(pos geo.Position)
	Current() (geo.Position, bool)
	State() string
}

// NearbySource produces nearby threat markers.
type NearbySource interface {
	FetchNearbyData(ctx context.Context, user geo.Point) []threat.Marker
}

// RealTimeSource produces real-time threat markers.
type RealTimeSource interface {
	FetchRealTimeThreats(ctx context.Context, user *geo.Point) []threat.Marker
}

// VoiceProcessor answers voice transcripts.
type VoiceProcessor interface {
	Process(ctx context.Context, transcript string) (*voice.Reply, error)
}

// FrameSink receives uploaded camera frames.
type FrameSink interface {
	Put(jpeg []byte)
}

// Deps are the components behind the API. Nil fields disable their routes
// (they answer 503).
type Deps struct {
	Emergency Emergency
	Locations Locations
	Nearby    NearbySource
	RealTime  RealTimeSource
	Map       func() []threat.Marker
	Voice     VoiceProcessor
	Frames    FrameSink
	Devices   *devices.Hub
	State     func() protocol.StateData
}

// Server is the HTTP/WebSocket server
type Server struct {
	app    *fiber.App
	config Config
	deps   Deps
	logger *slog.Logger

	// Dashboard event stream
	events *hub.Hub
}

// NewServer creates a new server
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "web"),
		events: hub.New("events", logger),
	}
	s.events.OnConnect(s.greeting)

	app := fiber.New(fiber.Config{
		AppName:               "Guardian",
		DisableStartupMessage: true,
		BodyLimit:             8 * 1024 * 1024,
	})

	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowOrigins}))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/location", s.handleGetLocation)
	api.Post("/location", s.handlePostLocation)
	api.Get("/threats/nearby", s.handleNearby)
	api.Get("/threats/realtime", s.handleRealTime)
	api.Get("/map", s.handleMap)
	api.Post("/emergency/trigger", s.handleTrigger)
	api.Post("/emergency/detection", s.handleDetection)
	api.Get("/incidents", s.handleIncidents)
	api.Get("/settings/auto-response", s.handleGetAutoResponse)
	api.Put("/settings/auto-response", s.handlePutAutoResponse)
	api.Post("/voice/command", s.handleVoice)
	api.Post("/detection/frame", s.handleFrame)

	if deps.Devices != nil {
		deps.Devices.RegisterRoutes(app)
		deps.Devices.RegisterAPIRoutes(api)
	}

	app.Use("/ws/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.events.Handler()))

	s.app = app
	return s
}

// App exposes the fiber app (tests use app.Test).
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the event hub and listens on the configured port. It blocks
// until the server stops.
func (s *Server) Start() error {
	go s.events.Run()
	s.logger.Info("listening", "url", "http://localhost:"+s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	go s.events.Run()
	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("server stopped", "error", err)
		}
	}()
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	s.events.Stop()
	return s.app.Shutdown()
}

// ClientCount returns the number of dashboard clients.
func (s *Server) ClientCount() int {
	return s.events.ClientCount()
}

// PublishEvent forwards a bus event to dashboard clients.
func (s *Server) PublishEvent(e events.Event) {
	msg, err := protocol.FromEvent(e)
	if err != nil {
		s.logger.Warn("encode event", "kind", e.Kind(), "error", err)
		return
	}
	s.events.BroadcastMessage(msg)
}

// PublishMarkers sends the current marker list to dashboard clients.
func (s *Server) PublishMarkers(markers []threat.Marker) {
	msg, err := protocol.NewMarkersMessage(markers)
	if err != nil {
		s.logger.Warn("encode markers", "error", err)
		return
	}
	s.events.BroadcastMessage(msg)
}

// PublishState sends a state snapshot to dashboard clients.
func (s *Server) PublishState() {
	if s.deps.State == nil {
		return
	}
	msg, err := protocol.NewStateMessage(s.deps.State())
	if err != nil {
		return
	}
	s.events.BroadcastMessage(msg)
}

// Notify implements notify.Notifier by streaming notices to the dashboard.
func (s *Server) Notify(ctx context.Context, n notify.Notice) error {
	msg, err := protocol.NewNoticeMessage(n)
	if err != nil {
		return err
	}
	s.events.BroadcastMessage(msg)
	return nil
}

// greeting is what a new dashboard client receives first.
func (s *Server) greeting() [][]byte {
	var out [][]byte
	if s.deps.State != nil {
		if msg, err := protocol.NewStateMessage(s.deps.State()); err == nil {
			if data, err := msg.Bytes(); err == nil {
				out = append(out, data)
			}
		}
	}
	if s.deps.Map != nil {
		if msg, err := protocol.NewMarkersMessage(s.deps.Map()); err == nil {
			if data, err := msg.Bytes(); err == nil {
				out = append(out, data)
			}
		}
	}
	return out
}
