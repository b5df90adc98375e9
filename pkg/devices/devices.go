// Package devices accepts WebSocket connections from panic-button bridges
// (a phone or hub relaying BLE button presses) and sends commands back.
package devices

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-guardian/pkg/events"
	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/protocol"
)

// ErrDeviceNotFound is returned when a command targets an unknown device.
var ErrDeviceNotFound = errors.New("devices: device not connected")

// LocationSink receives GPS fixes relayed by devices.
type LocationSink interface {
	Push(pos geo.Position)
}

// FrameSink receives camera frames relayed by devices.
type FrameSink interface {
	Put(jpeg []byte)
}

// Connection represents a connected device
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	mu       sync.Mutex
	lastSeen time.Time
	battery  float64
	presses  int
}

// Send sends a message to the device
func (d *Connection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Conn.WriteMessage(websocket.TextMessage, data)
}

func (d *Connection) touch() {
	d.mu.Lock()
	d.lastSeen = time.Now()
	d.mu.Unlock()
}

// Hub manages WebSocket connections from devices
type Hub struct {
	mu      sync.RWMutex
	devices map[string]*Connection

	bus      *events.Bus
	location LocationSink
	frames   FrameSink
	logger   *slog.Logger

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	triggers         atomic.Uint64
	locations        atomic.Uint64
	framesReceived   atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithLocationSink routes device GPS fixes to sink.
func WithLocationSink(sink LocationSink) Option {
	return func(h *Hub) { h.location = sink }
}

// WithFrameSink routes device camera frames to sink.
func WithFrameSink(sink FrameSink) Option {
	return func(h *Hub) { h.frames = sink }
}

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates a device hub publishing panic button presses to bus.
func NewHub(bus *events.Bus, opts ...Option) *Hub {
	h := &Hub{
		devices: make(map[string]*Connection),
		bus:     bus,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "devices")
	return h
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/device", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/device", websocket.New(h.handleDevice))
	app.Get("/ws/device/:id", websocket.New(h.handleDevice))
}

func (h *Hub) handleDevice(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	dev := &Connection{
		ID:        id,
		Conn:      c,
		Connected: now,
		lastSeen:  now,
	}

	h.mu.Lock()
	if old, ok := h.devices[id]; ok {
		old.Conn.Close()
	}
	h.devices[id] = dev
	count := len(h.devices)
	h.mu.Unlock()

	h.logger.Info("device connected", "device", id, "devices", count)

	defer func() {
		h.mu.Lock()
		if h.devices[id] == dev {
			delete(h.devices, id)
		}
		count := len(h.devices)
		h.mu.Unlock()
		h.logger.Info("device disconnected", "device", id, "devices", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("device read ended", "device", id, "error", err)
			return
		}

		dev.touch()
		h.messagesReceived.Add(1)
		h.handleMessage(dev, data)
	}
}

func (h *Hub) handleMessage(dev *Connection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Warn("bad device message", "device", dev.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeBLETrigger:
		trig, err := msg.GetBLETriggerData()
		if err != nil {
			h.logger.Warn("bad trigger payload", "device", dev.ID, "error", err)
			return
		}
		dev.mu.Lock()
		dev.presses++
		if trig.Battery > 0 {
			dev.battery = trig.Battery
		}
		dev.mu.Unlock()

		h.triggers.Add(1)
		deviceID := dev.ID
		if trig.Button != "" {
			deviceID = dev.ID + "/" + trig.Button
		}
		h.logger.Warn("panic button pressed", "device", deviceID, "battery", trig.Battery)
		if h.bus != nil {
			h.bus.Publish(events.BLETrigger{
				DeviceID: deviceID,
				Battery:  trig.Battery,
				At:       time.Now(),
			})
		}

	case protocol.TypeLocation:
		pos, err := msg.GetPositionData()
		if err != nil {
			h.logger.Warn("bad location payload", "device", dev.ID, "error", err)
			return
		}
		h.locations.Add(1)
		if h.location != nil {
			h.location.Push(pos.Position(time.Now()))
		}

	case protocol.TypeFrame:
		frame, err := msg.GetFrameData()
		if err != nil {
			return
		}
		jpeg, err := frame.DecodeFrameData()
		if err != nil {
			h.logger.Debug("bad frame encoding", "device", dev.ID, "error", err)
			return
		}
		h.framesReceived.Add(1)
		if h.frames != nil {
			h.frames.Put(jpeg)
		}

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		var pingID string
		if ping != nil {
			pingID = ping.ID
		}
		pong, err := protocol.NewPongMessage(pingID, msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			h.messagesSent.Add(1)
			dev.Send(pong)
		}

	case protocol.TypePong:
		// touch() already recorded liveness

	default:
		h.logger.Debug("ignoring device message", "device", dev.ID, "type", msg.Type)
	}
}

// SendCommand sends a command to one device
func (h *Hub) SendCommand(deviceID, command string, data any) error {
	h.mu.RLock()
	dev, ok := h.devices[deviceID]
	h.mu.RUnlock()

	if !ok {
		return ErrDeviceNotFound
	}

	msg, err := protocol.NewCommandMessage(command, data)
	if err != nil {
		return err
	}
	h.messagesSent.Add(1)
	return dev.Send(msg)
}

// BroadcastCommand sends a command to every connected device and returns
// how many accepted it.
func (h *Hub) BroadcastCommand(command string, data any) int {
	msg, err := protocol.NewCommandMessage(command, data)
	if err != nil {
		h.logger.Error("encode command", "command", command, "error", err)
		return 0
	}

	sent := 0
	for _, dev := range h.snapshot() {
		h.messagesSent.Add(1)
		if err := dev.Send(msg); err != nil {
			h.logger.Warn("command send failed", "device", dev.ID, "command", command, "error", err)
			continue
		}
		sent++
	}
	return sent
}

func (h *Hub) snapshot() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	devs := make([]*Connection, 0, len(h.devices))
	for _, d := range h.devices {
		devs = append(devs, d)
	}
	return devs
}

// Count returns the number of connected devices
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

// Get returns a device connection by ID
func (h *Hub) Get(deviceID string) *Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.devices[deviceID]
}

// Stats contains hub statistics
type Stats struct {
	DeviceCount      int    `json:"device_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	Triggers         uint64 `json:"triggers"`
	Locations        uint64 `json:"locations"`
	FramesReceived   uint64 `json:"frames_received"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		DeviceCount:      h.Count(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		Triggers:         h.triggers.Load(),
		Locations:        h.locations.Load(),
		FramesReceived:   h.framesReceived.Load(),
	}
}

// Info contains info about a connected device
type Info struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Battery   float64   `json:"battery,omitempty"`
	Presses   int       `json:"presses"`
}

// Infos returns info about all connected devices
func (h *Hub) Infos() []Info {
	devs := h.snapshot()
	infos := make([]Info, 0, len(devs))
	for _, d := range devs {
		d.mu.Lock()
		infos = append(infos, Info{
			ID:        d.ID,
			Connected: d.Connected,
			LastSeen:  d.lastSeen,
			Battery:   d.battery,
			Presses:   d.presses,
		})
		d.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for device management
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	devices := api.Group("/devices")

	devices.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"devices": h.Infos(),
			"count":   h.Count(),
		})
	})

	devices.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})

	devices.Post("/:id/command", func(c *fiber.Ctx) error {
		var req struct {
			Command string          `json:"command"`
			Data    json.RawMessage `json:"data"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if req.Command == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "command is required"})
		}

		var payload any
		if len(req.Data) > 0 {
			payload = req.Data
		}
		if err := h.SendCommand(c.Params("id"), req.Command, payload); err != nil {
			status := fiber.StatusInternalServerError
			if errors.Is(err, ErrDeviceNotFound) {
				status = fiber.StatusNotFound
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		}

		return c.JSON(fiber.Map{"status": "sent"})
	})
}
