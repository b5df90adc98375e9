package web

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-guardian/pkg/emergency"
	"github.com/teslashibe/go-guardian/pkg/events"
	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/protocol"
	"github.com/teslashibe/go-guardian/pkg/threat"
	"github.com/teslashibe/go-guardian/pkg/voice"
)

const (
	defaultIncidentLimit = 20
	maxIncidentLimit     = 500
	requestTimeout       = 20 * time.Second
)

// timeoutCtx bounds downstream calls made on behalf of a request.
func timeoutCtx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func unavailable(c *fiber.Ctx, what string) error {
	return fail(c, fiber.StatusServiceUnavailable, what+" not configured")
}

// handleStatus returns the app state snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status":  "ok",
		"clients": s.events.ClientCount(),
	}
	if s.deps.State != nil {
		resp["state"] = s.deps.State()
	}
	return c.JSON(resp)
}

func (s *Server) handleGetLocation(c *fiber.Ctx) error {
	if s.deps.Locations == nil {
		return unavailable(c, "location")
	}
	pos, ok := s.deps.Locations.Current()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "location not yet known",
			"state": s.deps.Locations.State(),
		})
	}
	return c.JSON(fiber.Map{
		"position": pos,
		"state":    s.deps.Locations.State(),
	})
}

func (s *Server) handlePostLocation(c *fiber.Ctx) error {
	if s.deps.Locations == nil {
		return unavailable(c, "location")
	}

	var req protocol.PositionData
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if !(geo.Point{Lat: req.Lat, Lng: req.Lng}).Valid() {
		return fail(c, fiber.StatusBadRequest, "coordinates out of range")
	}
	if req.Accuracy < 0 {
		return fail(c, fiber.StatusBadRequest, "accuracy must not be negative")
	}

	s.deps.Locations.Push(req.Position(time.Now()))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

// userPoint resolves the point for a threat query: explicit lat/lng (or
// point=lat,lng) wins over the current user location.
func (s *Server) userPoint(c *fiber.Ctx) (*geo.Point, error) {
	if raw := c.Query("point"); raw != "" {
		p, err := geo.ParsePoint(raw)
		if err != nil {
			return nil, err
		}
		return &p, nil
	}
	if c.Query("lat") != "" || c.Query("lng") != "" {
		p, err := geo.ParsePoint(c.Query("lat") + "," + c.Query("lng"))
		if err != nil {
			return nil, err
		}
		return &p, nil
	}
	if s.deps.Locations != nil {
		if pos, ok := s.deps.Locations.Current(); ok {
			p := pos.Point()
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Server) handleNearby(c *fiber.Ctx) error {
	if s.deps.Nearby == nil {
		return unavailable(c, "threat aggregator")
	}
	user, err := s.userPoint(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	markers := []threat.Marker{}
	if user != nil {
		ctx, cancel := timeoutCtx(c)
		defer cancel()
		if m := s.deps.Nearby.FetchNearbyData(ctx, *user); m != nil {
			markers = m
		}
	}
	return c.JSON(fiber.Map{"location": user, "markers": markers})
}

func (s *Server) handleRealTime(c *fiber.Ctx) error {
	if s.deps.RealTime == nil {
		return unavailable(c, "threat feed")
	}
	user, err := s.userPoint(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := timeoutCtx(c)
	defer cancel()
	markers := s.deps.RealTime.FetchRealTimeThreats(ctx, user)
	if markers == nil {
		markers = []threat.Marker{}
	}
	return c.JSON(fiber.Map{"location": user, "markers": markers})
}

func (s *Server) handleMap(c *fiber.Ctx) error {
	markers := []threat.Marker{}
	if s.deps.Map != nil {
		if m := s.deps.Map(); m != nil {
			markers = m
		}
	}
	return c.JSON(fiber.Map{"markers": markers, "count": len(markers)})
}

type triggerRequest struct {
	Source string `json:"source"`
}

func (s *Server) handleTrigger(c *fiber.Ctx) error {
	if s.deps.Emergency == nil {
		return unavailable(c, "dispatcher")
	}

	var req triggerRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
	}
	source := events.SourceManual
	if req.Source != "" {
		source = events.Source(strings.ToLower(req.Source))
	}

	ctx, cancel := timeoutCtx(c)
	defer cancel()
	inc, err := s.deps.Emergency.HandleManualTrigger(ctx, source)
	if err != nil {
		return emergencyError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inc)
}

func (s *Server) handleDetection(c *fiber.Ctx) error {
	if s.deps.Emergency == nil {
		return unavailable(c, "dispatcher")
	}

	var det emergency.Detection
	if err := c.BodyParser(&det); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if det.Source == "" {
		det.Source = events.SourceAI
	}

	ctx, cancel := timeoutCtx(c)
	defer cancel()
	resp, err := s.deps.Emergency.HandleThreatDetection(ctx, det)
	if err != nil {
		return emergencyError(c, err)
	}
	return c.JSON(resp)
}

func (s *Server) handleIncidents(c *fiber.Ctx) error {
	if s.deps.Emergency == nil {
		return unavailable(c, "dispatcher")
	}

	limit := defaultIncidentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fail(c, fiber.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxIncidentLimit)
	}

	ctx, cancel := timeoutCtx(c)
	defer cancel()
	incidents, err := s.deps.Emergency.Incidents(ctx, limit)
	if err != nil {
		s.logger.Error("list incidents", "error", err)
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	if incidents == nil {
		incidents = []emergency.Incident{}
	}
	return c.JSON(fiber.Map{"incidents": incidents, "count": len(incidents)})
}

type autoResponseRequest struct {
	Level string `json:"level"`
}

func (s *Server) handleGetAutoResponse(c *fiber.Ctx) error {
	if s.deps.Emergency == nil {
		return unavailable(c, "dispatcher")
	}
	return c.JSON(fiber.Map{"level": s.deps.Emergency.AutoResponseLevel()})
}

func (s *Server) handlePutAutoResponse(c *fiber.Ctx) error {
	if s.deps.Emergency == nil {
		return unavailable(c, "dispatcher")
	}

	var req autoResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	level, err := emergency.ParseAutoResponseLevel(req.Level)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if err := s.deps.Emergency.SetAutoResponseLevel(level); err != nil {
		return emergencyError(c, err)
	}

	s.PublishState()
	return c.JSON(fiber.Map{"level": level})
}

type voiceRequest struct {
	Transcript string `json:"transcript"`
}

func (s *Server) handleVoice(c *fiber.Ctx) error {
	if s.deps.Voice == nil {
		return unavailable(c, "voice")
	}

	var req voiceRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := timeoutCtx(c)
	defer cancel()
	reply, err := s.deps.Voice.Process(ctx, req.Transcript)
	switch {
	case errors.Is(err, voice.ErrEmptyTranscript):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, voice.ErrNoInterpreter):
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.logger.Warn("voice command failed", "error", err)
		return fail(c, fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(reply)
}

func (s *Server) handleFrame(c *fiber.Ctx) error {
	if s.deps.Frames == nil {
		return unavailable(c, "frame buffer")
	}
	body := c.Body()
	if len(body) == 0 {
		return fail(c, fiber.StatusBadRequest, "empty frame")
	}
	s.deps.Frames.Put(body)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted", "bytes": len(body)})
}

func emergencyError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, emergency.ErrInvalidDetection), errors.Is(err, emergency.ErrInvalidLevel):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, emergency.ErrDispatcherClosed):
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	default:
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
}
