// Package weather reads active weather alerts from the National Weather
// Service API and turns them into threat markers and disaster alerts.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-guardian/internal/httpc"
	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/threat"
)

// DefaultBaseURL is the NWS API root.
const DefaultBaseURL = "https://api.weather.gov"

// Alert is one active alert as published by NWS.
type Alert struct {
	ID          string    `json:"id"`
	Event       string    `json:"event"`
	Headline    string    `json:"headline"`
	Description string    `json:"description"`
	Instruction string    `json:"instruction"`
	Severity    string    `json:"severity"` // Extreme, Severe, Moderate, Minor, Unknown
	Urgency     string    `json:"urgency"`
	Certainty   string    `json:"certainty"`
	AreaDesc    string    `json:"areaDesc"`
	Onset       time.Time `json:"onset"`
	Expires     time.Time `json:"expires"`
}

// DisasterAlert is the app facing form of an alert.
type DisasterAlert struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Instruction string       `json:"instruction,omitempty"`
	Level       threat.Level `json:"level"`
	Area        string       `json:"area"`
	Location    geo.Point    `json:"location"`
	Onset       time.Time    `json:"onset,omitempty"`
	Expires     time.Time    `json:"expires,omitempty"`
}

// LevelFor maps an NWS severity to a marker level.
func LevelFor(severity string) threat.Level {
	switch strings.ToLower(severity) {
	case "extreme", "severe":
		return threat.LevelHigh
	case "moderate":
		return threat.LevelMedium
	default:
		return threat.LevelLow
	}
}

// Config configures the client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Logger    *slog.Logger
}

// DefaultConfig returns defaults for api.weather.gov.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Timeout:   httpc.DefaultTimeout,
		UserAgent: httpc.DefaultUserAgent,
		Logger:    slog.Default(),
	}
}

// Option configures a Client.
type Option func(*Config)

// WithBaseURL sets the API root.
func WithBaseURL(u string) Option {
	return func(c *Config) { c.BaseURL = u }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithUserAgent sets the User-Agent; NWS requires one that identifies the
// application.
func WithUserAgent(ua string) Option {
	return func(c *Config) { c.UserAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Client talks to the NWS alerts API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client.
func NewClient(opts ...Option) *Client {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    httpc.WithUserAgent(httpc.NewClient(cfg.Timeout), cfg.UserAgent),
		logger:  cfg.Logger.With("component", "weather"),
	}
}

type alertsResponse struct {
	Features []struct {
		ID         string `json:"id"`
		Properties Alert  `json:"properties"`
	} `json:"features"`
}

type problemResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// GetAlerts returns the active alerts covering p.
func (c *Client) GetAlerts(ctx context.Context, p geo.Point) ([]Alert, error) {
	u := fmt.Sprintf("%s/alerts/active?point=%s", c.baseURL, p.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("weather: create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var prob problemResponse
		_ = json.NewDecoder(resp.Body).Decode(&prob)
		return nil, &APIError{StatusCode: resp.StatusCode, Title: prob.Title, Detail: prob.Detail}
	}

	var out alertsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("weather: decode response: %w", err)
	}

	alerts := make([]Alert, 0, len(out.Features))
	for _, f := range out.Features {
		a := f.Properties
		if a.ID == "" {
			a.ID = f.ID
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// GetWeatherThreats returns one marker per active alert for each "lat,lng"
// location string. Markers sit on the location they were fetched for.
// Failing locations are skipped; an error is returned only when every
// location failed.
func (c *Client) GetWeatherThreats(ctx context.Context, locations []string) ([]threat.Marker, error) {
	var markers []threat.Marker
	var errs []error
	ok := 0

	for _, loc := range locations {
		p, err := geo.ParsePoint(loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		alerts, err := c.GetAlerts(ctx, p)
		if err != nil {
			c.logger.Warn("alerts fetch failed", "location", loc, "error", err)
			errs = append(errs, err)
			continue
		}
		ok++
		for _, a := range alerts {
			markers = append(markers, threat.NewMarker(p, LevelFor(a.Severity), threat.TypeEnvironmental,
				a.Event, firstNonEmpty(a.Headline, a.Description)))
		}
	}

	if ok == 0 {
		if len(errs) == 0 {
			return nil, ErrNoLocations
		}
		return nil, errors.Join(errs...)
	}
	return markers, nil
}

// TransformWeatherAlertsToDisasterAlerts fetches the alerts for a "lat,lng"
// location and converts them.
func (c *Client) TransformWeatherAlertsToDisasterAlerts(ctx context.Context, location string) ([]DisasterAlert, error) {
	p, err := geo.ParsePoint(location)
	if err != nil {
		return nil, err
	}
	alerts, err := c.GetAlerts(ctx, p)
	if err != nil {
		return nil, err
	}

	out := make([]DisasterAlert, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, DisasterAlert{
			ID:          a.ID,
			Title:       firstNonEmpty(a.Headline, a.Event),
			Description: a.Description,
			Instruction: a.Instruction,
			Level:       LevelFor(a.Severity),
			Area:        a.AreaDesc,
			Location:    p,
			Onset:       a.Onset,
			Expires:     a.Expires,
		})
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
