// Package geocode resolves coordinates to a human readable locality using a
// Nominatim compatible reverse geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-guardian/internal/httpc"
)

// DefaultBaseURL is the public OpenStreetMap Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// ErrBadStatus is wrapped when the service answers with a non-200 status.
var ErrBadStatus = errors.New("geocode: unexpected status")

// Address is the locality of a coordinate. Any field may be empty.
type Address struct {
	State  string `json:"state,omitempty"`
	County string `json:"county,omitempty"`
	City   string `json:"city,omitempty"`
}

// Label returns the most specific non-empty name.
func (a Address) Label() string {
	switch {
	case a.City != "":
		return a.City
	case a.County != "":
		return a.County
	default:
		return a.State
	}
}

// Config configures the client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Language  string
	Logger    *slog.Logger
}

// DefaultConfig returns defaults for the public Nominatim instance.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Timeout:   10 * time.Second,
		UserAgent: httpc.DefaultUserAgent,
		Language:  "en",
		Logger:    slog.Default(),
	}
}

// Option configures a Client.
type Option func(*Config)

// WithBaseURL points the client at another instance.
func WithBaseURL(u string) Option {
	return func(c *Config) { c.BaseURL = u }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Client calls the reverse geocoding endpoint.
type Client struct {
	baseURL  string
	language string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a reverse geocoding client.
func NewClient(opts ...Option) *Client {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		language: cfg.Language,
		http:     httpc.WithUserAgent(httpc.NewClient(cfg.Timeout), cfg.UserAgent),
		logger:   cfg.Logger.With("component", "geocode"),
	}
}

type reverseResponse struct {
	Error   string `json:"error"`
	Address struct {
		State   string `json:"state"`
		County  string `json:"county"`
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
	} `json:"address"`
}

// Reverse looks up the locality of lat,lng. It returns nil, nil when the
// service knows no address there.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) (*Address, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	q.Set("format", "jsonv2")
	q.Set("zoom", "10")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w %d: %s", ErrBadStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("geocode: decode response: %w", err)
	}
	if out.Error != "" {
		c.logger.Debug("no address", "lat", lat, "lng", lng, "reason", out.Error)
		return nil, nil
	}

	addr := Address{
		State:  out.Address.State,
		County: out.Address.County,
		City:   firstNonEmpty(out.Address.City, out.Address.Town, out.Address.Village),
	}
	if addr == (Address{}) {
		return nil, nil
	}
	return &addr, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
