// Package feed fetches global threat markers from a remote threat feed.
package feed

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

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/teslashibe/go-guardian/internal/httpc"
	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/threat"
)

// ErrBadStatus is wrapped when the feed answers with a non-200 status.
var ErrBadStatus = errors.New("feed: unexpected status")

// Config configures the feed client.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// OAuth2 client credentials. Leave ClientID empty for an open feed.
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string

	Logger *slog.Logger
}

// DefaultConfig returns a config with timeouts set and no endpoint.
func DefaultConfig() Config {
	return Config{
		Timeout: httpc.DefaultTimeout,
		Logger:  slog.Default(),
	}
}

// Option configures a Client.
type Option func(*Config)

// WithBaseURL sets the feed root.
func WithBaseURL(u string) Option {
	return func(c *Config) { c.BaseURL = u }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithClientCredentials enables the OAuth2 client credentials grant.
func WithClientCredentials(clientID, clientSecret, tokenURL string, scopes ...string) Option {
	return func(c *Config) {
		c.ClientID = clientID
		c.ClientSecret = clientSecret
		c.TokenURL = tokenURL
		c.Scopes = scopes
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Client reads the threat feed.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a feed client. With client credentials configured the
// returned client fetches and refreshes tokens on its own.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("feed: base URL required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	base := httpc.WithUserAgent(httpc.NewClient(cfg.Timeout), httpc.DefaultUserAgent)
	hc := base
	if cfg.ClientID != "" {
		if cfg.TokenURL == "" {
			return nil, errors.New("feed: token URL required with client credentials")
		}
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		hc = cc.Client(ctx)
		hc.Timeout = cfg.Timeout
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    hc,
		logger:  cfg.Logger.With("component", "feed"),
	}, nil
}

type threatsResponse struct {
	Threats []threat.Marker `json:"threats"`
}

// GetGlobalThreatMarkers returns every marker in the feed. loc, when set, is
// passed along as a hint; filtering by distance is the caller's job.
func (c *Client) GetGlobalThreatMarkers(ctx context.Context, loc *geo.Point) ([]threat.Marker, error) {
	u := c.baseURL + "/v1/threats"
	if loc != nil {
		q := url.Values{}
		q.Set("lat", strconv.FormatFloat(loc.Lat, 'f', 6, 64))
		q.Set("lng", strconv.FormatFloat(loc.Lng, 'f', 6, 64))
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w %d: %s", ErrBadStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out threatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("feed: decode response: %w", err)
	}

	c.logger.Debug("feed fetched", "markers", len(out.Threats), "latency", time.Since(start))
	return out.Threats, nil
}
