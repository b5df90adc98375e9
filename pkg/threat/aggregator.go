package threat

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/geocode"
)

type ambientTemplate struct {
	title   string
	details string
	typ     Type
}

// ambient markers are context, never alarms.
var ambientTemplates = []ambientTemplate{
	{"Community Watch", "A neighborhood watch patrol is active in this area.", TypePhysical},
	{"Open Wi-Fi Networks", "Several open wireless networks nearby. Avoid sensitive logins without a VPN.", TypeCyber},
	{"Street Lighting", "Residents reported dim street lighting on nearby blocks.", TypePhysical},
	{"Air Quality", "Air quality is acceptable; sensitive groups may notice pollen.", TypeEnvironmental},
	{"Road Work", "Lane closures nearby may slow foot and car traffic.", TypePhysical},
	{"Card Skimmer Check", "Inspect card readers at nearby fuel pumps and ATMs.", TypeCyber},
}

// Aggregator builds the nearby marker set: weather hazards, ambient
// context and an occasional area marker.
type Aggregator struct {
	weather  WeatherService
	geocoder Geocoder
	cfg      Config
	logger   *slog.Logger

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithConfig replaces the default tuning.
func WithConfig(cfg Config) AggregatorOption {
	return func(a *Aggregator) { a.cfg = cfg }
}

// WithRand injects the random source.
func WithRand(r *rand.Rand) AggregatorOption {
	return func(a *Aggregator) { a.rng = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an aggregator. weather and geocoder may be nil; the
// matching source then contributes nothing.
func NewAggregator(weather WeatherService, geocoder Geocoder, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		weather:  weather,
		geocoder: geocoder,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	a.logger = a.logger.With("component", "threat.aggregator")
	return a
}

// FetchNearbyData returns the markers around user. It never fails: each
// source that errors contributes zero markers.
func (a *Aggregator) FetchNearbyData(ctx context.Context, user geo.Point) []Marker {
	var out []Marker
	out = append(out, a.weatherMarkers(ctx, user)...)
	out = append(out, a.ambientMarkers(user)...)
	out = append(out, a.areaMarkers(ctx, user)...)
	return Dedupe(out)
}

func (a *Aggregator) weatherMarkers(ctx context.Context, user geo.Point) []Marker {
	if a.weather == nil {
		return nil
	}
	markers, err := a.weather.GetWeatherThreats(ctx, []string{user.String()})
	if err != nil {
		a.logger.Warn("weather threats unavailable", "error", err)
		return nil
	}

	out := make([]Marker, 0, len(markers))
	for _, m := range markers {
		// Copy, then move next to the user pin.
		m.Position = a.scatter(user, a.cfg.WeatherJitterMeters).Pair()
		out = append(out, m)
	}
	return out
}

func (a *Aggregator) ambientMarkers(user geo.Point) []Marker {
	if a.cfg.AmbientMax <= 0 || len(ambientTemplates) == 0 {
		return nil
	}

	a.mu.Lock()
	n := a.rng.Intn(a.cfg.AmbientMax + 1)
	picks := a.rng.Perm(len(ambientTemplates))
	a.mu.Unlock()

	if n > len(picks) {
		n = len(picks)
	}
	out := make([]Marker, 0, n)
	for _, i := range picks[:n] {
		t := ambientTemplates[i]
		at := a.scatter(user, a.cfg.AmbientRadiusMeters)
		out = append(out, NewMarker(at, LevelLow, t.typ, t.title, t.details))
	}
	return out
}

func (a *Aggregator) areaMarkers(ctx context.Context, user geo.Point) []Marker {
	if a.geocoder == nil {
		return nil
	}

	a.mu.Lock()
	roll := a.rng.Float64()
	a.mu.Unlock()
	if roll >= a.cfg.AreaNoticeProbability {
		return nil
	}

	addr, err := a.geocoder.Reverse(ctx, user.Lat, user.Lng)
	if err != nil {
		a.logger.Warn("reverse geocode failed", "error", err)
		return nil
	}
	if addr == nil || addr.Label() == "" {
		return nil
	}

	at := a.scatter(user, a.cfg.AmbientRadiusMeters)
	return []Marker{NewMarker(at, LevelLow, TypePhysical,
		"Area Update: "+addr.Label(), areaDetails(addr))}
}

func areaDetails(addr *geocode.Address) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{addr.City, addr.County, addr.State} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	switch len(parts) {
	case 1:
		return fmt.Sprintf("No active safety reports for %s.", parts[0])
	case 2:
		return fmt.Sprintf("No active safety reports for %s, %s.", parts[0], parts[1])
	default:
		return fmt.Sprintf("No active safety reports for %s, %s, %s.", parts[0], parts[1], parts[2])
	}
}

// scatter returns a uniformly distributed point within radius meters.
func (a *Aggregator) scatter(center geo.Point, radius float64) geo.Point {
	if radius <= 0 {
		return center
	}
	a.mu.Lock()
	d := radius * math.Sqrt(a.rng.Float64())
	bearing := 2 * math.Pi * a.rng.Float64()
	a.mu.Unlock()
	return geo.Polar(center, d, bearing)
}
