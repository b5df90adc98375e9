package threat

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-guardian/pkg/geo"
)

// RealTimeFilter reads the global feed and hides high severity markers that
// are not near the user.
type RealTimeFilter struct {
	feed   Feed
	radius float64
	logger *slog.Logger
}

// NewRealTimeFilter creates a filter over feed. radiusDeg <= 0 uses the
// default radius.
func NewRealTimeFilter(feed Feed, radiusDeg float64, logger *slog.Logger) *RealTimeFilter {
	if radiusDeg <= 0 {
		radiusDeg = DefaultConfig().HighSeverityRadiusDeg
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RealTimeFilter{
		feed:   feed,
		radius: radiusDeg,
		logger: logger.With("component", "threat.filter"),
	}
}

// FetchRealTimeThreats returns the feed markers the user should see.
// Non-high markers always pass. High markers pass only within the radius of
// user, measured in raw degrees; with no user location none pass. Feed
// errors yield an empty list.
func (f *RealTimeFilter) FetchRealTimeThreats(ctx context.Context, user *geo.Point) []Marker {
	if f.feed == nil {
		return []Marker{}
	}
	markers, err := f.feed.GetGlobalThreatMarkers(ctx, user)
	if err != nil {
		f.logger.Warn("threat feed unavailable", "error", err)
		return []Marker{}
	}

	out := make([]Marker, 0, len(markers))
	hidden := 0
	for _, m := range markers {
		if f.Allow(m, user) {
			out = append(out, m)
		} else {
			hidden++
		}
	}
	if hidden > 0 {
		f.logger.Debug("distant high severity markers hidden", "count", hidden)
	}
	return Dedupe(out)
}

// Allow applies the proximity policy to a single marker.
func (f *RealTimeFilter) Allow(m Marker, user *geo.Point) bool {
	if m.Level != LevelHigh {
		return true
	}
	if user == nil {
		return false
	}
	return geo.DegreeDistance(*user, m.Point()) < f.radius
}
