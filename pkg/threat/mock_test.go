package threat

import (
	"context"

	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/geocode"
)

type mockWeather struct {
	GetWeatherThreatsFunc func(ctx context.Context, locations []string) ([]Marker, error)
}

func (m *mockWeather) GetWeatherThreats(ctx context.Context, locations []string) ([]Marker, error) {
	if m.GetWeatherThreatsFunc != nil {
		return m.GetWeatherThreatsFunc(ctx, locations)
	}
	return nil, nil
}

type mockGeocoder struct {
	calls       int
	ReverseFunc func(ctx context.Context, lat, lng float64) (*geocode.Address, error)
}

func (m *mockGeocoder) Reverse(ctx context.Context, lat, lng float64) (*geocode.Address, error) {
	m.calls++
	if m.ReverseFunc != nil {
		return m.ReverseFunc(ctx, lat, lng)
	}
	return nil, nil
}

type mockFeed struct {
	GetGlobalThreatMarkersFunc func(ctx context.Context, loc *geo.Point) ([]Marker, error)
}

func (m *mockFeed) GetGlobalThreatMarkers(ctx context.Context, loc *geo.Point) ([]Marker, error) {
	if m.GetGlobalThreatMarkersFunc != nil {
		return m.GetGlobalThreatMarkersFunc(ctx, loc)
	}
	return nil, nil
}
