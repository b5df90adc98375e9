package threat

import (
	"context"

	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/geocode"
)

// WeatherService returns hazard markers for "lat,lng" location strings.
type WeatherService interface {
	GetWeatherThreats(ctx context.Context, locations []string) ([]Marker, error)
}

// Geocoder resolves a coordinate to its locality. A nil address with a nil
// error means nothing is known there.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (*geocode.Address, error)
}

// Feed returns the global threat markers.
type Feed interface {
	GetGlobalThreatMarkers(ctx context.Context, loc *geo.Point) ([]Marker, error)
}
