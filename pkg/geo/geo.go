// Package geo holds coordinate types and the cheap planar distance helpers
// used by the location and threat pipelines.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MetersPerDegree is the equirectangular scale used throughout go-guardian.
const MetersPerDegree = 111000.0

// ContinentalCentroid is the fallback position used when no real fix can be
// obtained (geographic center of the contiguous United States).
var ContinentalCentroid = Point{Lat: 39.8283, Lng: -98.5795}

// Point is a WGS 84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String formats the point as "lat,lng", the form external services accept.
func (p Point) String() string {
	return fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lng)
}

// Pair returns the point as a [lat, lng] array for map markers.
func (p Point) Pair() [2]float64 {
	return [2]float64{p.Lat, p.Lng}
}

// Position is a location fix from a platform geolocation source.
type Position struct {
	Lat       float64   `json:"latitude"`
	Lng       float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"` // meters
	Timestamp time.Time `json:"timestamp"`

	// Default marks the synthesized fallback position.
	Default bool `json:"default,omitempty"`
}

// Point returns the coordinate of the fix.
func (p Position) Point() Point {
	return Point{Lat: p.Lat, Lng: p.Lng}
}

// PlanarMeters approximates the distance between two points in meters with an
// equirectangular projection scaled at the latitude of b.
// Good to well under a meter at the displacements the debouncer cares about.
func PlanarMeters(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * MetersPerDegree
	dLng := (b.Lng - a.Lng) * MetersPerDegree * math.Cos(b.Lat*math.Pi/180)
	return math.Hypot(dLat, dLng)
}

// DegreeDistance is the Euclidean norm of the raw degree differences.
// It is not a geodesic distance: a fixed threshold shrinks in ground
// distance as latitude grows.
func DegreeDistance(a, b Point) float64 {
	return math.Hypot(b.Lat-a.Lat, b.Lng-a.Lng)
}

// Offset moves p by the given meters north and east.
func Offset(p Point, north, east float64) Point {
	cos := math.Cos(p.Lat * math.Pi / 180)
	if math.Abs(cos) < 1e-9 {
		cos = 1e-9
	}
	return Point{
		Lat: p.Lat + north/MetersPerDegree,
		Lng: p.Lng + east/(MetersPerDegree*cos),
	}
}

// Polar moves p by distance meters along bearing radians (0 = north).
func Polar(p Point, distance, bearing float64) Point {
	return Offset(p, distance*math.Cos(bearing), distance*math.Sin(bearing))
}

// Valid reports whether p is inside the WGS 84 range.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// ParsePoint parses a "lat,lng" string.
func ParsePoint(s string) (Point, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return Point{}, fmt.Errorf("geo: invalid point %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return Point{}, fmt.Errorf("geo: invalid latitude in %q: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return Point{}, fmt.Errorf("geo: invalid longitude in %q: %w", s, err)
	}
	p := Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return Point{}, fmt.Errorf("geo: point %q out of range", s)
	}
	return p, nil
}
