// Package threat builds the map markers shown around the user: nearby
// hazards and ambient context, plus locally relevant real-time threats.
package threat

import (
	"github.com/google/uuid"

	"github.com/teslashibe/go-guardian/pkg/geo"
)

// Level is the severity of a marker.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Type is the category of a marker.
type Type string

const (
	TypeCyber         Type = "cyber"
	TypePhysical      Type = "physical"
	TypeEnvironmental Type = "environmental"
)

// Marker is one point on the threat map. Markers are values; each refresh
// produces a new slice.
type Marker struct {
	ID       string     `json:"id"`
	Position [2]float64 `json:"position"` // [lat, lng]
	Level    Level      `json:"level"`
	Title    string     `json:"title"`
	Details  string     `json:"details"`
	Type     Type       `json:"type"`
}

// NewMarker creates a marker with a fresh ID.
func NewMarker(at geo.Point, level Level, typ Type, title, details string) Marker {
	return Marker{
		ID:       uuid.NewString(),
		Position: at.Pair(),
		Level:    level,
		Title:    title,
		Details:  details,
		Type:     typ,
	}
}

// Point returns the marker coordinate.
func (m Marker) Point() geo.Point {
	return geo.Point{Lat: m.Position[0], Lng: m.Position[1]}
}

// Dedupe returns markers with duplicate IDs removed, keeping the first
// occurrence and the original order.
func Dedupe(markers []Marker) []Marker {
	seen := make(map[string]struct{}, len(markers))
	out := make([]Marker, 0, len(markers))
	for _, m := range markers {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}
