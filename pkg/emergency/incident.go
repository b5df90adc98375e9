package emergency

import (
	"time"

	"github.com/teslashibe/go-guardian/pkg/events"
	"github.com/teslashibe/go-guardian/pkg/geo"
)

// Detection is the input of HandleThreatDetection.
type Detection struct {
	Subtype     string        `json:"subtype"`
	Confidence  float64       `json:"confidence"`
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Location    *geo.Point    `json:"location,omitempty"`
	Source      events.Source `json:"source,omitempty"`
}

// DetectionAlert is built from a detection and handed to responders.
type DetectionAlert struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Level       int        `json:"level"` // 1..3
	Timestamp   time.Time  `json:"timestamp"`
	Location    *geo.Point `json:"location,omitempty"`
	Confidence  float64    `json:"confidence"`
	Verified    bool       `json:"verified"` // reported by a person, not a model
}

// IncidentKind tells manual triggers and detections apart.
type IncidentKind string

const (
	IncidentManual    IncidentKind = "manual"
	IncidentDetection IncidentKind = "detection"
)

// Incident is the persisted record of one dispatch.
type Incident struct {
	ID          string        `json:"id" dynamodbav:"id"`
	Kind        IncidentKind  `json:"kind" dynamodbav:"kind"`
	Source      events.Source `json:"source" dynamodbav:"source"`
	Title       string        `json:"title" dynamodbav:"title"`
	Description string        `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Category    Category      `json:"category,omitempty" dynamodbav:"category,omitempty"`
	Severity    Severity      `json:"severity,omitempty" dynamodbav:"severity,omitempty"`
	Confidence  float64       `json:"confidence,omitempty" dynamodbav:"confidence,omitempty"`
	Action      Action        `json:"action,omitempty" dynamodbav:"action,omitempty"`
	Escalated   bool          `json:"escalated" dynamodbav:"escalated"`
	Lat         float64       `json:"lat,omitempty" dynamodbav:"lat,omitempty"`
	Lng         float64       `json:"lng,omitempty" dynamodbav:"lng,omitempty"`
	HasLocation bool          `json:"has_location" dynamodbav:"has_location"`
	CreatedAt   time.Time     `json:"created_at" dynamodbav:"created_at"`
}

// Location returns the incident coordinate, if any.
func (i Incident) Location() *geo.Point {
	if !i.HasLocation {
		return nil
	}
	return &geo.Point{Lat: i.Lat, Lng: i.Lng}
}

func (i *Incident) setLocation(p *geo.Point) {
	if p == nil {
		return
	}
	i.Lat, i.Lng, i.HasLocation = p.Lat, p.Lng, true
}
