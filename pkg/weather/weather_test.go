package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/teslashibe/go-guardian/pkg/threat"
)

const sampleAlerts = `{
  "type": "FeatureCollection",
  "features": [
    {
      "id": "https://api.weather.gov/alerts/urn:oid:1",
      "properties": {
        "id": "urn:oid:1",
        "event": "Tornado Warning",
        "headline": "Tornado Warning issued for Kings County",
        "description": "A tornado was observed.",
        "severity": "Extreme",
        "areaDesc": "Kings, NY",
        "onset": "2024-05-01T10:00:00-04:00",
        "expires": "2024-05-01T11:00:00-04:00"
      }
    },
    {
      "id": "https://api.weather.gov/alerts/urn:oid:2",
      "properties": {
        "event": "Wind Advisory",
        "headline": "",
        "description": "Gusty winds.",
        "severity": "Moderate",
        "areaDesc": "Kings, NY"
      }
    }
  ]
}`

func newTestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/alerts/active" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("point") == "" {
			t.Error("missing point")
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLevelFor(t *testing.T) {
	tests := map[string]threat.Level{
		"Extreme":  threat.LevelHigh,
		"Severe":   threat.LevelHigh,
		"Moderate": threat.LevelMedium,
		"Minor":    threat.LevelLow,
		"Unknown":  threat.LevelLow,
		"":         threat.LevelLow,
	}
	for in, want := range tests {
		if got := LevelFor(in); got != want {
			t.Errorf("LevelFor(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestGetWeatherThreats(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, sampleAlerts)
	c := NewClient(WithBaseURL(srv.URL))

	markers, err := c.GetWeatherThreats(context.Background(), []string{"40.6782,-73.9442"})
	if err != nil {
		t.Fatalf("GetWeatherThreats: %v", err)
	}
	if len(markers) != 2 {
		t.Fatalf("markers = %d, want 2", len(markers))
	}
	if markers[0].Level != threat.LevelHigh || markers[0].Title != "Tornado Warning" {
		t.Errorf("first marker = %+v", markers[0])
	}
	if markers[1].Level != threat.LevelMedium || markers[1].Details != "Gusty winds." {
		t.Errorf("second marker = %+v", markers[1])
	}
	for _, m := range markers {
		if m.Type != threat.TypeEnvironmental {
			t.Errorf("type = %s, want environmental", m.Type)
		}
		if m.Position != [2]float64{40.6782, -73.9442} {
			t.Errorf("position = %v", m.Position)
		}
	}
	if markers[0].ID == markers[1].ID {
		t.Error("marker IDs not unique")
	}
}

func TestGetWeatherThreatsErrors(t *testing.T) {
	srv := newTestServer(t, http.StatusNotFound, `{"title":"Not Found","detail":"point outside area"}`)
	c := NewClient(WithBaseURL(srv.URL))

	_, err := c.GetWeatherThreats(context.Background(), []string{"51.5,-0.12"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsNotFound() {
		t.Errorf("err = %v, want 404 APIError", err)
	}

	_, err = c.GetWeatherThreats(context.Background(), nil)
	if !errors.Is(err, ErrNoLocations) {
		t.Errorf("err = %v, want ErrNoLocations", err)
	}
}

func TestTransformWeatherAlertsToDisasterAlerts(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, sampleAlerts)
	c := NewClient(WithBaseURL(srv.URL))

	alerts, err := c.TransformWeatherAlertsToDisasterAlerts(context.Background(), "40.6782,-73.9442")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(alerts))
	}
	if alerts[0].ID != "urn:oid:1" || alerts[0].Title != "Tornado Warning issued for Kings County" {
		t.Errorf("first alert = %+v", alerts[0])
	}
	if alerts[0].Onset.IsZero() {
		t.Error("onset not parsed")
	}
	if alerts[1].ID != "https://api.weather.gov/alerts/urn:oid:2" || alerts[1].Title != "Wind Advisory" {
		t.Errorf("second alert = %+v", alerts[1])
	}

	if _, err := c.TransformWeatherAlertsToDisasterAlerts(context.Background(), "nowhere"); err == nil {
		t.Error("expected error for invalid location")
	}
}
