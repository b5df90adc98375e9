package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/teslashibe/go-guardian/pkg/geo"
	"github.com/teslashibe/go-guardian/pkg/threat"
)

const sampleFeed = `{"threats":[
  {"id":"a","position":[40.71,-74.00],"level":"high","title":"Fire","details":"Warehouse fire","type":"physical"},
  {"id":"b","position":[10,10],"level":"low","title":"Phishing wave","details":"","type":"cyber"}
]}`

func TestGetGlobalThreatMarkers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/threats" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("lat") != "40.712800" {
			t.Errorf("lat = %s", r.URL.Query().Get("lat"))
		}
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	c, err := NewClient(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	markers, err := c.GetGlobalThreatMarkers(context.Background(), &geo.Point{Lat: 40.7128, Lng: -74.0060})
	if err != nil {
		t.Fatalf("GetGlobalThreatMarkers: %v", err)
	}
	if len(markers) != 2 {
		t.Fatalf("markers = %d, want 2", len(markers))
	}
	if markers[0].Level != threat.LevelHigh || markers[0].Position != [2]float64{40.71, -74.00} {
		t.Errorf("first marker = %+v", markers[0])
	}
	if markers[1].Type != threat.TypeCyber {
		t.Errorf("second marker type = %s", markers[1].Type)
	}
}

func TestGetGlobalThreatMarkersNoLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("query = %q, want none", r.URL.RawQuery)
		}
		w.Write([]byte(`{"threats":[]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(WithBaseURL(srv.URL))
	markers, err := c.GetGlobalThreatMarkers(context.Background(), nil)
	if err != nil || len(markers) != 0 {
		t.Errorf("markers = %v err = %v", markers, err)
	}
}

func TestGetGlobalThreatMarkersBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := NewClient(WithBaseURL(srv.URL))
	if _, err := c.GetGlobalThreatMarkers(context.Background(), nil); !errors.Is(err, ErrBadStatus) {
		t.Errorf("err = %v, want ErrBadStatus", err)
	}
}

func TestClientCredentials(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %s", r.Form.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok123","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/threats", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok123" {
			t.Errorf("Authorization = %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(sampleFeed))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewClient(
		WithBaseURL(srv.URL),
		WithClientCredentials("id", "secret", srv.URL+"/oauth/token", "threats.read"),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.GetGlobalThreatMarkers(context.Background(), nil); err != nil {
			t.Fatalf("GetGlobalThreatMarkers: %v", err)
		}
	}
	if n := tokenCalls.Load(); n != 1 {
		t.Errorf("token requests = %d, want 1 (cached)", n)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("expected error without base URL")
	}
	if _, err := NewClient(WithBaseURL("http://x"), WithClientCredentials("id", "s", "")); err == nil {
		t.Error("expected error without token URL")
	}
}
