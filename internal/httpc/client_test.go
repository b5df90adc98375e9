package httpc

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClientTimeout(t *testing.T) {
	c := NewClient(3 * time.Second)
	if c.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", c.Timeout)
	}
	if c.Transport == nil {
		t.Error("Transport should be set")
	}
}

func TestWithUserAgent(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	c := WithUserAgent(NewClient(time.Second), "guardian-test")
	resp, err := c.Get(server.URL)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	resp.Body.Close()

	if got != "guardian-test" {
		t.Errorf("User-Agent = %q, want guardian-test", got)
	}
}

func TestWithUserAgentKeepsExplicitHeader(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	c := WithUserAgent(NewClient(time.Second), "guardian-test")
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set("User-Agent", "custom")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	resp.Body.Close()

	if got != "custom" {
		t.Errorf("User-Agent = %q, want custom", got)
	}
}
