package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seolyn/vigil/internal/snapshot"
	"github.com/seolyn/vigil/internal/supervisor"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeSource struct {
	doc       snapshot.Document
	published bool
	state     supervisor.State
	lastTick  time.Time
}

func (f *fakeSource) Latest() (snapshot.Document, bool) { return f.doc, f.published }
func (f *fakeSource) State() supervisor.State           { return f.state }
func (f *fakeSource) LastTick() time.Time               { return f.lastTick }

func healthySource() *fakeSource {
	return &fakeSource{
		doc: snapshot.Document{
			Timestamp: time.Now().UTC(),
			Services:  map[string]string{"web-server": "running"},
			Resources: snapshot.Resources{MemoryPercent: 30, DiskPercent: 40},
		},
		published: true,
		state:     supervisor.Running,
		lastTick:  time.Now(),
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus_ServesLatestSnapshot(t *testing.T) {
	h := NewRouter(healthySource(), "", time.Minute).Handler()
	rec := get(t, h, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var doc snapshot.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Services["web-server"] != "running" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestStatus_BeforeFirstPublish(t *testing.T) {
	src := healthySource()
	src.published = false
	h := NewRouter(src, "", time.Minute).Handler()
	rec := get(t, h, "/status")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before first publish, got %d", rec.Code)
	}
}

func TestHealthz_Healthy(t *testing.T) {
	h := NewRouter(healthySource(), "", time.Minute).Handler()
	rec := get(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		State   string `json:"state"`
		Healthy bool   `json:"healthy"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.State != "running" || !resp.Healthy {
		t.Fatalf("unexpected health: %+v", resp)
	}
}

func TestHealthz_StaleTickUnhealthy(t *testing.T) {
	src := healthySource()
	src.lastTick = time.Now().Add(-time.Hour)
	h := NewRouter(src, "", time.Minute).Handler()
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("stale tick reported healthy: %d", rec.Code)
	}
}

func TestHealthz_DrainingUnhealthy(t *testing.T) {
	src := healthySource()
	src.state = supervisor.Draining
	h := NewRouter(src, "", time.Minute).Handler()
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("draining loop reported healthy: %d", rec.Code)
	}
}

func TestRouter_BasePathMounting(t *testing.T) {
	h := NewRouter(healthySource(), "/api/", time.Minute).Handler()
	if rec := get(t, h, "/api/status"); rec.Code != http.StatusOK {
		t.Fatalf("base path route missing: %d", rec.Code)
	}
	if rec := get(t, h, "/status"); rec.Code != http.StatusNotFound {
		t.Fatalf("unprefixed route should 404, got %d", rec.Code)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	h := NewRouter(healthySource(), "", time.Minute).Handler()
	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics endpoint: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "" {
		t.Fatalf("metrics response missing content type")
	}
}

func TestSanitizeBase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{"  /api  ", "/api"},
	}
	for _, tt := range tests {
		if got := sanitizeBase(tt.in); got != tt.want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
