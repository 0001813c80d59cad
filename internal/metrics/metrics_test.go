package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Second call is a no-op.
	if err := Register(reg); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	IncRestartAttempt("web-server", "succeeded")
	IncRestartAttempt("web-server", "failed")
	SetServiceUp("web-server", true)
	IncRemediation("memory", "applied")
	SetResourceUsage(41.5, 72.25)
	IncTick(time.Now())
	IncPublishFailure()

	fams, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, f := range fams {
		found[f.GetName()] = true
	}
	for _, want := range []string{
		"vigil_service_restart_attempts_total",
		"vigil_service_up",
		"vigil_resource_remediations_total",
		"vigil_resource_memory_used_percent",
		"vigil_resource_disk_used_percent",
		"vigil_loop_ticks_total",
		"vigil_loop_last_tick_unix_seconds",
		"vigil_loop_publish_failures_total",
	} {
		if !found[want] {
			t.Fatalf("metric %s not gathered (got %v)", want, found)
		}
	}
}

func TestHandler_ServesTextFormat(t *testing.T) {
	// The earlier test may have bound the collectors to its own registry;
	// reset the guard so they also land in the default one.
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("register: %v", err)
	}
	SetResourceUsage(10, 20)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "vigil_resource_memory_used_percent") {
		t.Fatalf("metrics body missing gauge: %s", rec.Body.String()[:200])
	}
}
