package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveUpstream_CountsOutcome(t *testing.T) {
	okBefore := testutil.ToFloat64(UpstreamRequests.WithLabelValues("test-api", "ok"))
	statusBefore := testutil.ToFloat64(UpstreamRequests.WithLabelValues("test-api", "status"))

	ObserveUpstream("test-api", time.Now(), "ok")
	ObserveUpstream("test-api", time.Now(), "status")
	ObserveUpstream("test-api", time.Now(), "status")

	if got := testutil.ToFloat64(UpstreamRequests.WithLabelValues("test-api", "ok")) - okBefore; got != 1 {
		t.Errorf("expected 1 ok, got %v", got)
	}
	if got := testutil.ToFloat64(UpstreamRequests.WithLabelValues("test-api", "status")) - statusBefore; got != 2 {
		t.Errorf("expected 2 status failures, got %v", got)
	}
}

func TestHandler_ExposesRelaybotMetrics(t *testing.T) {
	EventsTotal.WithLabelValues("text").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"relaybot_events_total", "relaybot_uptime_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
