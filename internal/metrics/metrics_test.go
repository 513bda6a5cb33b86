package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCollectorRecordsHTTPMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	handlerInvoked := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerInvoked = true
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	instrumented := collector.InstrumentHandler(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	instrumented.ServeHTTP(rr, req)

	if !handlerInvoked {
		t.Fatal("expected handler to be invoked")
	}

	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	body := scrape(t, collector)
	if !strings.Contains(body, `growthwatch_http_requests_total{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}

	if !strings.Contains(body, `growthwatch_http_request_duration_seconds_count{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("request_duration_seconds_count metric not recorded, body=%q", body)
	}
}

func TestCollectorRecordsDomainMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	collector.RecordProbe(true)
	collector.RecordProbe(false)
	collector.RecordScrape(true)
	collector.AddNewFollowers(3)
	collector.RecordWelcome(true)
	collector.RecordSyncFetch("skipped_today")

	body := scrape(t, collector)

	checks := []string{
		`growthwatch_poller_probes_total{outcome="success"} 1`,
		`growthwatch_poller_probes_total{outcome="failure"} 1`,
		`growthwatch_poller_scrapes_total{outcome="success"} 1`,
		`growthwatch_poller_new_followers_total 3`,
		`growthwatch_welcome_dispatches_total{outcome="success"} 1`,
		`growthwatch_sync_fetches_total{outcome="skipped_today"} 1`,
	}
	for _, want := range checks {
		if !strings.Contains(body, want) {
			t.Errorf("metric %q not found in scrape output", want)
		}
	}
}

func scrape(t *testing.T, collector *Collector) string {
	t.Helper()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", rr.Code)
	}

	return rr.Body.String()
}
