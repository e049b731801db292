package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/norachat/agentic/domain"
)

func TestRecorderRegistersAllSeries(t *testing.T) {
	rec := NewRecorder()

	families, err := rec.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := make(map[string]bool, len(families))
	for _, family := range families {
		got[family.GetName()] = true
	}

	want := []string{
		"app_requests_total",
		"app_successful_requests_total",
		"app_failed_requests_total",
		"app_request_duration_seconds",
		"app_token_count",
		"app_local_model_usage",
		"app_api_model_usage",
		"app_timeout_errors_total",
		"app_api_errors_total",
		"app_unknown_errors_total",
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("series %q not registered", name)
		}
	}
}

func TestRequestFailedCountsByKind(t *testing.T) {
	rec := NewRecorder()

	rec.RequestFailed(domain.ErrorTimeout)
	rec.RequestFailed(domain.ErrorBackend)
	rec.RequestFailed(domain.ErrorBackend)
	rec.RequestFailed(domain.ErrorUnknown)

	if got := testutil.ToFloat64(rec.FailedRequests); got != 4 {
		t.Errorf("failed total = %v, want 4", got)
	}
	if got := testutil.ToFloat64(rec.TimeoutErrors); got != 1 {
		t.Errorf("timeout errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.APIErrors); got != 2 {
		t.Errorf("api errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.UnknownErrors); got != 1 {
		t.Errorf("unknown errors = %v, want 1", got)
	}
}

func TestRecordersAreIsolated(t *testing.T) {
	a := NewRecorder()
	b := NewRecorder()

	a.RequestStarted()
	if got := testutil.ToFloat64(b.RequestsTotal); got != 0 {
		t.Errorf("second recorder counted %v requests, want 0", got)
	}
}

func TestHandlerExposesTextFormat(t *testing.T) {
	rec := NewRecorder()
	rec.RequestStarted()
	rec.ObserveDuration(250 * time.Millisecond)
	rec.ObserveTokenCount(42)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "app_requests_total 1") {
		t.Errorf("exposition missing request counter:\n%s", body)
	}
	if !strings.Contains(body, "app_token_count_sum 42") {
		t.Errorf("exposition missing token count sum:\n%s", body)
	}
	if !strings.Contains(body, "app_request_duration_seconds_count 1") {
		t.Errorf("exposition missing duration sample count:\n%s", body)
	}
}
