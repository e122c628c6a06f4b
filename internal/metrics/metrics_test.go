package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CyclesTotal.WithLabelValues("ok").Inc()
	m.SignalsTotal.WithLabelValues("BUY").Add(2)
	m.RaceWindowsTotal.Inc()

	if got := testutil.ToFloat64(m.SignalsTotal.WithLabelValues("BUY")); got != 2 {
		t.Errorf("signals BUY = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RaceWindowsTotal); got != 1 {
		t.Errorf("race windows = %v, want 1", got)
	}

	// A second set on a fresh registry must not collide.
	NewMetrics(prometheus.NewRegistry())
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.DuplicatesTotal.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "signald_history_duplicates_total 1") {
		t.Errorf("body missing duplicates counter:\n%s", rec.Body.String())
	}
}

func TestHealthStatus(t *testing.T) {
	h := NewHealthStatus()

	get := func() (int, map[string]any) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return rec.Code, body
	}

	code, body := get()
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("fresh status = %d %v", code, body)
	}

	h.RecordFetch(time.Now(), errors.New("timeout"))
	code, body = get()
	if code != http.StatusOK || body["status"] != "degraded" || body["last_fetch_error"] != "timeout" {
		t.Fatalf("after fetch failure = %d %v", code, body)
	}

	h.setStore(false, time.Millisecond)
	if code, _ = get(); code != http.StatusServiceUnavailable {
		t.Fatalf("store down status = %d, want 503", code)
	}
}
