package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/api/v1/catalog", "/api/v1/catalog"},
		{"/api/v1/catalog/refresh", "/api/v1/catalog/refresh"},
		{"/api/v1/objects", "/api/v1/objects"},
		{"/api/v1/passes", "/api/v1/passes"},
		{"/api/v1/positions", "/api/v1/positions"},
		{"/api/v1/stream/positions", "/api/v1/stream/positions"},

		// Parameterized object routes collapse to one label per sub-resource.
		{"/api/v1/objects/25544/position", "/api/v1/objects/{id}/position"},
		{"/api/v1/objects/ISS%20(ZARYA)/track", "/api/v1/objects/{id}/track"},
		{"/api/v1/objects/A0001/passes", "/api/v1/objects/{id}/passes"},

		// Unknown/bot paths collapse to "other".
		{"/api/v1/objects/25544", "other"},
		{"/api/v1/objects//track", "other"},
		{"/api/v1/objects/25544/orbit", "other"},
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
		{"/favicon.ico", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 unique catalog numbers produce
// exactly 1 distinct path label, not 100.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		label := normalizeRoute("/api/v1/objects/" + strconv.Itoa(25000+i) + "/position")
		seen[label] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/objects/{id}/track", http.MethodGet, "418"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/objects/5/track", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/objects/{id}/track", http.MethodGet, "418"))
	if after != before+1 {
		t.Errorf("request counter moved from %v to %v", before, after)
	}
}

func TestRecorders(t *testing.T) {
	RecordRefresh(42, nil)
	if got := testutil.ToFloat64(catalogObjects); got != 42 {
		t.Errorf("catalog objects = %v, want 42", got)
	}
	SetCatalogAge(90 * time.Second)
	if got := testutil.ToFloat64(catalogAgeSeconds); got != 90 {
		t.Errorf("catalog age = %v, want 90", got)
	}

	failed := testutil.ToFloat64(catalogRefreshesTotal.WithLabelValues("error"))
	RecordRefresh(0, errors.New("empty"))
	if got := testutil.ToFloat64(catalogRefreshesTotal.WithLabelValues("error")); got != failed+1 {
		t.Errorf("failed refreshes = %v, want %v", got, failed+1)
	}
	if got := testutil.ToFloat64(catalogObjects); got != 42 {
		t.Errorf("failed refresh changed object count to %v", got)
	}

	found := testutil.ToFloat64(passesFound)
	RecordPassSearch(time.Millisecond, 3, nil)
	RecordPassSearch(time.Millisecond, 5, errors.New("decayed"))
	if got := testutil.ToFloat64(passesFound); got != found+3 {
		t.Errorf("passes found = %v, want %v", got, found+3)
	}

	rejected := testutil.ToFloat64(rejectedRecordsTotal.WithLabelValues("checksum"))
	RecordRejected("checksum")
	if got := testutil.ToFloat64(rejectedRecordsTotal.WithLabelValues("checksum")); got != rejected+1 {
		t.Errorf("rejected = %v", got)
	}
}

func TestStreamRecorders(t *testing.T) {
	before := testutil.ToFloat64(streamsActive)
	IncStreamsActive()
	if got := testutil.ToFloat64(streamsActive); got != before+1 {
		t.Errorf("active streams = %v, want %v", got, before+1)
	}
	DecStreamsActive()

	msgs := testutil.ToFloat64(streamMessagesTotal)
	bytes := testutil.ToFloat64(streamBytesTotal)
	RecordStreamWrite(100, true)
	RecordStreamWrite(3, false)
	if got := testutil.ToFloat64(streamMessagesTotal); got != msgs+1 {
		t.Errorf("messages = %v, want %v", got, msgs+1)
	}
	if got := testutil.ToFloat64(streamBytesTotal); got != bytes+103 {
		t.Errorf("bytes = %v, want %v", got, bytes+103)
	}
}
