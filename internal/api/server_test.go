package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/star/sattrack/internal/auth"
	"github.com/star/sattrack/internal/tle"
	"github.com/star/sattrack/internal/tracker"
)

const (
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"

	buriedLine1 = "1 90001U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	buriedLine2 = "2 90001  51.6416 247.4627 0000100 130.5360 325.0288 17.50000000 53533"
)

const catalogData = "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n" +
	"BURIED\n" + buriedLine1 + "\n" + buriedLine2 + "\n"

const epoch = "2008-09-20T12:30:00Z"

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestServer(t *testing.T, cfg Config, load bool) http.Handler {
	t.Helper()
	tr := tracker.New(tle.NewCatalog(), tracker.DefaultConfig(), testLogger())
	if load {
		if _, err := tr.Refresh(context.Background(), strings.NewReader(catalogData), "test"); err != nil {
			t.Fatal(err)
		}
	}
	return NewServer(":0", testLogger(), cfg, tr).HTTPServer().Handler
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decoding response: %v", target, err)
		}
	}
	return w, body
}

func TestRoutesStatus(t *testing.T) {
	h := newTestServer(t, Config{}, true)
	obs := "lat=51.05&lon=-114.07&alt=1.045"

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"healthz", "/healthz", http.StatusOK},
		{"readyz", "/readyz", http.StatusOK},
		{"metrics", "/metrics", http.StatusOK},
		{"catalog", "/api/v1/catalog", http.StatusOK},
		{"objects", "/api/v1/objects", http.StatusOK},
		{"position", "/api/v1/objects/25544/position?time=" + epoch, http.StatusOK},
		{"position by name", "/api/v1/objects/ISS%20(ZARYA)/position?time=" + epoch, http.StatusOK},
		{"position bad time", "/api/v1/objects/25544/position?time=yesterday", http.StatusBadRequest},
		{"position unknown", "/api/v1/objects/99999/position?time=" + epoch, http.StatusNotFound},
		{"position decayed", "/api/v1/objects/90001/position?time=" + epoch, http.StatusUnprocessableEntity},
		{"track", "/api/v1/objects/25544/track?start=" + epoch + "&duration=90&samples=10", http.StatusOK},
		{"track zero samples", "/api/v1/objects/25544/track?start=" + epoch + "&samples=0", http.StatusBadRequest},
		{"track bad duration", "/api/v1/objects/25544/track?duration=abc", http.StatusBadRequest},
		{"passes", "/api/v1/objects/25544/passes?" + obs + "&start=" + epoch + "&hours=12", http.StatusOK},
		{"passes missing observer", "/api/v1/objects/25544/passes?start=" + epoch, http.StatusBadRequest},
		{"passes bad latitude", "/api/v1/objects/25544/passes?lat=91&lon=0&start=" + epoch, http.StatusBadRequest},
		{"passes bad threshold", "/api/v1/objects/25544/passes?" + obs + "&threshold=120&start=" + epoch, http.StatusBadRequest},
		{"passes zero window", "/api/v1/objects/25544/passes?" + obs + "&hours=0&start=" + epoch, http.StatusBadRequest},
		{"all passes", "/api/v1/passes?" + obs + "&start=" + epoch + "&hours=6", http.StatusOK},
		{"positions", "/api/v1/positions?time=" + epoch, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := get(t, h, tt.target)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %v)", w.Code, tt.want, body)
			}
			if tt.want >= 400 && body["error"] == nil {
				t.Error("expected error field in response")
			}
		})
	}
}

func TestNoCatalog(t *testing.T) {
	h := newTestServer(t, Config{}, false)
	for _, target := range []string{
		"/readyz",
		"/api/v1/catalog",
		"/api/v1/objects",
		"/api/v1/objects/25544/position",
		"/api/v1/positions",
	} {
		if w, _ := get(t, h, target); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", target, w.Code)
		}
	}
}

// TestTrackSampleBudget verifies that requests exceeding the sample budget
// are rejected with 400 instead of consuming unbounded CPU.
func TestTrackSampleBudget(t *testing.T) {
	h := newTestServer(t, Config{}, true)

	w, body := get(t, h, "/api/v1/objects/25544/track?start="+epoch+"&samples=10001")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body["max_samples"] == nil {
		t.Error("expected max_samples field in response")
	}

	w, body = get(t, h, "/api/v1/objects/25544/track?start="+epoch+"&duration=1440&samples=10000")
	if w.Code != http.StatusOK {
		t.Fatalf("within budget: status = %d", w.Code)
	}
	if track := body["track"].([]any); len(track) != 10000 {
		t.Errorf("got %d samples", len(track))
	}
}

func TestPositionBody(t *testing.T) {
	h := newTestServer(t, Config{}, true)
	w, body := get(t, h, "/api/v1/objects/25544/position?time="+epoch)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	for _, key := range []string{"epoch", "latitude", "longitude", "altitude"} {
		if _, ok := body[key]; !ok {
			t.Errorf("missing %q in %v", key, body)
		}
	}
	if alt := body["altitude"].(float64); alt < 300 || alt > 450 {
		t.Errorf("altitude = %v km", alt)
	}
}

func TestAllPassesPerObjectErrors(t *testing.T) {
	h := newTestServer(t, Config{}, true)
	w, body := get(t, h, "/api/v1/passes?lat=51.05&lon=-114.07&start="+epoch+"&hours=24&ids=25544,99999,BURIED")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	results := body["results"].([]any)
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	iss := results[0].(map[string]any)
	if iss["error"] != nil || len(iss["passes"].([]any)) == 0 {
		t.Errorf("ISS result = %v", iss)
	}
	for _, i := range []int{1, 2} {
		if results[i].(map[string]any)["error"] == nil {
			t.Errorf("result %d should carry an error", i)
		}
	}

	complete := 0
	for _, p := range iss["passes"].([]any) {
		pass := p.(map[string]any)
		if pass["rise"] == nil || pass["culminate"] == nil || pass["set"] == nil {
			continue
		}
		complete++
		for _, kind := range []string{"rise", "culminate", "set"} {
			if ev := pass[kind].(map[string]any); ev["kind"] != kind {
				t.Errorf("event kind = %v, want %s", ev["kind"], kind)
			}
		}
	}
	if complete == 0 {
		t.Error("no complete pass in 24 hours")
	}
}

func TestPositionsBody(t *testing.T) {
	h := newTestServer(t, Config{}, true)
	_, body := get(t, h, "/api/v1/positions?time="+epoch)
	results := body["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if r := results[0].(map[string]any); r["position"] == nil || r["error"] != nil {
		t.Errorf("ISS result = %v", r)
	}
	if r := results[1].(map[string]any); r["position"] != nil || r["error"] == nil {
		t.Errorf("buried result = %v", r)
	}
}

func TestRefresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.tle")
	data := catalogData + "BROKEN\n1 25544U\n2 25544\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	h := newTestServer(t, Config{TLEFile: path, Auth: auth.Config{Enabled: true, Token: "tok"}}, false)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/catalog/refresh", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("without token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog/refresh", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Loaded   int      `json:"loaded"`
		Rejected int      `json:"rejected"`
		Errors   []string `json:"errors"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Loaded != 2 || resp.Rejected != 1 || len(resp.Errors) != 1 {
		t.Errorf("refresh response = %+v", resp)
	}

	if w, _ := get(t, h, "/readyz"); w.Code != http.StatusOK {
		t.Errorf("readyz after refresh = %d", w.Code)
	}

	// Nothing usable is rejected and the catalog stays.
	if err := os.WriteFile(path, []byte("junk\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req.Clone(context.Background()))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty refresh: status = %d, want 422", w.Code)
	}
	if _, body := get(t, h, "/api/v1/catalog"); body["objects"].(float64) != 2 {
		t.Errorf("catalog after failed refresh = %v", body)
	}
}

func TestRefreshNotConfigured(t *testing.T) {
	h := newTestServer(t, Config{}, false)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/catalog/refresh", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestCatalogBody(t *testing.T) {
	h := newTestServer(t, Config{}, true)
	_, body := get(t, h, "/api/v1/catalog")
	if body["source"] != "test" || body["objects"].(float64) != 2 || body["generation"].(float64) != 1 {
		t.Errorf("catalog = %v", body)
	}
	er := body["epoch_range"].(map[string]any)
	oldest, err := time.Parse(time.RFC3339Nano, er["min"].(string))
	if err != nil || oldest.Year() != 2008 {
		t.Errorf("epoch range = %v", er)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		trust      bool
		want       string
	}{
		{name: "remote addr", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "ipv6 remote addr", remoteAddr: "[::1]:12345", want: "::1"},
		{name: "remote addr without port", remoteAddr: "192.168.1.1", want: "192.168.1.1"},
		{name: "XFF ignored when not trusted", xff: "1.2.3.4", xri: "5.6.7.8", remoteAddr: "10.0.0.1:1234", want: "10.0.0.1"},
		{name: "XFF single IP", xff: "1.2.3.4", remoteAddr: "10.0.0.1:1234", trust: true, want: "1.2.3.4"},
		{name: "XFF multiple IPs takes first", xff: "1.2.3.4, 10.0.0.1", remoteAddr: "10.0.0.3:1234", trust: true, want: "1.2.3.4"},
		{name: "X-Real-IP fallback", xri: "5.6.7.8", remoteAddr: "10.0.0.1:1234", trust: true, want: "5.6.7.8"},
		{name: "XFF takes precedence over X-Real-IP", xff: "1.2.3.4", xri: "5.6.7.8", remoteAddr: "10.0.0.1:1234", trust: true, want: "1.2.3.4"},
		{name: "empty XFF entry falls through", xff: " , 1.2.3.4", remoteAddr: "10.0.0.1:1234", trust: true, want: "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := clientIP(r, tt.trust); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPositionStreamRoute(t *testing.T) {
	h := newTestServer(t, Config{}, true)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream/positions?step=60", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), `"type":"metadata"`) {
		t.Errorf("missing metadata message in %q", w.Body.String())
	}
}
