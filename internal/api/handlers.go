package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/star/sattrack/internal/passes"
	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/tle"
	"github.com/star/sattrack/internal/tracker"
	"github.com/star/sattrack/internal/transform"
)

// Query defaults.
const (
	defaultTrackMinutes = 90
	defaultTrackSamples = 91
	defaultPassHours    = 24
	maxRejectedListed   = 100
)

type handlers struct {
	tracker *tracker.Tracker
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tracker.ErrNoCatalog):
		return http.StatusServiceUnavailable
	case errors.Is(err, tle.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrInvalidRequest),
		errors.Is(err, transform.ErrInvalidObserver),
		errors.Is(err, passes.ErrInvalidOptions),
		errors.Is(err, passes.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, propagation.ErrConvergence),
		errors.Is(err, propagation.ErrModelLimits),
		errors.Is(err, propagation.ErrDecayed),
		errors.Is(err, tle.ErrEmptyCatalog):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", tracker.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// floatParam parses an optional float query parameter.
func floatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid("%s must be a number, got %q", name, v)
	}
	return f, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalid("%s must be an integer, got %q", name, v)
	}
	return n, nil
}

// timeParam parses an optional RFC 3339 query parameter, defaulting to now.
func (h *handlers) timeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return h.now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, invalid("%s must be RFC 3339, got %q", name, v)
	}
	return t.UTC(), nil
}

// observerParams reads lat, lon (degrees) and alt (km).
func observerParams(r *http.Request) (transform.Observer, error) {
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("lon") == "" {
		return transform.Observer{}, invalid("lat and lon are required")
	}
	lat, err := floatParam(r, "lat", 0)
	if err != nil {
		return transform.Observer{}, err
	}
	lon, err := floatParam(r, "lon", 0)
	if err != nil {
		return transform.Observer{}, err
	}
	alt, err := floatParam(r, "alt", 0)
	if err != nil {
		return transform.Observer{}, err
	}
	return transform.NewObserver(lat, lon, alt)
}

type passQuery struct {
	observer  transform.Observer
	start     time.Time
	duration  time.Duration
	threshold float64
}

func (h *handlers) passParams(r *http.Request) (passQuery, error) {
	var q passQuery
	var err error
	if q.observer, err = observerParams(r); err != nil {
		return q, err
	}
	if q.start, err = h.timeParam(r, "start"); err != nil {
		return q, err
	}
	hours, err := floatParam(r, "hours", defaultPassHours)
	if err != nil {
		return q, err
	}
	q.duration = time.Duration(hours * float64(time.Hour))
	if q.threshold, err = floatParam(r, "threshold", passes.DefaultThreshold); err != nil {
		return q, err
	}
	return q, nil
}

type catalogResponse struct {
	Source     string         `json:"source"`
	LoadedAt   time.Time      `json:"loaded_at"`
	AgeSeconds float64        `json:"age_seconds"`
	Generation uint64         `json:"generation"`
	Objects    int            `json:"objects"`
	EpochRange tle.EpochRange `json:"epoch_range"`
}

func (h *handlers) catalog(w http.ResponseWriter, r *http.Request) {
	snap := h.tracker.Catalog().Snapshot()
	if snap == nil {
		h.writeError(w, r, tracker.ErrNoCatalog)
		return
	}
	writeJSON(w, http.StatusOK, catalogResponse{
		Source:     snap.Source(),
		LoadedAt:   snap.LoadedAt(),
		AgeSeconds: h.tracker.Catalog().AgeSeconds(h.now()),
		Generation: snap.Generation(),
		Objects:    snap.Len(),
		EpochRange: snap.EpochRange(),
	})
}

type refreshResponse struct {
	*tle.RefreshReport
	RejectedCount int      `json:"rejected"`
	Errors        []string `json:"errors,omitempty"`
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	if h.cfg.TLEFile == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no element file configured"})
		return
	}
	f, err := os.Open(h.cfg.TLEFile)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("opening element file: %w", err))
		return
	}
	defer f.Close()

	report, err := h.tracker.Refresh(r.Context(), f, h.cfg.TLEFile)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := refreshResponse{RefreshReport: report, RejectedCount: len(report.Rejected)}
	for i, re := range report.Rejected {
		if i == maxRejectedListed {
			break
		}
		resp.Errors = append(resp.Errors, re.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) objects(w http.ResponseWriter, r *http.Request) {
	if h.tracker.Catalog().Snapshot() == nil {
		h.writeError(w, r, tracker.ErrNoCatalog)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": h.tracker.ListObjects()})
}

func (h *handlers) position(w http.ResponseWriter, r *http.Request) {
	at, err := h.timeParam(r, "time")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	gp, err := h.tracker.CurrentPosition(r.Context(), r.PathValue("id"), at)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gp)
}

func (h *handlers) track(w http.ResponseWriter, r *http.Request) {
	start, err := h.timeParam(r, "start")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	minutes, err := floatParam(r, "duration", defaultTrackMinutes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	samples, err := intParam(r, "samples", defaultTrackSamples)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if samples > tracker.MaxSamples {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       fmt.Sprintf("%d samples exceeds the per-request budget", samples),
			"max_samples": tracker.MaxSamples,
		})
		return
	}

	track, err := h.tracker.GroundTrack(r.Context(), r.PathValue("id"), start, minutes, samples)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"track": track})
}

func (h *handlers) objectPasses(w http.ResponseWriter, r *http.Request) {
	q, err := h.passParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	found, err := h.tracker.FindPasses(r.Context(), r.PathValue("id"), q.observer, q.start, q.duration, q.threshold)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if found == nil {
		found = []passes.Pass{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"passes": found})
}

type objectPassesResponse struct {
	Object tle.ObjectID  `json:"object"`
	Passes []passes.Pass `json:"passes,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func (h *handlers) allPasses(w http.ResponseWriter, r *http.Request) {
	q, err := h.passParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var keys []string
	if ids := r.URL.Query().Get("ids"); ids != "" {
		for _, k := range strings.Split(ids, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}

	results, err := h.tracker.FindPassesAll(r.Context(), keys, q.observer, q.start, q.duration, q.threshold)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]objectPassesResponse, len(results))
	for i, res := range results {
		out[i] = objectPassesResponse{Object: res.Object, Passes: res.Passes, Error: errorString(res.Err)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

type objectPositionResponse struct {
	Object   tle.ObjectID             `json:"object"`
	Position *transform.GeodeticPoint `json:"position,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

func (h *handlers) positions(w http.ResponseWriter, r *http.Request) {
	at, err := h.timeParam(r, "time")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	results, err := h.tracker.Positions(r.Context(), at)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]objectPositionResponse, len(results))
	for i, res := range results {
		out[i] = objectPositionResponse{Object: res.Object, Error: errorString(res.Err)}
		if res.Err == nil {
			out[i].Position = &results[i].Position
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"epoch": at, "results": out})
}
