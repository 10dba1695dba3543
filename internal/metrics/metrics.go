package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sattrack_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_propagations_total",
			Help: "Objects propagated, by result.",
		},
		[]string{"result"},
	)

	propagationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sattrack_propagation_duration_seconds",
			Help:    "Duration of a position or ground track query.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	passSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_pass_searches_total",
			Help: "Pass searches per object, by result.",
		},
		[]string{"result"},
	)

	passSearchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sattrack_pass_search_duration_seconds",
			Help:    "Duration of a single-object pass search.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	passesFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattrack_passes_found_total",
			Help: "Passes returned by pass searches.",
		},
	)

	catalogObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattrack_catalog_objects",
			Help: "Objects in the current catalog snapshot.",
		},
	)

	catalogAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattrack_catalog_age_seconds",
			Help: "Seconds since the current catalog snapshot was loaded.",
		},
	)

	catalogRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_catalog_refreshes_total",
			Help: "Catalog refresh attempts, by result.",
		},
		[]string{"result"},
	)

	rejectedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_catalog_rejected_records_total",
			Help: "Element records rejected during refresh, by reason.",
		},
		[]string{"reason"},
	)

	workersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattrack_workers",
			Help: "Size of the multi-object worker pool.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_stream_connections_total",
			Help: "Position stream connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sattrack_streams_active",
			Help: "Open position streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattrack_stream_messages_total",
			Help: "SSE messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sattrack_stream_bytes_total",
			Help: "Bytes written to position streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sattrack_stream_errors_total",
			Help: "Position stream errors, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(propagationsTotal)
	prometheus.MustRegister(propagationDurationSeconds)
	prometheus.MustRegister(passSearchesTotal)
	prometheus.MustRegister(passSearchDurationSeconds)
	prometheus.MustRegister(passesFound)
	prometheus.MustRegister(catalogObjects)
	prometheus.MustRegister(catalogAgeSeconds)
	prometheus.MustRegister(catalogRefreshesTotal)
	prometheus.MustRegister(rejectedRecordsTotal)
	prometheus.MustRegister(workersActive)
	prometheus.MustRegister(streamConnectionsTotal)
	prometheus.MustRegister(streamsActive)
	prometheus.MustRegister(streamMessagesTotal)
	prometheus.MustRegister(streamBytesTotal)
	prometheus.MustRegister(streamErrorsTotal)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one propagation query and how many objects
// succeeded or failed.
func RecordPropagation(d time.Duration, success, failed int) {
	propagationDurationSeconds.Observe(d.Seconds())
	propagationsTotal.WithLabelValues("success").Add(float64(success))
	propagationsTotal.WithLabelValues("error").Add(float64(failed))
}

// RecordPassSearch records one single-object pass search.
func RecordPassSearch(d time.Duration, found int, err error) {
	passSearchDurationSeconds.Observe(d.Seconds())
	if err != nil {
		passSearchesTotal.WithLabelValues("error").Inc()
		return
	}
	passSearchesTotal.WithLabelValues("success").Inc()
	passesFound.Add(float64(found))
}

// RecordRefresh records a catalog refresh attempt.
func RecordRefresh(objects int, err error) {
	if err != nil {
		catalogRefreshesTotal.WithLabelValues("error").Inc()
		return
	}
	catalogRefreshesTotal.WithLabelValues("success").Inc()
	catalogObjects.Set(float64(objects))
	catalogAgeSeconds.Set(0)
}

// RecordRejected counts one rejected element record.
func RecordRejected(reason string) {
	rejectedRecordsTotal.WithLabelValues(reason).Inc()
}

// SetCatalogAge reports the age of the current snapshot.
func SetCatalogAge(d time.Duration) {
	catalogAgeSeconds.Set(d.Seconds())
}

// SetWorkers reports the worker pool size.
func SetWorkers(n int) {
	workersActive.Set(float64(n))
}

// IncStreamConnections counts a stream "connect" or "disconnect" event.
func IncStreamConnections(event string) {
	streamConnectionsTotal.WithLabelValues(event).Inc()
}

func IncStreamsActive() { streamsActive.Inc() }
func DecStreamsActive() { streamsActive.Dec() }

// RecordStreamWrite counts one SSE write of n bytes. Keepalives are not
// messages.
func RecordStreamWrite(n int, message bool) {
	streamBytesTotal.Add(float64(n))
	if message {
		streamMessagesTotal.Inc()
	}
}

// IncStreamErrors counts a stream error by reason.
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// exactRoutes are served paths whose label is the path itself.
var exactRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/catalog":          true,
	"/api/v1/catalog/refresh":  true,
	"/api/v1/objects":          true,
	"/api/v1/passes":           true,
	"/api/v1/positions":        true,
	"/api/v1/stream/positions": true,
}

// objectRoutes are the sub-resources of /api/v1/objects/{id}.
var objectRoutes = map[string]bool{
	"position": true,
	"track":    true,
	"passes":   true,
}

// normalizeRoute maps a request path to a bounded label set: object IDs
// collapse to {id} and unknown paths to "other".
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	rest, ok := strings.CutPrefix(path, "/api/v1/objects/")
	if !ok {
		return "other"
	}
	id, sub, ok := strings.Cut(rest, "/")
	if !ok || id == "" || !objectRoutes[sub] {
		return "other"
	}
	return "/api/v1/objects/{id}/" + sub
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
