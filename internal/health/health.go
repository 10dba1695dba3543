package health

import (
	"net/http"

	"github.com/star/sattrack/internal/tle"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readyz returns 200 "ready\n" once the catalog holds a snapshot and 503
// before the first successful refresh.
func Readyz(catalog *tle.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if catalog.Snapshot() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: no element sets loaded\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
	}
}
