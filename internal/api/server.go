// Package api exposes the tracker over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/star/sattrack/internal/auth"
	"github.com/star/sattrack/internal/health"
	"github.com/star/sattrack/internal/metrics"
	"github.com/star/sattrack/internal/stream"
	"github.com/star/sattrack/internal/tracker"
)

// Config holds HTTP-layer settings.
type Config struct {
	Auth       auth.Config
	TrustProxy bool   // honor X-Forwarded-For and X-Real-IP
	TLEFile    string // re-read by POST /api/v1/catalog/refresh
	Stream     stream.Config
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, cfg Config, tr *tracker.Tracker) *Server {
	h := &handlers{tracker: tr, cfg: cfg, logger: logger, now: time.Now}
	streamHandler := stream.NewHandler(tr, cfg.Stream, func(r *http.Request) string {
		return clientIP(r, cfg.TrustProxy)
	}, logger)
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(tr.Catalog()))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/catalog", h.catalog)
	mux.HandleFunc("POST /api/v1/catalog/refresh", h.refresh)
	mux.HandleFunc("GET /api/v1/objects", h.objects)
	mux.HandleFunc("GET /api/v1/objects/{id}/position", h.position)
	mux.HandleFunc("GET /api/v1/objects/{id}/track", h.track)
	mux.HandleFunc("GET /api/v1/objects/{id}/passes", h.objectPasses)
	mux.HandleFunc("GET /api/v1/passes", h.allPasses)
	mux.HandleFunc("GET /api/v1/positions", h.positions)
	mux.HandleFunc("GET /api/v1/stream/positions", streamHandler.HandlePositions)

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}
