// Package stream serves live catalog positions as Server-Sent Events.
// Clients connect via GET /api/v1/stream/positions and receive the
// geodetic subpoint of every object once per step.
//
// SSE message format:
//
//	data: {"type":"positions","t":"2026-02-06T04:00:00Z","sat":[{"id":25544,"lat":..,"lon":..,"alt":..}]}\n\n
//
// The first message on every connection is metadata:
//
//	data: {"type":"metadata","generation":3,"loaded_at":"...","catalog_age_seconds":1800,"objects":120}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/star/sattrack/internal/metrics"
	"github.com/star/sattrack/internal/tle"
	"github.com/star/sattrack/internal/tracker"
)

// Step bounds in seconds.
const (
	DefaultStep = 5
	MaxStep     = 60
)

// Config holds streaming limits.
type Config struct {
	MaxConcurrentPerIP int           // default 10
	MaxConcurrent      int           // across all clients, default 1000
	KeepaliveInterval  time.Duration // default 30s
}

// DefaultConfig returns the default stream limits.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		MaxConcurrent:      1000,
		KeepaliveInterval:  30 * time.Second,
	}
}

// Handler manages SSE position streams.
type Handler struct {
	tracker  *tracker.Tracker
	config   Config
	limiter  *streamLimiter
	logger   *slog.Logger
	clientIP func(*http.Request) string
	now      func() time.Time
}

// NewHandler creates a streaming handler. Zero config fields take their
// defaults. ipFunc extracts the address used for per-client limits; nil
// uses the connection's remote address.
func NewHandler(tr *tracker.Tracker, config Config, ipFunc func(*http.Request) string, logger *slog.Logger) *Handler {
	def := DefaultConfig()
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = def.MaxConcurrentPerIP
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = def.KeepaliveInterval
	}
	if ipFunc == nil {
		ipFunc = remoteIP
	}
	return &Handler{
		tracker:  tr,
		config:   config,
		limiter:  newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:   logger,
		clientIP: ipFunc,
		now:      time.Now,
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// HandlePositions serves the SSE position stream.
// GET /api/v1/stream/positions?step=5
func (h *Handler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	step := DefaultStep
	if v := r.URL.Query().Get("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxStep {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid step parameter, must be 1-%d", MaxStep))
			return
		}
		step = n
	}

	snap := h.tracker.Catalog().Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, tracker.ErrNoCatalog.Error())
		return
	}

	ip := h.clientIP(r)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"step", step,
	)

	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		metrics.IncStreamErrors("no_flush")
		h.logger.Error("streaming not supported", "remote_ip", ip, "error", err)
		return
	}
	// Long-lived; the server's WriteTimeout does not apply.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:      w,
		rc:     rc,
		ip:     ip,
		logger: h.logger,
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	if err := c.sendRetry(3000 + rand.Intn(4000)); err != nil {
		return
	}

	if err := c.sendJSON(newMetadata(snap, h.now())); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(time.Duration(step) * time.Second)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	generation := snap.Generation()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			now := h.now().UTC()

			// A refresh swapped the catalog; tell the client first.
			if s := h.tracker.Catalog().Snapshot(); s != nil && s.Generation() != generation {
				generation = s.Generation()
				if err := c.sendJSON(newMetadata(s, now)); err != nil {
					metrics.IncStreamErrors("send_error")
					h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
					return
				}
			}

			results, err := h.tracker.Positions(ctx, now)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				metrics.IncStreamErrors("propagation")
				h.logger.Warn("stream positions failed", "remote_ip", ip, "error", err)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if err := c.sendJSON(buildBatchMessage(now, results)); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func newMetadata(snap *tle.Snapshot, now time.Time) metadataMessage {
	return metadataMessage{
		Type:       "metadata",
		Generation: snap.Generation(),
		LoadedAt:   snap.LoadedAt().UTC().Format(time.RFC3339),
		CatalogAge: int(now.Sub(snap.LoadedAt()).Seconds()),
		Objects:    snap.Len(),
	}
}

// buildBatchMessage formats one round of positions. Objects that failed to
// propagate carry the error instead of coordinates.
func buildBatchMessage(t time.Time, results []tracker.ObjectPosition) positionsMessage {
	sats := make([]satPayload, len(results))
	for i, r := range results {
		sats[i] = satPayload{ID: r.Object.CatalogNumber}
		if r.Err != nil {
			sats[i].Err = r.Err.Error()
			continue
		}
		p := r.Position
		sats[i].Lat, sats[i].Lon, sats[i].Alt = &p.Latitude, &p.Longitude, &p.Altitude
	}
	return positionsMessage{
		Type: "positions",
		T:    t.UTC().Format(time.RFC3339),
		Sat:  sats,
	}
}

// remoteIP returns the host part of RemoteAddr.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SSE message payload types.

type metadataMessage struct {
	Type       string `json:"type"`
	Generation uint64 `json:"generation"`
	LoadedAt   string `json:"loaded_at"`
	CatalogAge int    `json:"catalog_age_seconds"`
	Objects    int    `json:"objects"`
}

type positionsMessage struct {
	Type string       `json:"type"`
	T    string       `json:"t"`
	Sat  []satPayload `json:"sat"`
}

type satPayload struct {
	ID  int      `json:"id"`
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`
	Alt *float64 `json:"alt,omitempty"`
	Err string   `json:"error,omitempty"`
}
