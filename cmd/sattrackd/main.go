// Command sattrackd serves position, ground track and pass queries over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/star/sattrack/internal/api"
	"github.com/star/sattrack/internal/metrics"
	"github.com/star/sattrack/internal/observability"
	"github.com/star/sattrack/internal/tle"
	"github.com/star/sattrack/internal/tracker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("SATTRACK_LOG_LEVEL")),
	}))

	addr := os.Getenv("SATTRACK_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), logger)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	catalog := tle.NewCatalog()
	tr := tracker.New(catalog, loadTrackerConfig(logger), logger)

	apiCfg := api.Config{
		Auth:       authCfg,
		TrustProxy: envBool(logger, "SATTRACK_TRUST_PROXY", false),
		TLEFile:    os.Getenv("SATTRACK_TLE_FILE"),
		Stream:     loadStreamConfig(logger),
	}

	// Initial load; the service still starts (not ready) if it fails.
	if apiCfg.TLEFile != "" {
		if err := loadCatalog(ctx, tr, apiCfg.TLEFile); err != nil {
			logger.Warn("initial catalog load failed, starting without element sets", "file", apiCfg.TLEFile, "error", err)
		}
	} else {
		logger.Info("SATTRACK_TLE_FILE not set, starting without element sets")
	}

	srv := api.NewServer(addr, logger, apiCfg, tr)

	// Keep the catalog age gauge current.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				if age := catalog.AgeSeconds(now); age >= 0 {
					metrics.SetCatalogAge(time.Duration(age * float64(time.Second)))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "tle_file", apiCfg.TLEFile)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func loadCatalog(ctx context.Context, tr *tracker.Tracker, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = tr.Refresh(ctx, f, path)
	return err
}
