package main

import (
	"errors"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/star/sattrack/internal/auth"
	"github.com/star/sattrack/internal/passes"
	"github.com/star/sattrack/internal/stream"
	"github.com/star/sattrack/internal/tracker"
)

func logLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := os.Getenv("SATTRACK_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("SATTRACK_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("SATTRACK_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("SATTRACK_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func envBool(logger *slog.Logger, name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid boolean value, using default", "name", name, "value", v, "default", def)
		return def
	}
	return b
}

// envPositive reads a positive integer, warning and falling back to def on
// anything else.
func envPositive(logger *slog.Logger, name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+name+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

func loadTrackerConfig(logger *slog.Logger) tracker.Config {
	cfg := tracker.DefaultConfig()
	cfg.Workers = envPositive(logger, "SATTRACK_WORKERS", runtime.NumCPU())

	step := envPositive(logger, "SATTRACK_PASS_STEP", int(passes.DefaultStep/time.Second))
	if d := time.Duration(step) * time.Second; d > passes.MaxStep {
		logger.Warn("SATTRACK_PASS_STEP above maximum, clamping", "value", step, "max", passes.MaxStep.Seconds())
		cfg.Passes.Step = passes.MaxStep
	} else {
		cfg.Passes.Step = d
	}
	if cfg.Passes.TimeTolerance > cfg.Passes.Step {
		cfg.Passes.TimeTolerance = cfg.Passes.Step
	}

	logger.Info("tracker config",
		"workers", cfg.Workers,
		"pass_step_seconds", cfg.Passes.Step.Seconds(),
	)
	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	def := stream.DefaultConfig()
	cfg := stream.Config{
		MaxConcurrentPerIP: envPositive(logger, "SATTRACK_STREAM_MAX_CONCURRENT", def.MaxConcurrentPerIP),
		MaxConcurrent:      envPositive(logger, "SATTRACK_STREAM_MAX_TOTAL", def.MaxConcurrent),
		KeepaliveInterval: time.Duration(envPositive(logger, "SATTRACK_STREAM_KEEPALIVE_INTERVAL",
			int(def.KeepaliveInterval/time.Second))) * time.Second,
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_concurrent", cfg.MaxConcurrent,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
	)
	return cfg
}
