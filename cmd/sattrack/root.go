package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/star/sattrack/internal/passes"
	"github.com/star/sattrack/internal/tle"
	"github.com/star/sattrack/internal/tracker"
)

// env is the run environment shared by subcommands.
type env struct {
	v      *viper.Viper
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	e := &env{v: viper.New(), stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "sattrack",
		Short: "satellite positions, ground tracks and passes from element sets",
		Long: `sattrack reads two- or three-line element sets from a file (or stdin)
and answers position, ground track and pass queries.

Every flag can also be set from the environment (SATTRACK_TLE, SATTRACK_LAT, ...)
or from the file given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.loadConfig(cmd)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml, toml or json)")
	pf.String("tle", "-", `element set file, "-" for stdin`)
	pf.String("output", "text", "output format: text or json")
	pf.String("log-level", "warn", "log level for diagnostics on stderr")
	pf.Int("workers", 0, "parallel workers for multi-object queries (0 = one per CPU)")

	root.AddCommand(
		newListCmd(e),
		newPositionCmd(e),
		newTrackCmd(e),
		newPassesCmd(e),
	)
	return root
}

// loadConfig binds flags, SATTRACK_* variables and the optional config file.
// Precedence is flag, then environment, then file.
func (e *env) loadConfig(cmd *cobra.Command) error {
	if err := e.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	e.v.SetEnvPrefix("SATTRACK")
	e.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	e.v.AutomaticEnv()

	if path := e.v.GetString("config"); path != "" {
		e.v.SetConfigFile(path)
		if err := e.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	switch e.v.GetString("output") {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output format %q", e.v.GetString("output"))
	}
	return nil
}

func (e *env) logger() *slog.Logger {
	level := slog.LevelWarn
	if err := level.UnmarshalText([]byte(e.v.GetString("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(e.stderr, &slog.HandlerOptions{Level: level}))
}

// tracker loads the element file into a fresh catalog.
func (e *env) tracker(ctx context.Context) (*tracker.Tracker, error) {
	cfg := tracker.DefaultConfig()
	if n := e.v.GetInt("workers"); n > 0 {
		cfg.Workers = n
	}
	tr := tracker.New(tle.NewCatalog(), cfg, e.logger())

	path := e.v.GetString("tle")
	var r io.Reader = e.stdin
	source := "stdin"
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r, source = f, path
	}
	if _, err := tr.Refresh(ctx, r, source); err != nil {
		return nil, err
	}
	return tr, nil
}

func (e *env) jsonOutput() bool {
	return e.v.GetString("output") == "json"
}

func (e *env) writeJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// timeFlag parses an RFC 3339 value; empty means now.
func (e *env) timeFlag(name string) (time.Time, error) {
	v := e.v.GetString(name)
	if v == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t.UTC(), nil
}

func newListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list the objects in the element file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := e.tracker(cmd.Context())
			if err != nil {
				return err
			}
			objects := tr.ListObjects()
			if e.jsonOutput() {
				return e.writeJSON(objects)
			}
			for _, o := range objects {
				fmt.Fprintf(e.stdout, "%6d  %s\n", o.CatalogNumber, o.Name)
			}
			return nil
		},
	}
}

func newPositionCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "position <object>",
		Short: "geodetic subpoint of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := e.timeFlag("time")
			if err != nil {
				return err
			}
			tr, err := e.tracker(cmd.Context())
			if err != nil {
				return err
			}
			gp, err := tr.CurrentPosition(cmd.Context(), args[0], at)
			if err != nil {
				return err
			}
			if e.jsonOutput() {
				return e.writeJSON(gp)
			}
			fmt.Fprintf(e.stdout, "%s  lat %9.4f  lon %9.4f  alt %9.3f km\n",
				gp.Epoch.Format(time.RFC3339), gp.Latitude, gp.Longitude, gp.Altitude)
			return nil
		},
	}
	cmd.Flags().String("time", "", "epoch (RFC 3339, default now)")
	return cmd
}

func newTrackCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track <object>",
		Short: "ground track sampled evenly over a time span",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := e.timeFlag("start")
			if err != nil {
				return err
			}
			tr, err := e.tracker(cmd.Context())
			if err != nil {
				return err
			}
			track, err := tr.GroundTrack(cmd.Context(), args[0], start,
				e.v.GetFloat64("duration"), e.v.GetInt("samples"))
			if err != nil {
				return err
			}
			if e.jsonOutput() {
				return e.writeJSON(track)
			}
			for _, gp := range track {
				fmt.Fprintf(e.stdout, "%s  %9.4f  %9.4f  %9.3f\n",
					gp.Epoch.Format(time.RFC3339), gp.Latitude, gp.Longitude, gp.Altitude)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("start", "", "first sample (RFC 3339, default now)")
	f.Float64("duration", 90, "span in minutes")
	f.Int("samples", 91, "number of samples, endpoints included")
	return cmd
}

func newPassesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passes [object...]",
		Short: "rise, culmination and set events over an observer",
		Long:  "With no objects, every object in the element file is searched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			obs, err := observerFromFlags(e.v)
			if err != nil {
				return err
			}
			start, err := e.timeFlag("start")
			if err != nil {
				return err
			}
			tr, err := e.tracker(cmd.Context())
			if err != nil {
				return err
			}
			duration := time.Duration(e.v.GetFloat64("hours") * float64(time.Hour))
			results, err := tr.FindPassesAll(cmd.Context(), args, obs, start, duration, e.v.GetFloat64("threshold"))
			if err != nil {
				return err
			}
			if e.jsonOutput() {
				return e.writeJSON(passesJSON(results))
			}
			writePasses(e.stdout, results)
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64("lat", 51.05, "observer latitude in degrees")
	f.Float64("lon", -114.07, "observer longitude in degrees")
	f.Float64("alt", 1.045, "observer height above the ellipsoid in km")
	f.String("start", "", "window start (RFC 3339, default now)")
	f.Float64("hours", 24, "window length in hours")
	f.Float64("threshold", passes.DefaultThreshold, "elevation threshold in degrees")
	return cmd
}
