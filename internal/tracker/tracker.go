// Package tracker answers position, ground track and pass queries against
// a caller-owned element set catalog. Multi-object queries fan out to a
// bounded worker pool and report each object's failure independently.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/star/sattrack/internal/metrics"
	"github.com/star/sattrack/internal/passes"
	"github.com/star/sattrack/internal/tle"
	"github.com/star/sattrack/internal/transform"
)

const tracerName = "github.com/star/sattrack/internal/tracker"

const (
	// MaxSamples bounds the number of ground track samples per request.
	MaxSamples = 10000
	// MaxSearchDuration bounds the pass search window.
	MaxSearchDuration = 30 * 24 * time.Hour
)

var (
	// ErrNoCatalog is returned before the first successful refresh.
	ErrNoCatalog = errors.New("no element sets loaded")
	// ErrInvalidRequest reports query parameters outside their allowed range.
	ErrInvalidRequest = errors.New("invalid request")
)

// Config holds tracker settings.
type Config struct {
	Workers int            // multi-object fan-out
	Passes  passes.Options // threshold is overridden per query
}

// DefaultConfig returns one worker per CPU and the default pass search options.
func DefaultConfig() Config {
	return Config{
		Workers: runtime.NumCPU(),
		Passes:  passes.DefaultOptions(),
	}
}

// ObjectPasses is one object's result in a multi-object pass search.
type ObjectPasses struct {
	Object tle.ObjectID  `json:"object"`
	Passes []passes.Pass `json:"passes"`
	Err    error         `json:"-"`
}

// ObjectPosition is one object's result in a catalog-wide position query.
type ObjectPosition struct {
	Object   tle.ObjectID            `json:"object"`
	Position transform.GeodeticPoint `json:"position"`
	Err      error                   `json:"-"`
}

// Tracker serves queries against the current catalog snapshot.
type Tracker struct {
	catalog *tle.Catalog
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time

	models   atomic.Pointer[modelCache]
	modelsMu sync.Mutex // serializes cache rebuilds
}

// New creates a tracker over catalog.
func New(catalog *tle.Catalog, cfg Config, logger *slog.Logger) *Tracker {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	metrics.SetWorkers(cfg.Workers)
	return &Tracker{
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
}

// Catalog returns the underlying catalog.
func (t *Tracker) Catalog() *tle.Catalog {
	return t.catalog
}

// Refresh replaces the catalog contents from r. Each rejected record is
// logged and counted; the previous snapshot is kept if r yields nothing
// usable.
func (t *Tracker) Refresh(ctx context.Context, r io.Reader, source string) (*tle.RefreshReport, error) {
	_, span := t.tracer.Start(ctx, "tracker.Refresh", trace.WithAttributes(attribute.String("source", source)))
	defer span.End()

	start := time.Now()
	report, err := t.catalog.Refresh(r, source, t.now())
	if report != nil {
		for _, re := range report.Rejected {
			metrics.RecordRejected(re.Reason())
			t.logger.Warn("element record rejected",
				"source", source,
				"line", re.Line,
				"field", re.Field,
				"name", re.Name,
				"error", re.Err,
			)
		}
	}
	if err != nil {
		metrics.RecordRefresh(0, err)
		fail(span, err)
		t.logger.Error("catalog refresh failed", "source", source, "error", err)
		return report, err
	}

	metrics.RecordRefresh(report.Loaded, nil)
	span.SetAttributes(
		attribute.Int("loaded", report.Loaded),
		attribute.Int("rejected", len(report.Rejected)),
		attribute.Int64("generation", int64(report.Generation)),
	)
	t.logger.Info("catalog refreshed",
		"source", source,
		"loaded", report.Loaded,
		"superseded", report.Superseded,
		"rejected", len(report.Rejected),
		"generation", report.Generation,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

// ListObjects returns the identifiers of all objects in the current
// snapshot, or nil if nothing has been loaded.
func (t *Tracker) ListObjects() []tle.ObjectID {
	snap := t.catalog.Snapshot()
	if snap == nil {
		return nil
	}
	return snap.List()
}

func (t *Tracker) snapshot() (*tle.Snapshot, error) {
	snap := t.catalog.Snapshot()
	if snap == nil {
		return nil, ErrNoCatalog
	}
	if age := t.catalog.AgeSeconds(t.now()); age >= 0 {
		metrics.SetCatalogAge(time.Duration(age * float64(time.Second)))
	}
	return snap, nil
}

// resolve looks key up in the current snapshot and returns its element set
// and the cached propagator.
func (t *Tracker) resolve(key string) (tle.ElementSet, *modelCache, error) {
	snap, err := t.snapshot()
	if err != nil {
		return tle.ElementSet{}, nil, err
	}
	es, err := snap.Lookup(key)
	if err != nil {
		return tle.ElementSet{}, nil, err
	}
	return es, t.cachedModels(snap), nil
}

// CurrentPosition returns the subpoint of the object named by key at now.
func (t *Tracker) CurrentPosition(ctx context.Context, key string, now time.Time) (transform.GeodeticPoint, error) {
	_, span := t.tracer.Start(ctx, "tracker.CurrentPosition", trace.WithAttributes(
		attribute.String("object", key),
		attribute.String("epoch", now.UTC().Format(time.RFC3339Nano)),
	))
	defer span.End()

	start := time.Now()
	gp, err := t.position(key, now)
	if err != nil {
		metrics.RecordPropagation(time.Since(start), 0, 1)
		fail(span, err)
		return transform.GeodeticPoint{}, err
	}
	metrics.RecordPropagation(time.Since(start), 1, 0)
	return gp, nil
}

func (t *Tracker) position(key string, now time.Time) (transform.GeodeticPoint, error) {
	es, cache, err := t.resolve(key)
	if err != nil {
		return transform.GeodeticPoint{}, err
	}
	m, err := cache.model(es)
	if err != nil {
		return transform.GeodeticPoint{}, err
	}
	sv, err := m.At(now)
	if err != nil {
		return transform.GeodeticPoint{}, err
	}
	return transform.ToGeodetic(sv)
}

// sampleEpochs spaces count epochs evenly over [start, start+duration],
// both ends included. A single sample is start itself.
func sampleEpochs(start time.Time, durationMinutes float64, count int) ([]time.Time, error) {
	if count < 1 || count > MaxSamples {
		return nil, fmt.Errorf("%w: sample count %d outside [1, %d]", ErrInvalidRequest, count, MaxSamples)
	}
	if durationMinutes < 0 || math.IsNaN(durationMinutes) || durationMinutes > MaxSearchDuration.Minutes() {
		return nil, fmt.Errorf("%w: duration %v minutes", ErrInvalidRequest, durationMinutes)
	}
	if count == 1 {
		return []time.Time{start}, nil
	}
	total := time.Duration(durationMinutes * float64(time.Minute))
	if total < time.Duration(count-1) {
		return nil, fmt.Errorf("%w: %d samples need a positive duration", ErrInvalidRequest, count)
	}
	epochs := make([]time.Time, count)
	for i := range epochs {
		epochs[i] = start.Add(time.Duration(float64(total) * float64(i) / float64(count-1)))
	}
	return epochs, nil
}

// GroundTrack returns sampleCount subpoints evenly spaced over
// [start, start+durationMinutes].
func (t *Tracker) GroundTrack(ctx context.Context, key string, start time.Time, durationMinutes float64, sampleCount int) ([]transform.GeodeticPoint, error) {
	_, span := t.tracer.Start(ctx, "tracker.GroundTrack", trace.WithAttributes(
		attribute.String("object", key),
		attribute.Float64("duration_minutes", durationMinutes),
		attribute.Int("samples", sampleCount),
	))
	defer span.End()

	began := time.Now()
	track, err := t.groundTrack(key, start, durationMinutes, sampleCount)
	if err != nil {
		metrics.RecordPropagation(time.Since(began), 0, 1)
		fail(span, err)
		return nil, err
	}
	metrics.RecordPropagation(time.Since(began), 1, 0)
	return track, nil
}

func (t *Tracker) groundTrack(key string, start time.Time, durationMinutes float64, sampleCount int) ([]transform.GeodeticPoint, error) {
	epochs, err := sampleEpochs(start, durationMinutes, sampleCount)
	if err != nil {
		return nil, err
	}
	es, cache, err := t.resolve(key)
	if err != nil {
		return nil, err
	}
	m, err := cache.model(es)
	if err != nil {
		return nil, err
	}
	states, err := m.Batch(epochs)
	if err != nil {
		return nil, err
	}
	track := make([]transform.GeodeticPoint, len(states))
	for i, sv := range states {
		if track[i], err = transform.ToGeodetic(sv); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return track, nil
}

func (t *Tracker) passOptions(threshold float64) passes.Options {
	opts := t.cfg.Passes
	opts.Threshold = threshold
	return opts
}

func checkWindow(duration time.Duration) error {
	if duration <= 0 || duration > MaxSearchDuration {
		return fmt.Errorf("%w: search duration %v outside (0, %v]", ErrInvalidRequest, duration, MaxSearchDuration)
	}
	return nil
}

// FindPasses returns the passes of the object named by key over observer
// in [start, start+duration].
func (t *Tracker) FindPasses(ctx context.Context, key string, observer transform.Observer, start time.Time, duration time.Duration, threshold float64) ([]passes.Pass, error) {
	ctx, span := t.tracer.Start(ctx, "tracker.FindPasses", trace.WithAttributes(
		attribute.String("object", key),
		attribute.String("duration", duration.String()),
		attribute.Float64("threshold_deg", threshold),
	))
	defer span.End()

	if err := checkWindow(duration); err != nil {
		fail(span, err)
		return nil, err
	}
	opts := t.passOptions(threshold)
	if err := opts.Validate(); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		fail(span, err)
		return nil, err
	}

	es, cache, err := t.resolve(key)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	found, err := t.searchObject(ctx, cache, es, observer, start, start.Add(duration), opts)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("passes", len(found)))
	return found, nil
}

// searchObject runs one pass search and records it.
func (t *Tracker) searchObject(ctx context.Context, cache *modelCache, es tle.ElementSet, observer transform.Observer, start, end time.Time, opts passes.Options) ([]passes.Pass, error) {
	began := time.Now()
	found, err := func() ([]passes.Pass, error) {
		m, err := cache.model(es)
		if err != nil {
			return nil, err
		}
		f, err := passes.NewFinder(m, observer, opts)
		if err != nil {
			return nil, err
		}
		return f.Passes(ctx, start, end)
	}()
	metrics.RecordPassSearch(time.Since(began), len(found), err)
	return found, err
}

// FindPassesAll runs FindPasses for each key, or for every object in the
// catalog when keys is empty. A failure for one object is reported in its
// result and does not affect the others.
func (t *Tracker) FindPassesAll(ctx context.Context, keys []string, observer transform.Observer, start time.Time, duration time.Duration, threshold float64) ([]ObjectPasses, error) {
	ctx, span := t.tracer.Start(ctx, "tracker.FindPassesAll", trace.WithAttributes(
		attribute.Int("objects", len(keys)),
		attribute.String("duration", duration.String()),
		attribute.Float64("threshold_deg", threshold),
	))
	defer span.End()

	if err := checkWindow(duration); err != nil {
		fail(span, err)
		return nil, err
	}
	opts := t.passOptions(threshold)
	if err := opts.Validate(); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		fail(span, err)
		return nil, err
	}
	snap, err := t.snapshot()
	if err != nil {
		fail(span, err)
		return nil, err
	}
	cache := t.cachedModels(snap)

	type target struct {
		key string
		es  tle.ElementSet
		err error
	}
	var targets []target
	if len(keys) == 0 {
		for _, es := range snap.Sets() {
			targets = append(targets, target{key: es.Name, es: es})
		}
	} else {
		for _, k := range keys {
			es, err := snap.Lookup(k)
			targets = append(targets, target{key: k, es: es, err: err})
		}
	}

	end := start.Add(duration)
	results := runPool(ctx, t.cfg.Workers, len(targets),
		func(ctx context.Context, i int) ObjectPasses {
			tg := targets[i]
			if tg.err != nil {
				return ObjectPasses{Object: tle.ObjectID{Name: tg.key}, Err: tg.err}
			}
			found, err := t.searchObject(ctx, cache, tg.es, observer, start, end, opts)
			return ObjectPasses{Object: tg.es.ID(), Passes: found, Err: err}
		},
		func(i int, err error) ObjectPasses {
			tg := targets[i]
			id := tg.es.ID()
			if tg.err != nil {
				id = tle.ObjectID{Name: tg.key}
			}
			return ObjectPasses{Object: id, Err: fmt.Errorf("pass search cancelled: %w", err)}
		},
	)

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			t.logger.Warn("pass search failed",
				"norad_id", r.Object.CatalogNumber,
				"name", r.Object.Name,
				"error", r.Err,
			)
		}
	}
	span.SetAttributes(attribute.Int("failed", failed))
	return results, nil
}

// Positions returns the subpoint of every object in the catalog at now.
func (t *Tracker) Positions(ctx context.Context, now time.Time) ([]ObjectPosition, error) {
	ctx, span := t.tracer.Start(ctx, "tracker.Positions", trace.WithAttributes(
		attribute.String("epoch", now.UTC().Format(time.RFC3339Nano)),
	))
	defer span.End()

	snap, err := t.snapshot()
	if err != nil {
		fail(span, err)
		return nil, err
	}
	cache := t.cachedModels(snap)
	sets := snap.Sets()

	began := time.Now()
	results := runPool(ctx, t.cfg.Workers, len(sets),
		func(_ context.Context, i int) ObjectPosition {
			es := sets[i]
			r := ObjectPosition{Object: es.ID()}
			m, err := cache.model(es)
			if err != nil {
				r.Err = err
				return r
			}
			sv, err := m.At(now)
			if err != nil {
				r.Err = err
				return r
			}
			r.Position, r.Err = transform.ToGeodetic(sv)
			return r
		},
		func(i int, err error) ObjectPosition {
			return ObjectPosition{Object: sets[i].ID(), Err: fmt.Errorf("propagation cancelled: %w", err)}
		},
	)

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			t.logger.Warn("propagation failed", "norad_id", r.Object.CatalogNumber, "error", r.Err)
		}
	}
	metrics.RecordPropagation(time.Since(began), len(results)-failed, failed)
	t.logger.Debug("propagation complete",
		"success", len(results)-failed,
		"errors", failed,
		"duration_ms", time.Since(began).Milliseconds(),
	)
	span.SetAttributes(attribute.Int("objects", len(results)), attribute.Int("failed", failed))
	return results, nil
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
