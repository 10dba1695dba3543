package tracker

import (
	"time"

	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/tle"
)

// modelCache holds initialized propagators for one catalog generation.
// Immutable after construction; safe for concurrent reads.
type modelCache struct {
	generation uint64
	models     map[int]*propagation.Model
	errs       map[int]error // initialization failures
}

// cachedModels returns the propagators for snap, rebuilding them when the
// catalog generation has changed (double-checked locking).
func (t *Tracker) cachedModels(snap *tle.Snapshot) *modelCache {
	if c := t.models.Load(); c != nil && c.generation == snap.Generation() {
		return c
	}

	t.modelsMu.Lock()
	defer t.modelsMu.Unlock()

	if c := t.models.Load(); c != nil && c.generation == snap.Generation() {
		return c
	}

	start := time.Now()
	c := &modelCache{
		generation: snap.Generation(),
		models:     make(map[int]*propagation.Model, snap.Len()),
		errs:       make(map[int]error),
	}
	for _, es := range snap.Sets() {
		m, err := propagation.New(es)
		if err != nil {
			t.logger.Warn("propagator init failed", "norad_id", es.CatalogNumber, "name", es.Name, "error", err)
			c.errs[es.CatalogNumber] = err
			continue
		}
		c.models[es.CatalogNumber] = m
	}

	t.logger.Info("propagator cache rebuilt",
		"cached", len(c.models),
		"skipped", len(c.errs),
		"generation", c.generation,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	// A request holding an older snapshot must not replace a newer cache.
	if cur := t.models.Load(); cur == nil || cur.generation <= c.generation {
		t.models.Store(c)
	}
	return c
}

// model returns the propagator for es, or the error that prevented its
// initialization.
func (c *modelCache) model(es tle.ElementSet) (*propagation.Model, error) {
	if err, ok := c.errs[es.CatalogNumber]; ok {
		return nil, err
	}
	return c.models[es.CatalogNumber], nil
}
