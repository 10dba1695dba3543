package tle

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of the catalog at one refresh.
type Snapshot struct {
	source     string
	loadedAt   time.Time
	generation uint64
	epochRange EpochRange
	sets       []ElementSet
	byNumber   map[int]int
	byName     map[string]int
}

// Source describes where the snapshot's records came from.
func (s *Snapshot) Source() string { return s.source }

// LoadedAt is the time the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Generation increments with every successful refresh.
func (s *Snapshot) Generation() uint64 { return s.generation }

// EpochRange returns the oldest and newest element set epochs.
func (s *Snapshot) EpochRange() EpochRange { return s.epochRange }

// Len returns the number of objects in the snapshot.
func (s *Snapshot) Len() int { return len(s.sets) }

// List returns the identifiers of all objects in input order.
func (s *Snapshot) List() []ObjectID {
	ids := make([]ObjectID, len(s.sets))
	for i, es := range s.sets {
		ids[i] = es.ID()
	}
	return ids
}

// Sets returns a copy of all element sets in input order.
func (s *Snapshot) Sets() []ElementSet {
	out := make([]ElementSet, len(s.sets))
	copy(out, s.sets)
	return out
}

// Lookup finds an object by catalog number or by name. Names match
// case-insensitively after trimming.
func (s *Snapshot) Lookup(key string) (ElementSet, error) {
	key = strings.TrimSpace(key)
	if n, err := strconv.Atoi(key); err == nil {
		if i, ok := s.byNumber[n]; ok {
			return s.sets[i], nil
		}
	} else if n, rerr := catalogNumber(1, key); rerr == nil && len(key) == 5 {
		if i, ok := s.byNumber[n]; ok {
			return s.sets[i], nil
		}
	}
	if i, ok := s.byName[nameKey(key)]; ok {
		return s.sets[i], nil
	}
	return ElementSet{}, fmt.Errorf("%w: %q", ErrObjectNotFound, key)
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RefreshReport summarizes one catalog refresh.
type RefreshReport struct {
	Loaded     int            `json:"loaded"`
	Superseded int            `json:"superseded"`
	Rejected   []*RecordError `json:"-"`
	Generation uint64         `json:"generation"`
}

// Catalog holds the current set of element sets. Readers get immutable
// snapshots and never block; refreshes are serialized.
type Catalog struct {
	current    atomic.Pointer[Snapshot]
	mu         sync.Mutex // serializes refreshes
	generation uint64
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Snapshot returns the current snapshot, or nil if nothing has been loaded.
func (c *Catalog) Snapshot() *Snapshot {
	return c.current.Load()
}

// AgeSeconds returns the age of the current snapshot in seconds.
// Returns -1 if no snapshot is loaded.
func (c *Catalog) AgeSeconds(now time.Time) float64 {
	s := c.current.Load()
	if s == nil {
		return -1
	}
	return now.Sub(s.loadedAt).Seconds()
}

// Refresh parses r and replaces the catalog contents. When a catalog number
// appears more than once, the element set with the newest epoch wins. The
// previous snapshot stays in place if r yields no usable records.
func (c *Catalog) Refresh(r io.Reader, source string, now time.Time) (*RefreshReport, error) {
	res, err := Parse(r)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	report := &RefreshReport{Rejected: res.Errors}
	if len(res.Sets) == 0 {
		return report, fmt.Errorf("refreshing from %s: %w (%d rejected)", source, ErrEmptyCatalog, len(res.Errors))
	}

	snap := &Snapshot{
		source:   source,
		loadedAt: now,
		byNumber: make(map[int]int, len(res.Sets)),
		byName:   make(map[string]int, len(res.Sets)),
	}
	for _, es := range res.Sets {
		if i, ok := snap.byNumber[es.CatalogNumber]; ok {
			report.Superseded++
			if es.Epoch.After(snap.sets[i].Epoch) {
				snap.sets[i] = es
			}
			continue
		}
		snap.byNumber[es.CatalogNumber] = len(snap.sets)
		snap.sets = append(snap.sets, es)
	}

	for i, es := range snap.sets {
		if key := nameKey(es.Name); key != "" {
			if _, ok := snap.byName[key]; !ok {
				snap.byName[key] = i
			}
		}
		if i == 0 || es.Epoch.Before(snap.epochRange.Min) {
			snap.epochRange.Min = es.Epoch
		}
		if i == 0 || es.Epoch.After(snap.epochRange.Max) {
			snap.epochRange.Max = es.Epoch
		}
	}

	c.generation++
	snap.generation = c.generation
	c.current.Store(snap)

	report.Loaded = len(snap.sets)
	report.Generation = snap.generation
	return report, nil
}
