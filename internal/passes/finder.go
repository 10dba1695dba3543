package passes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/tle"
	"github.com/star/sattrack/internal/transform"
)

const (
	// DefaultThreshold is the elevation, in degrees, that defines a pass.
	DefaultThreshold = 10.0
	// DefaultStep is the coarse sampling interval.
	DefaultStep = 60 * time.Second
	// MaxStep bounds the coarse interval. A low-orbit object needs well
	// over ten minutes between two elevation maxima, and every sampled
	// local maximum is refined, so a five minute step cannot skip a pass.
	MaxStep = 5 * time.Minute
	// DefaultTimeTolerance is the bisection bound for rise and set times.
	DefaultTimeTolerance = time.Second
	// DefaultCulminationTolerance is the bracket width at which the
	// elevation maximum search stops.
	DefaultCulminationTolerance = 50 * time.Millisecond
)

var (
	// ErrInvalidOptions reports search options outside their allowed range.
	ErrInvalidOptions = errors.New("invalid pass search options")
	// ErrInvalidWindow reports a search window that ends before it starts.
	ErrInvalidWindow = errors.New("invalid search window")
)

// invPhi is 1/φ, the golden-section ratio.
var invPhi = (math.Sqrt(5) - 1) / 2

// Options controls the event search.
type Options struct {
	Threshold            float64       // degrees
	Step                 time.Duration // coarse sampling interval
	TimeTolerance        time.Duration // rise/set bisection bound
	CulminationTolerance time.Duration // maximum search bound
}

// DefaultOptions returns a 10° threshold with one-minute sampling.
func DefaultOptions() Options {
	return Options{
		Threshold:            DefaultThreshold,
		Step:                 DefaultStep,
		TimeTolerance:        DefaultTimeTolerance,
		CulminationTolerance: DefaultCulminationTolerance,
	}
}

// Validate checks every option against its allowed range.
func (o Options) Validate() error {
	switch {
	case math.IsNaN(o.Threshold) || o.Threshold < -90 || o.Threshold > 90:
		return fmt.Errorf("%w: threshold %v outside [-90, 90]", ErrInvalidOptions, o.Threshold)
	case o.Step <= 0 || o.Step > MaxStep:
		return fmt.Errorf("%w: step %v outside (0, %v]", ErrInvalidOptions, o.Step, MaxStep)
	case o.TimeTolerance <= 0 || o.TimeTolerance > o.Step:
		return fmt.Errorf("%w: time tolerance %v outside (0, %v]", ErrInvalidOptions, o.TimeTolerance, o.Step)
	case o.CulminationTolerance <= 0 || o.CulminationTolerance > o.Step:
		return fmt.Errorf("%w: culmination tolerance %v outside (0, %v]", ErrInvalidOptions, o.CulminationTolerance, o.Step)
	}
	return nil
}

// viewFunc evaluates the observer's view of the object at t.
type viewFunc func(t time.Time) (transform.TopocentricView, error)

// Finder locates rise, culmination and set events for one object as seen
// from one observer. It holds no mutable state.
type Finder struct {
	view viewFunc
	opts Options
}

// NewFinder builds a finder over an initialized propagator.
func NewFinder(m *propagation.Model, obs transform.Observer, opts Options) (*Finder, error) {
	view := func(t time.Time) (transform.TopocentricView, error) {
		sv, err := m.At(t)
		if err != nil {
			return transform.TopocentricView{}, err
		}
		return transform.ToTopocentric(sv, obs), nil
	}
	return newFinder(view, opts)
}

func newFinder(view viewFunc, opts Options) (*Finder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Finder{view: view, opts: opts}, nil
}

// Find searches [start, end] for the passes of es over obs.
func Find(ctx context.Context, es tle.ElementSet, obs transform.Observer, start, end time.Time, opts Options) ([]Pass, error) {
	m, err := propagation.New(es)
	if err != nil {
		return nil, err
	}
	f, err := NewFinder(m, obs, opts)
	if err != nil {
		return nil, err
	}
	return f.Passes(ctx, start, end)
}

// Passes runs Events and groups the result.
func (f *Finder) Passes(ctx context.Context, start, end time.Time) ([]Pass, error) {
	events, err := f.Events(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return GroupPasses(events), nil
}

// sample is one evaluated instant.
type sample struct {
	t    time.Time
	view transform.TopocentricView
}

func (s sample) el() float64 { return s.view.Elevation }

func (f *Finder) eval(t time.Time) (sample, error) {
	v, err := f.view(t)
	if err != nil {
		return sample{}, err
	}
	v.Epoch = t
	return sample{t: t, view: v}, nil
}

func (f *Finder) event(kind EventKind, s sample) PassEvent {
	return PassEvent{Kind: kind, Epoch: s.t, View: s.view}
}

// Events returns the rise, culmination and set events in [start, end] in
// chronological order.
//
// The window is sampled every Step. A crossing of the threshold between
// two samples is located by bisection. A sampled local maximum is refined
// by golden-section search: above the threshold it becomes the pass's
// culmination (the highest one wins), below it the refined peak may still
// reach the threshold and reveal a pass shorter than one step.
func (f *Finder) Events(ctx context.Context, start, end time.Time) ([]PassEvent, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidWindow,
			end.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339))
	}
	thr := f.opts.Threshold

	cur, err := f.eval(start)
	if err != nil {
		return nil, err
	}
	above := cur.el() >= thr

	var (
		events   []PassEvent
		prev     sample
		havePrev bool
		peak     *sample // best culmination of the open pass
	)

	for cur.t.Before(end) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pass search interrupted at %s: %w", cur.t.UTC().Format(time.RFC3339), err)
		}

		t := cur.t.Add(f.opts.Step)
		if t.After(end) {
			t = end
		}
		next, err := f.eval(t)
		if err != nil {
			return nil, err
		}

		// cur is a sampled local maximum if it is higher than next and not
		// lower than prev. Without prev the window opened on a descent and
		// the maximum, if any, lies between cur and next.
		localMax := next.el() < cur.el() && (!havePrev || cur.el() >= prev.el())
		lo := cur
		if havePrev {
			lo = prev
		}

		switch {
		case above && localMax:
			pk, err := f.maximize(lo, next, cur)
			if err != nil {
				return nil, err
			}
			if pk.t.After(lo.t) && (havePrev || pk.el() > lo.el()) {
				if peak == nil || pk.el() > peak.el() {
					peak = &pk
				}
			}
		case !above && localMax:
			pk, err := f.maximize(lo, next, cur)
			if err != nil {
				return nil, err
			}
			if pk.el() >= thr && pk.t.After(lo.t) && pk.t.Before(next.t) {
				rise, err := f.crossing(lo, pk)
				if err != nil {
					return nil, err
				}
				set, err := f.crossing(pk, next)
				if err != nil {
					return nil, err
				}
				events = append(events,
					f.event(Rise, rise),
					f.event(Culminate, pk),
					f.event(Set, set))
			}
		}

		switch {
		case !above && next.el() >= thr:
			rise, err := f.crossing(cur, next)
			if err != nil {
				return nil, err
			}
			events = append(events, f.event(Rise, rise))
			above = true
			peak = nil
		case above && next.el() < thr:
			set, err := f.crossing(cur, next)
			if err != nil {
				return nil, err
			}
			if peak != nil {
				events = append(events, f.event(Culminate, *peak))
			}
			events = append(events, f.event(Set, set))
			above = false
			peak = nil
		}

		prev, havePrev = cur, true
		cur = next
	}

	// Window closed mid-pass: report the maximum only if a descent was seen.
	if above && peak != nil {
		events = append(events, f.event(Culminate, *peak))
	}
	return events, nil
}

// crossing bisects [a, b], whose endpoints lie on opposite sides of the
// threshold, until the bracket is within TimeTolerance, and returns the
// sample at its midpoint.
func (f *Finder) crossing(a, b sample) (sample, error) {
	thr := f.opts.Threshold
	aAbove := a.el() >= thr
	for b.t.Sub(a.t) > f.opts.TimeTolerance {
		m, err := f.eval(a.t.Add(b.t.Sub(a.t) / 2))
		if err != nil {
			return sample{}, err
		}
		if (m.el() >= thr) == aAbove {
			a = m
		} else {
			b = m
		}
	}
	return f.eval(a.t.Add(b.t.Sub(a.t) / 2))
}

// maximize runs a golden-section search for the elevation maximum in
// [a, c] and returns the highest sample evaluated, including a, c and
// any known interior samples.
func (f *Finder) maximize(a, c sample, known ...sample) (sample, error) {
	best := a
	consider := func(s sample) {
		if s.el() > best.el() {
			best = s
		}
	}
	consider(c)
	for _, k := range known {
		consider(k)
	}

	at := func(x float64) time.Time {
		return a.t.Add(time.Duration(x * float64(time.Second)))
	}
	lo, hi := 0.0, c.t.Sub(a.t).Seconds()
	tol := f.opts.CulminationTolerance.Seconds()

	x1 := hi - invPhi*(hi-lo)
	x2 := lo + invPhi*(hi-lo)
	s1, err := f.eval(at(x1))
	if err != nil {
		return sample{}, err
	}
	s2, err := f.eval(at(x2))
	if err != nil {
		return sample{}, err
	}
	consider(s1)
	consider(s2)

	for hi-lo > tol {
		if s1.el() < s2.el() {
			lo = x1
			x1, s1 = x2, s2
			x2 = lo + invPhi*(hi-lo)
			if s2, err = f.eval(at(x2)); err != nil {
				return sample{}, err
			}
			consider(s2)
		} else {
			hi = x2
			x2, s2 = x1, s1
			x1 = hi - invPhi*(hi-lo)
			if s1, err = f.eval(at(x1)); err != nil {
				return sample{}, err
			}
			consider(s1)
		}
	}
	return best, nil
}
