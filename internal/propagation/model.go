package propagation

import (
	"fmt"
	"time"

	"github.com/star/sattrack/internal/tle"
)

// Model is an initialized propagator for one element set. Initialization
// runs once; evaluating the model at an epoch only computes the
// time-dependent terms. A Model is immutable and safe for concurrent use.
type Model struct {
	elements tle.ElementSet
	near     *nearEarth
	deep     *deepSpace
}

// New initializes the propagator for es. Element sets that the model cannot
// represent, or that have already decayed at their own epoch, are rejected.
func New(es tle.ElementSet) (*Model, error) {
	if es.Eccentricity < 0 || es.Eccentricity >= 1 {
		return nil, fmt.Errorf("%w: eccentricity %g for %d", ErrModelLimits, es.Eccentricity, es.CatalogNumber)
	}
	if es.MeanMotion <= 0 {
		return nil, fmt.Errorf("%w: mean motion %g for %d", ErrModelLimits, es.MeanMotion, es.CatalogNumber)
	}

	near := initNearEarth(es)
	if near.periodMinutes() >= DeepSpacePeriodMinutes {
		deep, err := newDeepSpace(es)
		if err != nil {
			return nil, err
		}
		m := &Model{elements: es, deep: deep}
		if _, err := m.At(es.Epoch); err != nil {
			return nil, fmt.Errorf("initializing %d: %w", es.CatalogNumber, err)
		}
		return m, nil
	}

	m := &Model{elements: es, near: near}
	if _, _, err := near.propagate(0); err != nil {
		return nil, fmt.Errorf("initializing %d: %w", es.CatalogNumber, err)
	}
	return m, nil
}

// Elements returns the element set the model was built from.
func (m *Model) Elements() tle.ElementSet {
	return m.elements
}

// DeepSpace reports whether the model uses the deep-space formulation.
func (m *Model) DeepSpace() bool {
	return m.deep != nil
}

// At returns the state at t.
func (m *Model) At(t time.Time) (StateVector, error) {
	var (
		pos, vel [3]float64
		err      error
	)
	if m.deep != nil {
		pos, vel, err = m.deep.propagate(t)
	} else {
		pos, vel, err = m.near.propagate(t.Sub(m.elements.Epoch).Minutes())
	}
	if err != nil {
		return StateVector{}, fmt.Errorf("propagating %d to %s: %w", m.elements.CatalogNumber, t.UTC().Format(time.RFC3339), err)
	}
	sv := StateVector{Epoch: t, Position: pos, Velocity: vel}
	if !sv.finite() {
		return StateVector{}, fmt.Errorf("propagating %d to %s: %w: non-finite state", m.elements.CatalogNumber, t.UTC().Format(time.RFC3339), ErrConvergence)
	}
	return sv, nil
}

// Batch evaluates the model at each epoch. Epochs must be strictly
// increasing. The first failure aborts the batch.
func (m *Model) Batch(epochs []time.Time) ([]StateVector, error) {
	out := make([]StateVector, 0, len(epochs))
	for i, t := range epochs {
		if i > 0 && !t.After(epochs[i-1]) {
			return nil, fmt.Errorf("epoch %d (%s): %w", i, t.Format(time.RFC3339Nano), ErrUnorderedEpochs)
		}
		sv, err := m.At(t)
		if err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, nil
}

// Propagate computes the state of es at t.
func Propagate(es tle.ElementSet, t time.Time) (StateVector, error) {
	m, err := New(es)
	if err != nil {
		return StateVector{}, err
	}
	return m.At(t)
}

// PropagateBatch computes the states of es at each of the strictly
// increasing epochs, initializing the model once.
func PropagateBatch(es tle.ElementSet, epochs []time.Time) ([]StateVector, error) {
	m, err := New(es)
	if err != nil {
		return nil, err
	}
	return m.Batch(epochs)
}
