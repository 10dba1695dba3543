package propagation

import (
	"errors"
	"math"
	"time"
)

// StateVector is a position and velocity in the TEME Earth-centered
// inertial frame at a specific epoch.
type StateVector struct {
	Epoch    time.Time
	Position [3]float64 // km
	Velocity [3]float64 // km/s
}

// Radius returns the distance from the Earth's center in km.
func (s StateVector) Radius() float64 {
	return math.Sqrt(s.Position[0]*s.Position[0] + s.Position[1]*s.Position[1] + s.Position[2]*s.Position[2])
}

// Speed returns the inertial speed in km/s.
func (s StateVector) Speed() float64 {
	return math.Sqrt(s.Velocity[0]*s.Velocity[0] + s.Velocity[1]*s.Velocity[1] + s.Velocity[2]*s.Velocity[2])
}

func (s StateVector) finite() bool {
	for i := 0; i < 3; i++ {
		if math.IsNaN(s.Position[i]) || math.IsInf(s.Position[i], 0) ||
			math.IsNaN(s.Velocity[i]) || math.IsInf(s.Velocity[i], 0) {
			return false
		}
	}
	return true
}

var (
	// ErrConvergence reports an iterative solution that failed to converge
	// within its bound, or that produced non-finite values.
	ErrConvergence = errors.New("numerical solution did not converge")
	// ErrModelLimits reports elements outside the range the model accepts,
	// such as an eccentricity that drifts out of [0,1) under drag.
	ErrModelLimits = errors.New("elements outside model limits")
	// ErrDecayed reports an orbit whose radius fell below the Earth's surface.
	ErrDecayed = errors.New("orbit decayed")
	// ErrUnorderedEpochs is returned by batch propagation when the requested
	// epochs are not strictly increasing.
	ErrUnorderedEpochs = errors.New("epochs must be strictly increasing")
)
