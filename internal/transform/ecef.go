// Package transform converts inertial state vectors into Earth-fixed,
// geodetic and observer-relative coordinates.
//
// The propagator's TEME frame is rotated into the Earth-fixed frame by GMST
// alone (TEME → PEF ≈ ECEF). Polar motion and the equation of the equinoxes
// are ignored, which costs at most ~50 m, well inside the accuracy of the
// element sets themselves.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"

	"github.com/star/sattrack/internal/propagation"
)

// ECEF is a position and velocity in the Earth-fixed frame.
type ECEF struct {
	Position [3]float64 // km
	Velocity [3]float64 // km/s
}

// InertialToECEF rotates an inertial state into the Earth-fixed frame at
// the state's own epoch.
func InertialToECEF(sv propagation.StateVector) ECEF {
	return InertialToECEFWithAngle(sv, EarthRotationAngle(sv.Epoch))
}

// InertialToECEFWithAngle rotates using a precomputed rotation angle (radians).
// Useful when converting many objects at the same time.
//
// Position transform: r_ECEF = R3(θ) * r_TEME
// Velocity transform: v_ECEF = R3(θ) * v_TEME - ω × r_ECEF
func InertialToECEFWithAngle(sv propagation.StateVector, theta float64) ECEF {
	cosG := math.Cos(theta)
	sinG := math.Sin(theta)
	r, v := sv.Position, sv.Velocity

	x := r[0]*cosG + r[1]*sinG
	y := -r[0]*sinG + r[1]*cosG
	z := r[2]

	// ω × r_ECEF = [-ω*y, ω*x, 0]
	vx := v[0]*cosG + v[1]*sinG + OmegaEarth*y
	vy := -v[0]*sinG + v[1]*cosG - OmegaEarth*x
	vz := v[2]

	return ECEF{
		Position: [3]float64{x, y, z},
		Velocity: [3]float64{vx, vy, vz},
	}
}

// ValidateECEF checks that an Earth-fixed position is physically reasonable
// for an orbiting object: finite and above the surface.
func ValidateECEF(e ECEF) bool {
	for _, c := range e.Position {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	p := e.Position
	mag := math.Sqrt(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])

	// Polar radius up to roughly lunar distance.
	return mag >= wgs84B && mag <= 500000
}
