package propagation

import (
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/sattrack/internal/tle"
)

// Deep-space objects (period of 225 minutes or more) need the lunar-solar
// and resonance terms of SDP4. Those are delegated to go-satellite, which
// carries the full reference implementation.
//
// Propagate() takes Satellite by value and whole-second UTC components, so
// library error codes are not visible and sub-second offsets are applied
// here as a first-order correction from the whole-second state.

// DeepSpacePeriodMinutes is the period at and above which SDP4 is used.
const DeepSpacePeriodMinutes = 225.0

type deepSpace struct {
	sat satellite.Satellite
}

// newDeepSpace initializes the library model. The library reads fixed
// columns without trimming and calls log.Fatal on anything it cannot parse,
// so it is fed lines re-encoded from the decoded elements rather than the
// source text.
func newDeepSpace(es tle.ElementSet) (*deepSpace, error) {
	line1, line2, err := libraryLines(es)
	if err != nil {
		return nil, fmt.Errorf("%w: %d: %v", ErrModelLimits, es.CatalogNumber, err)
	}
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: sdp4 init failed for %d: code=%d %s", ErrModelLimits, es.CatalogNumber, sat.Error, sat.ErrorStr)
	}
	return &deepSpace{sat: sat}, nil
}

// libraryLines encodes canonical data lines for the library. Alpha-5
// catalog numbers are replaced by zero since the library only reads digits;
// the catalog number plays no part in propagation.
func libraryLines(es tle.ElementSet) (string, string, error) {
	if es.CatalogNumber > 99999 {
		es.CatalogNumber = 0
	}
	return es.Encode()
}

func (d *deepSpace) propagate(t time.Time) (pos, vel [3]float64, err error) {
	t = t.UTC()
	whole := t.Truncate(time.Second)
	frac := t.Sub(whole).Seconds()

	p, v := satellite.Propagate(d.sat, whole.Year(), int(whole.Month()), whole.Day(), whole.Hour(), whole.Minute(), whole.Second())
	pos = [3]float64{p.X + v.X*frac, p.Y + v.Y*frac, p.Z + v.Z*frac}
	vel = [3]float64{v.X, v.Y, v.Z}

	sv := StateVector{Position: pos, Velocity: vel}
	if !sv.finite() {
		return pos, vel, fmt.Errorf("%w: sdp4 output is NaN/Inf", ErrConvergence)
	}
	// The library reports its own failures as a zero state.
	if r := sv.Radius(); r < earthRadiusKm || math.IsNaN(r) {
		return pos, vel, fmt.Errorf("%w: sdp4 radius %.1f km", ErrDecayed, r)
	}
	return pos, vel, nil
}
