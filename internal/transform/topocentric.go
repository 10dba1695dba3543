package transform

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/star/sattrack/internal/propagation"
)

// WGS-84 ellipsoid parameters, in km.
const (
	wgs84A  = 6378.137              // semi-major axis
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
	wgs84B  = wgs84A * (1 - wgs84F) // semi-minor axis
)

const (
	// GeodeticTolerance bounds the final latitude update, in radians
	// (about 6 µm on the ground).
	GeodeticTolerance = 1e-12
	// MaxGeodeticIterations bounds the latitude iteration. Converges in
	// under ten steps for anything above the Earth's core.
	MaxGeodeticIterations = 20
)

// ErrInvalidObserver is returned for observer coordinates outside
// latitude [-90,90], longitude [-180,180] or non-finite values.
var ErrInvalidObserver = errors.New("invalid observer")

// GeodeticPoint is a position relative to the WGS-84 ellipsoid.
type GeodeticPoint struct {
	Epoch     time.Time `json:"epoch"`
	Latitude  float64   `json:"latitude"`  // degrees, [-90, 90]
	Longitude float64   `json:"longitude"` // degrees, [-180, 180)
	Altitude  float64   `json:"altitude"`  // km above the ellipsoid
}

// ToGeodetic converts an inertial state to its geodetic subpoint and altitude.
func ToGeodetic(sv propagation.StateVector) (GeodeticPoint, error) {
	ecef := InertialToECEF(sv)
	if !ValidateECEF(ecef) {
		return GeodeticPoint{}, fmt.Errorf("%w: earth-fixed position %v km is not a plausible orbit", propagation.ErrModelLimits, ecef.Position)
	}
	lat, lon, alt, err := ECEFToGeodetic(ecef.Position)
	if err != nil {
		return GeodeticPoint{}, err
	}
	return GeodeticPoint{Epoch: sv.Epoch, Latitude: lat, Longitude: lon, Altitude: alt}, nil
}

// ECEFToGeodetic converts an Earth-fixed position (km) to geodetic latitude
// and longitude in degrees and height above the ellipsoid in km, using
// Bowring's fixed-point latitude iteration.
func ECEFToGeodetic(r [3]float64) (lat, lon, alt float64, err error) {
	x, y, z := r[0], r[1], r[2]
	p := math.Sqrt(x*x + y*y)

	// Bowring's initial estimate.
	phi := math.Atan2(z, p*(1-wgs84E2))
	converged := false
	for i := 0; i < MaxGeodeticIterations; i++ {
		sinPhi := math.Sin(phi)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinPhi*sinPhi)
		next := math.Atan2(z+wgs84E2*n*sinPhi, p)
		delta := math.Abs(next - phi)
		phi = next
		if delta < GeodeticTolerance {
			converged = true
			break
		}
	}
	if !converged {
		return 0, 0, 0, fmt.Errorf("geodetic latitude for (%.3f, %.3f, %.3f) km: %w", x, y, z, propagation.ErrConvergence)
	}

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinPhi*sinPhi)
	if math.Abs(cosPhi) > 1e-10 {
		alt = p/cosPhi - n
	} else {
		alt = math.Abs(z)/math.Abs(sinPhi) - n*(1-wgs84E2)
	}

	return phi * 180 / math.Pi, normalizeLongitude(math.Atan2(y, x) * 180 / math.Pi), alt, nil
}

// normalizeLongitude maps degrees into [-180, 180).
func normalizeLongitude(deg float64) float64 {
	deg = math.Mod(deg+180, 360)
	if deg < 0 {
		deg += 360
	}
	return deg - 180
}

// Observer is a location on or above the Earth's surface.
type Observer struct {
	Latitude  float64 `json:"latitude"`  // degrees
	Longitude float64 `json:"longitude"` // degrees
	Height    float64 `json:"height"`    // km above the ellipsoid

	ecef [3]float64
}

// NewObserver validates the coordinates and precomputes the observer's
// Earth-fixed position so it can be reused across many lookups.
func NewObserver(latDeg, lonDeg, heightKm float64) (Observer, error) {
	for _, v := range []float64{latDeg, lonDeg, heightKm} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Observer{}, fmt.Errorf("%w: non-finite coordinate (%v, %v, %v)", ErrInvalidObserver, latDeg, lonDeg, heightKm)
		}
	}
	if latDeg < -90 || latDeg > 90 {
		return Observer{}, fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidObserver, latDeg)
	}
	if lonDeg < -180 || lonDeg > 180 {
		return Observer{}, fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidObserver, lonDeg)
	}
	o := Observer{Latitude: latDeg, Longitude: lonDeg, Height: heightKm}
	o.ecef = geodeticToECEF(latDeg, lonDeg, heightKm)
	return o, nil
}

// ECEF returns the observer's Earth-fixed position in km.
func (o Observer) ECEF() [3]float64 {
	if o.ecef == [3]float64{} {
		return geodeticToECEF(o.Latitude, o.Longitude, o.Height)
	}
	return o.ecef
}

func geodeticToECEF(latDeg, lonDeg, heightKm float64) [3]float64 {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return [3]float64{
		(n + heightKm) * cosLat * cosLon,
		(n + heightKm) * cosLat * sinLon,
		(n*(1-wgs84E2) + heightKm) * sinLat,
	}
}

// TopocentricView is the direction and distance from an observer to an object.
type TopocentricView struct {
	Epoch     time.Time `json:"epoch"`
	Azimuth   float64   `json:"azimuth"`   // degrees, 0 = North, clockwise, [0, 360)
	Elevation float64   `json:"elevation"` // degrees, 0 = horizon, 90 = zenith
	Range     float64   `json:"range"`     // km
}

// ToTopocentric computes the view of an inertial state from obs.
func ToTopocentric(sv propagation.StateVector, obs Observer) TopocentricView {
	ecef := InertialToECEF(sv)
	view := LookAngles(obs, ecef.Position)
	view.Epoch = sv.Epoch
	return view
}

// LookAngles computes azimuth, elevation and range from an observer to an
// Earth-fixed position in km.
//
// Uses the SEZ (South-East-Zenith) topocentric rotation per Vallado Section 4.4.
func LookAngles(obs Observer, sat [3]float64) TopocentricView {
	o := obs.ECEF()
	rx := sat[0] - o[0]
	ry := sat[1] - o[1]
	rz := sat[2] - o[2]

	lat := obs.Latitude * math.Pi / 180.0
	lon := obs.Longitude * math.Pi / 180.0
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)

	south := sinLat*cosLon*rx + sinLat*sinLon*ry - cosLat*rz
	east := -sinLon*rx + cosLon*ry
	zenith := cosLat*cosLon*rx + cosLat*sinLon*ry + sinLat*rz

	rng := math.Sqrt(south*south + east*east + zenith*zenith)
	el := math.Asin(zenith / rng)

	// North is -South in SEZ.
	az := math.Atan2(east, -south) * 180.0 / math.Pi
	if az < 0 {
		az += 360
	}
	if az >= 360 {
		az -= 360
	}

	return TopocentricView{
		Azimuth:   az,
		Elevation: el * 180.0 / math.Pi,
		Range:     rng,
	}
}
