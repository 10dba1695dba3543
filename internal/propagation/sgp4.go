package propagation

import (
	"fmt"
	"math"

	"github.com/star/sattrack/internal/tle"
)

// WGS-72 constants, the gravity model SGP4 element sets are fitted with.
const (
	earthRadiusKm = 6378.135
	earthMuKm3s2  = 398600.8
	j2            = 0.001082616
	j3            = -0.00000253881
	j4            = -0.00000165597
	j3oj2         = j3 / j2
	twoThirds     = 2.0 / 3.0
	twoPi         = 2 * math.Pi
)

var (
	// xke is sqrt(GM) in earth radii^1.5 per minute.
	xke = 60.0 / math.Sqrt(earthRadiusKm*earthRadiusKm*earthRadiusKm/earthMuKm3s2)
	// vkmpersec converts earth radii per minute to km/s.
	vkmpersec = earthRadiusKm * xke / 60.0
)

const (
	// KeplerTolerance is the convergence bound, in radians, on the Newton
	// step for the eccentric longitude.
	KeplerTolerance = 1e-12
	// MaxKeplerIterations bounds the Newton iteration. Near-circular orbits
	// converge in three or four steps.
	MaxKeplerIterations = 20
	// keplerMaxStep damps the first Newton steps for high eccentricities.
	keplerMaxStep = 0.95
)

// nearEarth holds the time-independent SGP4 terms for one element set.
type nearEarth struct {
	// epoch elements, recovered mean motion in rad/min
	no, ecco, inclo, nodeo, argpo, mo, bstar float64

	isimp                               bool
	aycof, xlcof, con41, x1mth2, x7thm1 float64
	cc1, cc4, cc5                       float64
	d2, d3, d4                          float64
	delmo, eta, sinmao                  float64
	omgcof, xmcof, nodecf               float64
	t2cof, t3cof, t4cof, t5cof          float64
	mdot, argpdot, nodedot              float64
}

// periodMinutes is the orbital period from the recovered mean motion.
func (s *nearEarth) periodMinutes() float64 {
	return twoPi / s.no
}

// initNearEarth recovers the original mean motion from the Kozai value in
// the element set and computes the secular and drag coefficients.
func initNearEarth(es tle.ElementSet) *nearEarth {
	s := &nearEarth{
		ecco:  es.Eccentricity,
		inclo: es.Inclination,
		nodeo: es.RightAscension,
		argpo: es.ArgumentOfPerigee,
		mo:    es.MeanAnomaly,
		bstar: es.BStar,
	}
	noKozai := es.MeanMotion * twoPi / 1440.0

	eccsq := s.ecco * s.ecco
	omeosq := 1 - eccsq
	rteosq := math.Sqrt(omeosq)
	cosio := math.Cos(s.inclo)
	cosio2 := cosio * cosio

	// Un-Kozai the mean motion.
	ak := math.Pow(xke/noKozai, twoThirds)
	d1 := 0.75 * j2 * (3*cosio2 - 1) / (rteosq * omeosq)
	del := d1 / (ak * ak)
	adel := ak * (1 - del*del - del*(1.0/3.0+134*del*del/81))
	del = d1 / (adel * adel)
	s.no = noKozai / (1 + del)

	ao := math.Pow(xke/s.no, twoThirds)
	sinio := math.Sin(s.inclo)
	po := ao * omeosq
	con42 := 1 - 5*cosio2
	s.con41 = -con42 - cosio2 - cosio2
	posq := po * po
	rp := ao * (1 - s.ecco)

	// Perigee below 220 km: drop the higher-order drag terms.
	s.isimp = rp < 220/earthRadiusKm+1

	sfour := 78/earthRadiusKm + 1
	qzms24 := math.Pow((120-78)/earthRadiusKm, 4)
	perige := (rp - 1) * earthRadiusKm
	if perige < 156 {
		sfour = perige - 78
		if perige < 98 {
			sfour = 20
		}
		qzms24 = math.Pow((120-sfour)/earthRadiusKm, 4)
		sfour = sfour/earthRadiusKm + 1
	}

	pinvsq := 1 / posq
	tsi := 1 / (ao - sfour)
	s.eta = ao * s.ecco * tsi
	etasq := s.eta * s.eta
	eeta := s.ecco * s.eta
	psisq := math.Abs(1 - etasq)
	coef := qzms24 * math.Pow(tsi, 4)
	coef1 := coef / math.Pow(psisq, 3.5)

	cc2 := coef1 * s.no * (ao*(1+1.5*etasq+eeta*(4+etasq)) +
		0.375*j2*tsi/psisq*s.con41*(8+3*etasq*(8+etasq)))
	s.cc1 = s.bstar * cc2
	cc3 := 0.0
	if s.ecco > 1e-4 {
		cc3 = -2 * coef * tsi * j3oj2 * s.no * sinio / s.ecco
	}
	s.x1mth2 = 1 - cosio2
	s.cc4 = 2 * s.no * coef1 * ao * omeosq *
		(s.eta*(2+0.5*etasq) + s.ecco*(0.5+2*etasq) -
			j2*tsi/(ao*psisq)*(-3*s.con41*(1-2*eeta+etasq*(1.5-0.5*eeta))+
				0.75*s.x1mth2*(2*etasq-eeta*(1+etasq))*math.Cos(2*s.argpo)))
	s.cc5 = 2 * coef1 * ao * omeosq * (1 + 2.75*(etasq+eeta) + eeta*etasq)

	cosio4 := cosio2 * cosio2
	temp1 := 1.5 * j2 * pinvsq * s.no
	temp2 := 0.5 * temp1 * j2 * pinvsq
	temp3 := -0.46875 * j4 * pinvsq * pinvsq * s.no
	s.mdot = s.no + 0.5*temp1*rteosq*s.con41 + 0.0625*temp2*rteosq*(13-78*cosio2+137*cosio4)
	s.argpdot = -0.5*temp1*con42 + 0.0625*temp2*(7-114*cosio2+395*cosio4) +
		temp3*(3-36*cosio2+49*cosio4)
	xhdot1 := -temp1 * cosio
	s.nodedot = xhdot1 + (0.5*temp2*(4-19*cosio2)+2*temp3*(3-7*cosio2))*cosio

	s.omgcof = s.bstar * cc3 * math.Cos(s.argpo)
	if s.ecco > 1e-4 {
		s.xmcof = -twoThirds * coef * s.bstar / eeta
	}
	s.nodecf = 3.5 * omeosq * xhdot1 * s.cc1
	s.t2cof = 1.5 * s.cc1

	// Avoid the singularity at 180 degrees inclination.
	if math.Abs(cosio+1) > 1.5e-12 {
		s.xlcof = -0.25 * j3oj2 * sinio * (3 + 5*cosio) / (1 + cosio)
	} else {
		s.xlcof = -0.25 * j3oj2 * sinio * (3 + 5*cosio) / 1.5e-12
	}
	s.aycof = -0.5 * j3oj2 * sinio
	s.delmo = math.Pow(1+s.eta*math.Cos(s.mo), 3)
	s.sinmao = math.Sin(s.mo)
	s.x7thm1 = 7*cosio2 - 1

	if !s.isimp {
		cc1sq := s.cc1 * s.cc1
		s.d2 = 4 * ao * tsi * cc1sq
		temp := s.d2 * tsi * s.cc1 / 3
		s.d3 = (17*ao + sfour) * temp
		s.d4 = 0.5 * temp * ao * tsi * (221*ao + 31*sfour) * s.cc1
		s.t3cof = s.d2 + 2*cc1sq
		s.t4cof = 0.25 * (3*s.d3 + s.cc1*(12*s.d2+10*cc1sq))
		s.t5cof = 0.2 * (3*s.d4 + 12*s.cc1*s.d3 + 6*s.d2*s.d2 + 15*cc1sq*(2*s.d2+cc1sq))
	}
	return s
}

// propagate evaluates the model tsince minutes after the element epoch and
// returns TEME position (km) and velocity (km/s).
func (s *nearEarth) propagate(tsince float64) (pos, vel [3]float64, err error) {
	// Secular gravity and atmospheric drag.
	xmdf := s.mo + s.mdot*tsince
	argpdf := s.argpo + s.argpdot*tsince
	nodedf := s.nodeo + s.nodedot*tsince
	argpm := argpdf
	mm := xmdf
	t2 := tsince * tsince
	nodem := nodedf + s.nodecf*t2
	tempa := 1 - s.cc1*tsince
	tempe := s.bstar * s.cc4 * tsince
	templ := s.t2cof * t2

	if !s.isimp {
		delomg := s.omgcof * tsince
		delm := s.xmcof * (math.Pow(1+s.eta*math.Cos(xmdf), 3) - s.delmo)
		temp := delomg + delm
		mm = xmdf + temp
		argpm = argpdf - temp
		t3 := t2 * tsince
		t4 := t3 * tsince
		tempa = tempa - s.d2*t2 - s.d3*t3 - s.d4*t4
		tempe = tempe + s.bstar*s.cc5*(math.Sin(mm)-s.sinmao)
		templ = templ + s.t3cof*t3 + t4*(s.t4cof+tsince*s.t5cof)
	}

	nm := s.no
	if nm <= 0 {
		return pos, vel, fmt.Errorf("%w: mean motion %g", ErrModelLimits, nm)
	}
	am := math.Pow(xke/nm, twoThirds) * tempa * tempa
	nm = xke / math.Pow(am, 1.5)
	em := s.ecco - tempe
	if em >= 1 || em < -0.001 || am < 0.95 {
		return pos, vel, fmt.Errorf("%w: mean eccentricity %g, semi-major axis %g er at %.1f min", ErrModelLimits, em, am, tsince)
	}
	if em < 1e-6 {
		em = 1e-6
	}
	mm += s.no * templ
	xlm := mm + argpm + nodem

	nodem = math.Mod(nodem, twoPi)
	argpm = math.Mod(argpm, twoPi)
	xlm = math.Mod(xlm, twoPi)
	mm = math.Mod(xlm-argpm-nodem, twoPi)

	sinip, cosip := math.Sin(s.inclo), math.Cos(s.inclo)

	// Long-period periodics.
	axnl := em * math.Cos(argpm)
	temp := 1 / (am * (1 - em*em))
	aynl := em*math.Sin(argpm) + temp*s.aycof
	xl := mm + argpm + nodem + temp*s.xlcof*axnl

	u := math.Mod(xl-nodem, twoPi)
	eo1, err := solveKepler(u, axnl, aynl)
	if err != nil {
		return pos, vel, fmt.Errorf("at %.1f min: %w", tsince, err)
	}
	sineo1, coseo1 := math.Sin(eo1), math.Cos(eo1)

	// Short-period preliminary quantities.
	ecose := axnl*coseo1 + aynl*sineo1
	esine := axnl*sineo1 - aynl*coseo1
	el2 := axnl*axnl + aynl*aynl
	pl := am * (1 - el2)
	if pl < 0 {
		return pos, vel, fmt.Errorf("%w: semi-latus rectum %g at %.1f min", ErrModelLimits, pl, tsince)
	}
	rl := am * (1 - ecose)
	rdotl := math.Sqrt(am) * esine / rl
	rvdotl := math.Sqrt(pl) / rl
	betal := math.Sqrt(1 - el2)
	temp = esine / (1 + betal)
	sinu := am / rl * (sineo1 - aynl - axnl*temp)
	cosu := am / rl * (coseo1 - axnl + aynl*temp)
	su := math.Atan2(sinu, cosu)
	sin2u := (cosu + cosu) * sinu
	cos2u := 1 - 2*sinu*sinu
	temp = 1 / pl
	temp1 := 0.5 * j2 * temp
	temp2 := temp1 * temp

	// Short-period periodics.
	mrt := rl*(1-1.5*temp2*betal*s.con41) + 0.5*temp1*s.x1mth2*cos2u
	su -= 0.25 * temp2 * s.x7thm1 * sin2u
	xnode := nodem + 1.5*temp2*cosip*sin2u
	xinc := s.inclo + 1.5*temp2*cosip*sinip*cos2u
	mvt := rdotl - nm*temp1*s.x1mth2*sin2u/xke
	rvdot := rvdotl + nm*temp1*(s.x1mth2*cos2u+1.5*s.con41)/xke

	// Orientation vectors.
	sinsu, cossu := math.Sin(su), math.Cos(su)
	snod, cnod := math.Sin(xnode), math.Cos(xnode)
	sini, cosi := math.Sin(xinc), math.Cos(xinc)
	xmx := -snod * cosi
	xmy := cnod * cosi
	ux := xmx*sinsu + cnod*cossu
	uy := xmy*sinsu + snod*cossu
	uz := sini * sinsu
	vx := xmx*cossu - cnod*sinsu
	vy := xmy*cossu - snod*sinsu
	vz := sini * cossu

	pos = [3]float64{
		mrt * ux * earthRadiusKm,
		mrt * uy * earthRadiusKm,
		mrt * uz * earthRadiusKm,
	}
	vel = [3]float64{
		(mvt*ux + rvdot*vx) * vkmpersec,
		(mvt*uy + rvdot*vy) * vkmpersec,
		(mvt*uz + rvdot*vz) * vkmpersec,
	}

	if mrt < 1 {
		return pos, vel, fmt.Errorf("%w: radius %.1f km at %.1f min", ErrDecayed, mrt*earthRadiusKm, tsince)
	}
	return pos, vel, nil
}

// solveKepler solves Kepler's equation for the eccentric longitude given
// the mean longitude u and the eccentricity vector components.
func solveKepler(u, axnl, aynl float64) (float64, error) {
	eo1 := u
	step := math.Inf(1)
	for i := 0; i < MaxKeplerIterations; i++ {
		sin, cos := math.Sin(eo1), math.Cos(eo1)
		step = (u - aynl*cos + axnl*sin - eo1) / (1 - cos*axnl - sin*aynl)
		if math.Abs(step) >= keplerMaxStep {
			step = math.Copysign(keplerMaxStep, step)
		}
		eo1 += step
		if math.Abs(step) < KeplerTolerance {
			return eo1, nil
		}
	}
	return 0, fmt.Errorf("%w: kepler step %g after %d iterations", ErrConvergence, step, MaxKeplerIterations)
}
