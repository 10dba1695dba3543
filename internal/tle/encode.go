package tle

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Encode renders the element set as two canonical fixed-width data lines
// with fresh checksums. Fields are written in the padded layout that strict
// column readers expect, whatever spacing the source record used.
func (e ElementSet) Encode() (line1, line2 string, err error) {
	num, err := encodeCatalogNumber(e.CatalogNumber)
	if err != nil {
		return "", "", err
	}
	yy, days, err := encodeEpoch(e.Epoch)
	if err != nil {
		return "", "", err
	}
	ndot, err := encodeMeanMotionDot(e.MeanMotionDot)
	if err != nil {
		return "", "", err
	}
	nddot, err := encodeExponent("mean motion ddot", e.MeanMotionDDot)
	if err != nil {
		return "", "", err
	}
	bstar, err := encodeExponent("bstar", e.BStar)
	if err != nil {
		return "", "", err
	}
	class := e.Classification
	if class == 0 || class == ' ' {
		class = 'U'
	}

	ecc := math.Round(e.Eccentricity * 1e7)
	if ecc < 0 || ecc > 9999999 {
		return "", "", encodeError("eccentricity", "%g does not fit seven digits", e.Eccentricity)
	}
	motion := fmt.Sprintf("%11.8f", e.MeanMotion)
	if len(motion) != 11 {
		return "", "", encodeError("mean motion", "%g does not fit the column", e.MeanMotion)
	}

	line1 = fmt.Sprintf("1 %s%c %-8.8s %s%s %s %s %s 0 %4d",
		num, class, e.Designator, yy, days, ndot, nddot, bstar, e.ElementSetNumber%10000)
	line2 = fmt.Sprintf("2 %s %s %s %07d %s %s %s%5d",
		num, encodeAngle(e.Inclination), encodeAngle(e.RightAscension), int(ecc),
		encodeAngle(e.ArgumentOfPerigee), encodeAngle(e.MeanAnomaly), motion, e.RevolutionNumber%100000)

	if len(line1) != LineLength-1 || len(line2) != LineLength-1 {
		return "", "", encodeError("", "encoded lines are %d and %d columns", len(line1), len(line2))
	}
	return withChecksum(line1), withChecksum(line2), nil
}

func withChecksum(line string) string {
	return line + string(rune('0'+Checksum(line)))
}

func encodeError(field, format string, args ...any) error {
	if field == "" {
		return fmt.Errorf("%w: %s", ErrMalformedRecord, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%w: %s: %s", ErrMalformedRecord, field, fmt.Sprintf(format, args...))
}

func encodeCatalogNumber(n int) (string, error) {
	if n >= 0 && n <= 99999 {
		return fmt.Sprintf("%05d", n), nil
	}
	idx := n/10000 - 10
	if n < 0 || idx >= len(alpha5Letters) {
		return "", encodeError("catalog number", "%d out of range", n)
	}
	return fmt.Sprintf("%c%04d", alpha5Letters[idx], n%10000), nil
}

func encodeEpoch(t time.Time) (string, string, error) {
	t = t.UTC()
	year := t.Year()
	if year < 1900+EpochYearPivot || year >= 2000+EpochYearPivot {
		return "", "", encodeError("epoch", "year %d has no two-digit form", year)
	}
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	days := fmt.Sprintf("%012.8f", 1+t.Sub(start).Hours()/24)
	if len(days) != 12 {
		return "", "", encodeError("epoch", "day %s does not fit the column", days)
	}
	return fmt.Sprintf("%02d", year%100), days, nil
}

// encodeMeanMotionDot writes the signed decimal with no leading zero,
// e.g. -0.00002182 -> "-.00002182".
func encodeMeanMotionDot(v float64) (string, error) {
	sign := " "
	if v < 0 {
		sign, v = "-", -v
	}
	s := fmt.Sprintf("%.8f", v)
	if !strings.HasPrefix(s, "0.") {
		return "", encodeError("mean motion dot", "%g does not fit the column", v)
	}
	return sign + s[1:], nil
}

// encodeExponent writes the packed [±]NNNNN±E notation read by exponentField.
func encodeExponent(field string, v float64) (string, error) {
	sign := " "
	if v < 0 {
		sign, v = "-", -v
	}
	if v == 0 || math.IsNaN(v) {
		return " 00000-0", nil
	}
	exp := int(math.Floor(math.Log10(v))) + 1
	mantissa := int(math.Round(v / math.Pow10(exp) * 1e5))
	if mantissa >= 100000 {
		mantissa /= 10
		exp++
	}
	switch {
	case exp < -9:
		return " 00000-0", nil
	case exp > 9:
		return "", encodeError(field, "%g does not fit the column", v)
	}
	return fmt.Sprintf("%s%05d%+d", sign, mantissa, exp), nil
}

func encodeAngle(rad float64) string {
	deg := math.Mod(rad*180/math.Pi, 360)
	if deg < 0 {
		deg += 360
	}
	return fmt.Sprintf("%8.4f", deg)
}
