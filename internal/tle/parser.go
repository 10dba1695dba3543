package tle

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// LineLength is the fixed width of a TLE data line.
const LineLength = 69

// EpochYearPivot splits two-digit epoch years: values below it are in the
// 2000s, the rest in the 1900s.
const EpochYearPivot = 57

// alpha5Letters maps the leading letter of an Alpha-5 catalog number to
// its ten-thousands value, starting at 10. I and O are not used.
const alpha5Letters = "ABCDEFGHJKLMNPQRSTUVWXYZ"

// Parse reads 2-line or 3-line element records from r. A record that fails
// to parse is reported in the result and does not stop the scan. The error
// return is reserved for failures of the reader itself.
func Parse(r io.Reader) (*ParseResult, error) {
	scanner := bufio.NewScanner(r)
	res := &ParseResult{}

	var (
		name, line1         string
		nameLine, line1Line int
		haveName, haveLine1 bool
		lineNo              int
	)

	reject := func(err *RecordError) {
		res.Errors = append(res.Errors, err)
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n\t ")
		if strings.TrimSpace(line) == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "1 "):
			if haveLine1 {
				reject(orphan(line1Line, name, "line 1 without line 2"))
			}
			line1, line1Line, haveLine1 = line, lineNo, true

		case strings.HasPrefix(line, "2 "):
			if !haveLine1 {
				reject(orphan(lineNo, name, "line 2 without line 1"))
				name, haveName = "", false
				continue
			}
			es, err := ParseLines(name, line1, line)
			if err != nil {
				re := err.(*RecordError)
				// ParseLines numbers lines within the record.
				if re.Line == 2 {
					re.Line = lineNo
				} else {
					re.Line = line1Line
				}
				re.Name = name
				reject(re)
			} else {
				res.Sets = append(res.Sets, es)
			}
			name, haveName = "", false
			haveLine1 = false

		default:
			if haveLine1 {
				reject(orphan(line1Line, name, "line 1 without line 2"))
				haveLine1 = false
			} else if haveName {
				reject(orphan(nameLine, name, "name line without data lines"))
			}
			name, nameLine, haveName = cleanName(line), lineNo, true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading element records: %w", err)
	}

	if haveLine1 {
		reject(orphan(line1Line, name, "line 1 without line 2"))
	} else if haveName {
		reject(orphan(nameLine, name, "name line without data lines"))
	}
	return res, nil
}

func orphan(line int, name, msg string) *RecordError {
	err := malformed(line, "", "%s", msg)
	err.Name = name
	return err
}

// cleanName strips the "0 " prefix used by 3LE files.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0 ") {
		s = strings.TrimSpace(s[2:])
	}
	return s
}

// ParseLines decodes a single record. The returned error, if any, is a
// *RecordError whose Line is 1 or 2.
func ParseLines(name, line1, line2 string) (ElementSet, error) {
	line1 = strings.TrimRight(line1, "\r\n\t ")
	line2 = strings.TrimRight(line2, "\r\n\t ")

	if err := checkLine(1, line1); err != nil {
		return ElementSet{}, err
	}
	if err := checkLine(2, line2); err != nil {
		return ElementSet{}, err
	}

	es := ElementSet{
		Name:  cleanName(name),
		Line1: line1,
		Line2: line2,
	}

	var err *RecordError
	num1, err := catalogNumber(1, line1[2:7])
	if err != nil {
		return ElementSet{}, err
	}
	num2, err := catalogNumber(2, line2[2:7])
	if err != nil {
		return ElementSet{}, err
	}
	if num1 != num2 {
		return ElementSet{}, malformed(2, "catalog number", "line 1 has %d, line 2 has %d", num1, num2)
	}
	es.CatalogNumber = num1
	es.Classification = line1[7]
	es.Designator = strings.TrimSpace(line1[9:17])

	if es.Epoch, err = epochField(line1[18:20], line1[20:32]); err != nil {
		return ElementSet{}, err
	}
	if es.MeanMotionDot, err = floatField(1, "mean motion dot", line1[33:43]); err != nil {
		return ElementSet{}, err
	}
	if es.MeanMotionDDot, err = exponentField(1, "mean motion ddot", line1[44:52]); err != nil {
		return ElementSet{}, err
	}
	if es.BStar, err = exponentField(1, "bstar", line1[53:61]); err != nil {
		return ElementSet{}, err
	}
	if es.ElementSetNumber, err = intField(1, "element set number", line1[64:68]); err != nil {
		return ElementSet{}, err
	}

	var deg float64
	if deg, err = floatField(2, "inclination", line2[8:16]); err != nil {
		return ElementSet{}, err
	}
	if deg < 0 || deg > 180 {
		return ElementSet{}, malformed(2, "inclination", "%.4f out of range [0,180]", deg)
	}
	es.Inclination = deg * math.Pi / 180

	if deg, err = floatField(2, "right ascension", line2[17:25]); err != nil {
		return ElementSet{}, err
	}
	es.RightAscension = normalizeAngle(deg * math.Pi / 180)

	if es.Eccentricity, err = decimalField(2, "eccentricity", line2[26:33]); err != nil {
		return ElementSet{}, err
	}

	if deg, err = floatField(2, "argument of perigee", line2[34:42]); err != nil {
		return ElementSet{}, err
	}
	es.ArgumentOfPerigee = normalizeAngle(deg * math.Pi / 180)

	if deg, err = floatField(2, "mean anomaly", line2[43:51]); err != nil {
		return ElementSet{}, err
	}
	es.MeanAnomaly = normalizeAngle(deg * math.Pi / 180)

	if es.MeanMotion, err = floatField(2, "mean motion", line2[52:63]); err != nil {
		return ElementSet{}, err
	}
	if es.MeanMotion <= 0 {
		return ElementSet{}, malformed(2, "mean motion", "must be positive, got %g", es.MeanMotion)
	}
	if es.RevolutionNumber, err = intField(2, "revolution number", line2[63:68]); err != nil {
		return ElementSet{}, err
	}

	return es, nil
}

// checkLine validates length, line number and checksum of one data line.
func checkLine(n int, line string) *RecordError {
	if len(line) != LineLength {
		return malformed(n, "length", "line %d has %d columns, want %d", n, len(line), LineLength)
	}
	if line[0] != byte('0'+n) || line[1] != ' ' {
		return malformed(n, "line number", "line %d starts with %q", n, line[:2])
	}
	want := line[LineLength-1]
	if want < '0' || want > '9' {
		return malformed(n, "checksum", "checksum column holds %q", want)
	}
	if got := Checksum(line); got != int(want-'0') {
		return &RecordError{
			Line:  n,
			Field: "checksum",
			Err:   fmt.Errorf("%w: line %d computes %d, record says %c", ErrChecksumMismatch, n, got, want),
		}
	}
	return nil
}

// Checksum returns the modulo-10 checksum of the first 68 columns of a
// data line: digits count their value, a minus sign counts one, everything
// else counts zero.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line) && i < LineLength-1; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// catalogNumber decodes a five-column catalog number, including the
// Alpha-5 form where a leading letter stands for 10..33 ten-thousands.
func catalogNumber(n int, s string) (int, *RecordError) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, malformed(n, "catalog number", "empty")
	}
	prefix := 0
	if c := s[0]; c >= 'A' && c <= 'Z' {
		idx := strings.IndexByte(alpha5Letters, c)
		if idx < 0 || len(s) != 5 {
			return 0, malformed(n, "catalog number", "invalid alpha-5 value %q", s)
		}
		prefix = (idx + 10) * 10000
		s = s[1:]
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, malformed(n, "catalog number", "invalid value %q", s)
	}
	return prefix + v, nil
}

// epochField converts the YY and DDD.DDDDDDDD columns to a UTC time.
func epochField(yy, days string) (time.Time, *RecordError) {
	year, err := strconv.Atoi(strings.TrimSpace(yy))
	if err != nil || year < 0 || year > 99 {
		return time.Time{}, malformed(1, "epoch year", "invalid value %q", yy)
	}
	if year < EpochYearPivot {
		year += 2000
	} else {
		year += 1900
	}

	// Day 1.0 is midnight at the start of January 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	yearDays := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC).YearDay()

	dayOfYear, err := strconv.ParseFloat(strings.TrimSpace(days), 64)
	if err != nil || dayOfYear < 1 || dayOfYear >= float64(yearDays+1) {
		return time.Time{}, malformed(1, "epoch day", "invalid value %q for %d", days, year)
	}
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}

func floatField(n int, field, s string) (float64, *RecordError) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, malformed(n, field, "invalid value %q", s)
	}
	return v, nil
}

func intField(n int, field, s string) (int, *RecordError) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, malformed(n, field, "invalid value %q", s)
	}
	return v, nil
}

// decimalField decodes a field with an implied leading decimal point,
// e.g. "0006703" -> 0.0006703.
func decimalField(n int, field, s string) (float64, *RecordError) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, ".+- ") {
		return 0, malformed(n, field, "invalid value %q", s)
	}
	v, err := strconv.ParseFloat("0."+s, 64)
	if err != nil {
		return 0, malformed(n, field, "invalid value %q", s)
	}
	return v, nil
}

// exponentField decodes the packed [±]NNNNN±E notation with an implied
// leading decimal point, e.g. " 10270-3" -> 0.10270e-3.
func exponentField(n int, field, s string) (float64, *RecordError) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if len(s) < 3 {
		return 0, malformed(n, field, "invalid value %q", s)
	}
	mantissa, exp := strings.TrimSpace(s[:len(s)-2]), s[len(s)-2:]
	if exp[0] != '-' && exp[0] != '+' {
		return 0, malformed(n, field, "missing exponent sign in %q", s)
	}
	m, err := strconv.ParseUint(mantissa, 10, 64)
	if err != nil {
		return 0, malformed(n, field, "invalid mantissa %q", mantissa)
	}
	e, err := strconv.Atoi(exp)
	if err != nil {
		return 0, malformed(n, field, "invalid exponent %q", exp)
	}
	v := float64(m) / math.Pow10(len(mantissa))
	return sign * v * math.Pow10(e), nil
}

func normalizeAngle(rad float64) float64 {
	rad = math.Mod(rad, 2*math.Pi)
	if rad < 0 {
		rad += 2 * math.Pi
	}
	return rad
}
