package tle

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

// Well-known ISS element set (epoch 2008-09-20).
const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
)

// Vanguard 1, the SGP4 verification case.
const (
	vanguardLine1 = "1 00005U 58002B   00179.78495062  .00000023  00000-0  28098-4 0  4753"
	vanguardLine2 = "2 00005  34.2682 348.7242 1859667 331.7664  19.3264 10.82419157413667"
)

const (
	alpha5Line1 = "1 A0001U 21001A   21001.50000000  .00000000  00000-0  00000-0 0  9994"
	alpha5Line2 = "2 A0001  53.0000 100.0000 0001500  90.0000 270.0000 15.06000000    08"
)

func TestParseLinesISS(t *testing.T) {
	es, err := ParseLines(issName, issLine1, issLine2)
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}

	if es.CatalogNumber != 25544 {
		t.Errorf("CatalogNumber = %d, want 25544", es.CatalogNumber)
	}
	if es.Name != issName {
		t.Errorf("Name = %q, want %q", es.Name, issName)
	}
	if es.Designator != "98067A" {
		t.Errorf("Designator = %q, want 98067A", es.Designator)
	}
	if es.Classification != 'U' {
		t.Errorf("Classification = %c, want U", es.Classification)
	}

	// 264.51782528 days into 2008 (leap year): Sept 20, 12:25:40.104 UTC.
	wantEpoch := time.Date(2008, 9, 20, 12, 25, 40, 104192000, time.UTC)
	if d := es.Epoch.Sub(wantEpoch); d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("Epoch = %v, want %v", es.Epoch, wantEpoch)
	}

	checks := []struct {
		name      string
		got, want float64
	}{
		{"MeanMotionDot", es.MeanMotionDot, -0.00002182},
		{"MeanMotionDDot", es.MeanMotionDDot, 0},
		{"BStar", es.BStar, -0.11606e-4},
		{"Inclination", es.Inclination, 51.6416 * math.Pi / 180},
		{"RightAscension", es.RightAscension, 247.4627 * math.Pi / 180},
		{"Eccentricity", es.Eccentricity, 0.0006703},
		{"ArgumentOfPerigee", es.ArgumentOfPerigee, 130.5360 * math.Pi / 180},
		{"MeanAnomaly", es.MeanAnomaly, 325.0288 * math.Pi / 180},
		{"MeanMotion", es.MeanMotion, 15.72125391},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-12 {
			t.Errorf("%s = %.12g, want %.12g", c.name, c.got, c.want)
		}
	}

	if es.ElementSetNumber != 292 {
		t.Errorf("ElementSetNumber = %d, want 292", es.ElementSetNumber)
	}
	if es.RevolutionNumber != 56353 {
		t.Errorf("RevolutionNumber = %d, want 56353", es.RevolutionNumber)
	}
	if p := es.PeriodMinutes(); math.Abs(p-91.596) > 0.01 {
		t.Errorf("PeriodMinutes = %.3f, want ~91.596", p)
	}
}

func TestParseLinesVanguard(t *testing.T) {
	es, err := ParseLines("", vanguardLine1, vanguardLine2)
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	if es.CatalogNumber != 5 {
		t.Errorf("CatalogNumber = %d, want 5", es.CatalogNumber)
	}
	if es.Epoch.Year() != 2000 {
		t.Errorf("epoch year = %d, want 2000", es.Epoch.Year())
	}
	if math.Abs(es.BStar-0.28098e-4) > 1e-15 {
		t.Errorf("BStar = %g, want 2.8098e-05", es.BStar)
	}
	if math.Abs(es.Eccentricity-0.1859667) > 1e-12 {
		t.Errorf("Eccentricity = %g, want 0.1859667", es.Eccentricity)
	}
}

func TestParseLinesAlpha5(t *testing.T) {
	es, err := ParseLines("", alpha5Line1, alpha5Line2)
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	if es.CatalogNumber != 100001 {
		t.Errorf("CatalogNumber = %d, want 100001", es.CatalogNumber)
	}
}

func TestChecksum(t *testing.T) {
	for _, line := range []string{issLine1, issLine2, vanguardLine1, vanguardLine2} {
		want := int(line[68] - '0')
		if got := Checksum(line); got != want {
			t.Errorf("Checksum(%q) = %d, want %d", line, got, want)
		}
	}
}

// TestChecksumMismatch flips the checksum digit and expects a checksum error
// naming the offending line.
func TestChecksumMismatch(t *testing.T) {
	tests := []struct {
		name     string
		l1, l2   string
		wantLine int
	}{
		{"line1", flipLast(issLine1), issLine2, 1},
		{"line2", issLine1, flipLast(issLine2), 2},
		{"body", strings.Replace(issLine1, "98067A", "98068A", 1), issLine2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLines(issName, tt.l1, tt.l2)
			if !errors.Is(err, ErrChecksumMismatch) {
				t.Fatalf("err = %v, want ErrChecksumMismatch", err)
			}
			var re *RecordError
			if !errors.As(err, &re) {
				t.Fatalf("err is %T, want *RecordError", err)
			}
			if re.Line != tt.wantLine || re.Field != "checksum" {
				t.Errorf("line/field = %d/%q, want %d/checksum", re.Line, re.Field, tt.wantLine)
			}
			if re.Reason() != "checksum" {
				t.Errorf("Reason() = %q, want checksum", re.Reason())
			}
		})
	}
}

func flipLast(line string) string {
	d := line[68] - '0'
	return line[:68] + string(rune('0'+(d+1)%10))
}

// rewriteChecksum rewrites the final column so only field validation can fail.
func rewriteChecksum(line string) string {
	return line[:68] + string(rune('0'+Checksum(line)))
}

func TestParseLinesMalformed(t *testing.T) {
	tests := []struct {
		name      string
		l1, l2    string
		wantField string
	}{
		{"short line", issLine1[:60], issLine2, "length"},
		{"swapped lines", issLine2, issLine1, "line number"},
		{"catalog mismatch", issLine1, rewriteChecksum(strings.Replace(issLine2, "25544", "25545", 1)), "catalog number"},
		{"bad inclination", issLine1, rewriteChecksum(strings.Replace(issLine2, " 51.6416", " 5x.6416", 1)), "inclination"},
		{"inclination out of range", issLine1, rewriteChecksum(strings.Replace(issLine2, " 51.6416", "181.6416", 1)), "inclination"},
		{"bad eccentricity", issLine1, rewriteChecksum(strings.Replace(issLine2, "0006703", "00-6703", 1)), "eccentricity"},
		{"bad bstar", rewriteChecksum(strings.Replace(issLine1, "-11606-4", "-11606x4", 1)), issLine2, "bstar"},
		{"bad epoch", rewriteChecksum(strings.Replace(issLine1, "08264.51782528", "08400.51782528", 1)), issLine2, "epoch day"},
		{"zero mean motion", issLine1, rewriteChecksum(strings.Replace(issLine2, "15.72125391", " 0.00000000", 1)), "mean motion"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLines(issName, tt.l1, tt.l2)
			if !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("err = %v, want ErrMalformedRecord", err)
			}
			var re *RecordError
			if !errors.As(err, &re) {
				t.Fatalf("err is %T, want *RecordError", err)
			}
			if re.Field != tt.wantField {
				t.Errorf("Field = %q, want %q (err: %v)", re.Field, tt.wantField, err)
			}
		})
	}
}

func TestExponentField(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{" 10270-3", 0.10270e-3},
		{"-11606-4", -0.11606e-4},
		{" 00000-0", 0},
		{" 00000+0", 0},
		{"+12345+1", 1.2345},
		{"        ", 0},
	}
	for _, tt := range tests {
		got, err := exponentField(1, "bstar", tt.in)
		if err != nil {
			t.Errorf("exponentField(%q): %v", tt.in, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-15 {
			t.Errorf("exponentField(%q) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

func TestEpochYearPivot(t *testing.T) {
	tests := []struct {
		yy   string
		want int
	}{
		{"00", 2000},
		{"08", 2008},
		{"56", 2056},
		{"57", 1957},
		{"99", 1999},
	}
	for _, tt := range tests {
		got, err := epochField(tt.yy, "001.00000000")
		if err != nil {
			t.Fatalf("epochField(%q): %v", tt.yy, err)
		}
		if got.Year() != tt.want || got.YearDay() != 1 || got.Hour() != 0 {
			t.Errorf("epochField(%q) = %v, want start of %d", tt.yy, got, tt.want)
		}
	}

	got, err := epochField("24", "100.50000000")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("epochField(24, 100.5) = %v, want %v", got, want)
	}
}

func TestEpochDayBounds(t *testing.T) {
	tests := []struct {
		yy, days string
		year     int // zero when the field is rejected
	}{
		{"24", "366.50000000", 2024},
		{"23", "365.99999999", 2023},
		{"23", "366.00000000", 0},
		{"23", "366.50000000", 0},
		{"24", "367.00000000", 0},
		{"24", "000.50000000", 0},
	}
	for _, tt := range tests {
		got, err := epochField(tt.yy, tt.days)
		if tt.year == 0 {
			if err == nil {
				t.Errorf("epochField(%q, %q) = %v, want error", tt.yy, tt.days, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("epochField(%q, %q): %v", tt.yy, tt.days, err)
			continue
		}
		if got.Year() != tt.year {
			t.Errorf("epochField(%q, %q) = %v, want a time in %d", tt.yy, tt.days, got, tt.year)
		}
	}
}

func TestParseStream(t *testing.T) {
	input := strings.Join([]string{
		"0 " + issName,
		issLine1,
		issLine2,
		"",
		"BROKEN",
		issLine1,
		flipLast(issLine2),
		vanguardLine1,
		vanguardLine2,
		"ORPHAN NAME",
		"STARLINK TEST",
		alpha5Line1,
		alpha5Line2,
		alpha5Line2,
	}, "\r\n")

	res, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(res.Sets) != 3 {
		t.Fatalf("got %d sets, want 3", len(res.Sets))
	}
	if res.Sets[0].Name != issName {
		t.Errorf("Sets[0].Name = %q, want %q (3LE prefix stripped)", res.Sets[0].Name, issName)
	}
	if res.Sets[1].CatalogNumber != 5 || res.Sets[1].Name != "" {
		t.Errorf("Sets[1] = %d/%q, want 5 with no name", res.Sets[1].CatalogNumber, res.Sets[1].Name)
	}
	if res.Sets[2].Name != "STARLINK TEST" {
		t.Errorf("Sets[2].Name = %q, want STARLINK TEST", res.Sets[2].Name)
	}

	if len(res.Errors) != 3 {
		for _, e := range res.Errors {
			t.Logf("error: %v", e)
		}
		t.Fatalf("got %d errors, want 3", len(res.Errors))
	}

	// Bad checksum on the second ISS copy.
	if !errors.Is(res.Errors[0], ErrChecksumMismatch) || res.Errors[0].Line != 7 || res.Errors[0].Name != "BROKEN" {
		t.Errorf("Errors[0] = %+v, want checksum mismatch at line 7 for BROKEN", res.Errors[0])
	}
	// Name with no data lines.
	if !errors.Is(res.Errors[1], ErrMalformedRecord) || res.Errors[1].Line != 10 {
		t.Errorf("Errors[1] = %v, want malformed at line 10", res.Errors[1])
	}
	// Trailing line 2 with no line 1.
	if !errors.Is(res.Errors[2], ErrMalformedRecord) || res.Errors[2].Line != 14 {
		t.Errorf("Errors[2] = %v, want malformed at line 14", res.Errors[2])
	}
}

func TestParseStreamTruncated(t *testing.T) {
	res, err := Parse(strings.NewReader(issName + "\n" + issLine1 + "\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Sets) != 0 || len(res.Errors) != 1 {
		t.Fatalf("got %d sets / %d errors, want 0 / 1", len(res.Sets), len(res.Errors))
	}
	if res.Errors[0].Line != 2 {
		t.Errorf("error line = %d, want 2", res.Errors[0].Line)
	}
}

func BenchmarkParseLines(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := ParseLines(issName, issLine1, issLine2); err != nil {
			b.Fatal(err)
		}
	}
}
