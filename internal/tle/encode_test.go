package tle

import (
	"errors"
	"math"
	"strconv"
	"testing"
	"time"
)

func TestEncodeReproducesCanonicalLines(t *testing.T) {
	tests := []struct {
		name         string
		line1, line2 string
	}{
		{"iss", issLine1, issLine2},
		{"vanguard", vanguardLine1, vanguardLine2},
		{"alpha-5", alpha5Line1, alpha5Line2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			es, err := ParseLines("", tt.line1, tt.line2)
			if err != nil {
				t.Fatalf("ParseLines: %v", err)
			}
			line1, line2, err := es.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if line1 != tt.line1 {
				t.Errorf("line 1:\n got %q\nwant %q", line1, tt.line1)
			}
			if line2 != tt.line2 {
				t.Errorf("line 2:\n got %q\nwant %q", line2, tt.line2)
			}
		})
	}
}

// withField overwrites columns starting at col and fixes the checksum.
func withField(line string, col int, field string) string {
	b := []byte(line[:LineLength-1])
	copy(b[col:], field)
	s := string(b)
	return s + strconv.Itoa(Checksum(s))
}

// TestEncodeLooseColumns feeds records whose fields are valid but not in the
// padded layout and checks the encoded lines decode to the same elements.
func TestEncodeLooseColumns(t *testing.T) {
	line1 := withField(issLine1, 33, "-2.182e-5 ")
	line2 := withField(issLine2, 8, "51.64160")

	loose, err := ParseLines("", line1, line2)
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	enc1, enc2, err := loose.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if enc1 != issLine1 || enc2 != issLine2 {
		t.Errorf("Encode =\n%q\n%q\nwant\n%q\n%q", enc1, enc2, issLine1, issLine2)
	}

	back, err := ParseLines("", enc1, enc2)
	if err != nil {
		t.Fatalf("ParseLines(encoded): %v", err)
	}
	if math.Abs(back.Inclination-loose.Inclination) > 1e-9 || math.Abs(back.MeanMotionDot-loose.MeanMotionDot) > 1e-15 {
		t.Errorf("decoded %+v, want %+v", back, loose)
	}
}

func TestEncodeExponent(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, " 00000-0"},
		{0.10270e-3, " 10270-3"},
		{-0.11606e-4, "-11606-4"},
		{1.2345, " 12345+1"},
		{0.5, " 50000+0"},
		{0.999999e-2, " 10000-1"},
		{1e-12, " 00000-0"},
	}
	for _, tt := range tests {
		got, err := encodeExponent("bstar", tt.in)
		if err != nil {
			t.Errorf("encodeExponent(%g): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("encodeExponent(%g) = %q, want %q", tt.in, got, tt.want)
		}
		if _, rerr := exponentField(1, "bstar", got); rerr != nil {
			t.Errorf("exponentField(%q): %v", got, rerr)
		}
	}
}

func TestEncodeOutOfRange(t *testing.T) {
	base, err := ParseLines("", issLine1, issLine2)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		mutate func(*ElementSet)
	}{
		{"catalog number", func(e *ElementSet) { e.CatalogNumber = 340000 }},
		{"epoch year", func(e *ElementSet) { e.Epoch = time.Date(2060, 1, 1, 0, 0, 0, 0, time.UTC) }},
		{"mean motion dot", func(e *ElementSet) { e.MeanMotionDot = 1.5 }},
		{"bstar", func(e *ElementSet) { e.BStar = 1e12 }},
		{"eccentricity", func(e *ElementSet) { e.Eccentricity = 1.2 }},
		{"mean motion", func(e *ElementSet) { e.MeanMotion = 123.4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			es := base
			tt.mutate(&es)
			if _, _, err := es.Encode(); !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("err = %v, want ErrMalformedRecord", err)
			}
		})
	}
}
