package tle

import "time"

// ElementSet is one object's mean orbital elements at a reference epoch,
// as decoded from a two-line element record.
type ElementSet struct {
	CatalogNumber  int
	Name           string
	Classification byte
	Designator     string // international designator, e.g. "98067A"
	Epoch          time.Time

	MeanMotionDot     float64 // first derivative of mean motion / 2, rev/day²
	MeanMotionDDot    float64 // second derivative of mean motion / 6, rev/day³
	BStar             float64 // drag term, 1/earth radii
	Inclination       float64 // radians
	RightAscension    float64 // right ascension of the ascending node, radians
	Eccentricity      float64
	ArgumentOfPerigee float64 // radians
	MeanAnomaly       float64 // radians
	MeanMotion        float64 // rev/day

	ElementSetNumber int
	RevolutionNumber int

	Line1 string
	Line2 string
}

// ID returns the listing key for the element set.
func (e ElementSet) ID() ObjectID {
	return ObjectID{CatalogNumber: e.CatalogNumber, Name: e.Name}
}

// PeriodMinutes returns the orbital period implied by the TLE mean motion.
func (e ElementSet) PeriodMinutes() float64 {
	if e.MeanMotion <= 0 {
		return 0
	}
	return 1440.0 / e.MeanMotion
}

// ObjectID identifies a tracked object.
type ObjectID struct {
	CatalogNumber int    `json:"catalog_number"`
	Name          string `json:"name,omitempty"`
}

// EpochRange represents the minimum and maximum epoch times in a catalog.
type EpochRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// ParseResult holds the element sets decoded from a stream together with
// the records that were rejected.
type ParseResult struct {
	Sets   []ElementSet
	Errors []*RecordError
}
