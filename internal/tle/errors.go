package tle

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecord reports bad syntax, a wrong line length or an
	// unparsable field.
	ErrMalformedRecord = errors.New("malformed element record")
	// ErrChecksumMismatch reports a data line whose modulo-10 checksum does
	// not match its final column.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrObjectNotFound is returned by catalog lookups for unknown keys.
	ErrObjectNotFound = errors.New("object not found")
	// ErrEmptyCatalog is returned when a refresh yields no usable records.
	ErrEmptyCatalog = errors.New("no valid element sets")
)

// RecordError describes why a single record was rejected.
type RecordError struct {
	Line  int    // 1-based line number in the input stream
	Field string // offending field, empty when the whole record is bad
	Name  string // object name, if one preceded the data lines
	Err   error
}

func (e *RecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: %s: %v", e.Line, e.Field, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Reason returns a short label for the error kind, suitable for metrics.
func (e *RecordError) Reason() string {
	if errors.Is(e.Err, ErrChecksumMismatch) {
		return "checksum"
	}
	return "malformed"
}

func malformed(line int, field, format string, args ...any) *RecordError {
	return &RecordError{
		Line:  line,
		Field: field,
		Err:   fmt.Errorf("%w: %s", ErrMalformedRecord, fmt.Sprintf(format, args...)),
	}
}
