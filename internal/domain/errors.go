package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDimensionNotFound is returned by a Sink when a dimension has not been declared.
var ErrDimensionNotFound = errors.New("dimension not found")

// ErrEmptyBatch is returned by Append when a batch without records would
// create a new dataset.
var ErrEmptyBatch = errors.New("batch has no records to create a dataset from")

// HeaderFormatError reports a malformed or incomplete vendor header. Fatal for the file.
type HeaderFormatError struct {
	Parameter string
	Reason    string
}

func (e *HeaderFormatError) Error() string {
	if e.Parameter != "" {
		return fmt.Sprintf("header format: %s: %s", e.Parameter, e.Reason)
	}
	return "header format: " + e.Reason
}

// TimeParseError reports a timestamp that matched none of the known layouts.
type TimeParseError struct {
	Value   string
	Layouts []string
}

func (e *TimeParseError) Error() string {
	return fmt.Sprintf("parse timestamp %q: no layout matched (%s)", e.Value, strings.Join(e.Layouts, " | "))
}

// DimensionMismatchError signals a batch whose geometry is incompatible with the dataset.
type DimensionMismatchError struct {
	Dimension string
	Dataset   int
	Batch     int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension %q mismatch: dataset has %d, batch has %d", e.Dimension, e.Dataset, e.Batch)
}

// SchemaMappingError reports a canonical variable that could not be mapped from the source columns.
type SchemaMappingError struct {
	Variable string
	Reason   string
}

func (e *SchemaMappingError) Error() string {
	return fmt.Sprintf("schema mapping %s: %s", e.Variable, e.Reason)
}

// OutOfOrderError is returned when a batch would make the time dimension decrease.
type OutOfOrderError struct {
	Last  time.Time
	First time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("out of order batch: starts at %s before last stored time %s",
		FormatISO(e.First), FormatISO(e.Last))
}

// RowCorruptionWarning summarizes rows dropped from one file. It is not fatal.
type RowCorruptionWarning struct {
	Dropped int
	Total   int
	Columns int // column count of the kept rows
}

func (w *RowCorruptionWarning) Error() string {
	return fmt.Sprintf("dropped %d of %d rows not matching %d columns", w.Dropped, w.Total, w.Columns)
}

// FileError attaches the offending source path to an ingest failure.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *FileError) Unwrap() error { return e.Err }
