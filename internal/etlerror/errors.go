// Package etlerror defines the typed errors reported by the pipeline.
package etlerror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedRecord matches every *MalformedRecordError.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrDuplicateKey matches every *DuplicateKeyConflict.
	ErrDuplicateKey = errors.New("duplicate key conflict")
)

// MalformedRecordError reports a record whose categorical field is missing.
// The record is excluded from the output; the run continues.
type MalformedRecordError struct {
	Index  int // Position in the batch
	TripID string
	Field  string
	Value  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record %d (trip %q): field %s=%q: %s",
		e.Index, e.TripID, e.Field, e.Value, e.Reason)
}

// Is lets errors.Is match ErrMalformedRecord.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// DuplicateKeyConflict reports categorical values that probably denote the
// same category but are kept as distinct keys. It is a warning: nothing is
// merged automatically.
type DuplicateKeyConflict struct {
	Table    string
	Variants []string
	IDs      []int64
}

func (e *DuplicateKeyConflict) Error() string {
	return fmt.Sprintf("map table %s: keys %s look like variants of one value (ids %v)",
		e.Table, quoteAll(e.Variants), e.IDs)
}

// Is lets errors.Is match ErrDuplicateKey.
func (e *DuplicateKeyConflict) Is(target error) bool {
	return target == ErrDuplicateKey
}

// ParseError represents a source value that could not be converted
type ParseError struct {
	Source string
	Row    int
	Field  string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s row %d: failed to parse %s='%s': %v",
		e.Source, e.Row, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError represents persisted data that breaks an invariant
type ValidationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed for %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Path, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StorageError wraps a failed object storage operation. The underlying error
// is kept intact so callers can test for sentinels such as not-found.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ", ")
}
