// Package pipeline wires the clipping, aggregation, interpolation and merge
// stages over a directory of yearly survey files.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/sells-group/landcover/internal/aggregate"
	"github.com/sells-group/landcover/internal/spatial"
)

// ErrNoInput is returned when no input file could be processed.
var ErrNoInput = errors.New("pipeline: no processable input")

// SkipKind classifies why a file was skipped.
type SkipKind string

// Skip kinds.
const (
	KindMissingColumn   SkipKind = "missing-column"
	KindUnparseableCode SkipKind = "unparseable-code"
	KindGeometry        SkipKind = "geometry-error"
	KindEmptyInput      SkipKind = "empty-input"
	KindRead            SkipKind = "read-error"
	KindWrite           SkipKind = "write-error"
	KindNoYear          SkipKind = "no-year-prefix"
)

// SkipError marks a per-file failure that is logged and recorded but does not
// stop the run.
type SkipError struct {
	Kind   SkipKind
	Path   string
	Reason string
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("skip %s (%s): %s", e.Path, e.Kind, e.Reason)
	}
	return fmt.Sprintf("skip %s (%s): %s: %v", e.Path, e.Kind, e.Reason, e.Err)
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

// NewSkipError wraps err as a skip of the given kind.
func NewSkipError(kind SkipKind, path, reason string, err error) *SkipError {
	return &SkipError{Kind: kind, Path: path, Reason: reason, Err: err}
}

// IsSkip reports whether err (or any error in its chain) is a SkipError.
func IsSkip(err error) bool {
	if err == nil {
		return false
	}
	var se *SkipError
	return errors.As(err, &se)
}

// asSkip converts a stage error into a SkipError, picking the kind from the
// sentinel it wraps. Errors without a known sentinel become fallback skips.
func asSkip(err error, path string, fallback SkipKind, reason string) *SkipError {
	var se *SkipError
	if errors.As(err, &se) {
		return se
	}

	kind := fallback
	switch {
	case errors.Is(err, spatial.ErrEmptyLayer):
		kind, reason = KindEmptyInput, "layer has no polygons"
	case errors.Is(err, spatial.ErrEmptyIntersection):
		kind, reason = KindGeometry, "no overlap with any district"
	case errors.Is(err, spatial.ErrNoGroupColumns):
		kind, reason = KindMissingColumn, "no classification column"
	case errors.Is(err, aggregate.ErrMissingColumn):
		kind, reason = KindMissingColumn, "required column absent"
	}
	return NewSkipError(kind, path, reason, err)
}
