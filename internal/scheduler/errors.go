package scheduler

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/chunkgen/internal/grid"
)

var (
	// ErrInvalidConcurrency is returned when the in-flight bound is below one.
	ErrInvalidConcurrency = errors.New("invalid concurrency")

	// ErrInvalidTotal is returned when the expected cell total is negative.
	ErrInvalidTotal = errors.New("invalid total")

	// ErrBackendUnavailable is returned by the first Next when the continuation
	// predicate already fails before any cell was admitted.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrDone marks the end of a run's snapshot sequence.
	ErrDone = errors.New("schedule done")
)

// DispatchError wraps a synchronous failure to register a cell with the backend.
type DispatchError struct {
	Cell grid.Coordinate
	Err  error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch cell %s: %v", e.Cell, e.Err)
}

// Unwrap exposes the backend error for errors.Is/As.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err rejects the run's parameters, as opposed to
// something that happened while it was running.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConcurrency) ||
		errors.Is(err, ErrInvalidTotal) ||
		errors.Is(err, grid.ErrInvalidRange)
}
