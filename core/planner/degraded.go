package planner

import (
	"errors"
	"fmt"
)

// ErrDegraded marks a read result that fell back to a safe default, or that
// skipped records it could not interpret.
var ErrDegraded = errors.New("computation degraded")

// DegradedError carries the operation and the cause of a degraded result.
// errors.Is(err, ErrDegraded) holds for every DegradedError.
type DegradedError struct {
	Op  string
	Err error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrDegraded, e.Err)
}

func (e *DegradedError) Unwrap() []error { return []error{ErrDegraded, e.Err} }

// IsDegraded reports whether err marks a degraded result.
func IsDegraded(err error) bool { return errors.Is(err, ErrDegraded) }
