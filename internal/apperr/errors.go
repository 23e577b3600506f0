package apperr

import (
	"errors"
	"fmt"
)

// ErrInvalid is returned when the input fails validation before any state is touched.
var ErrInvalid = errors.New("invalid input")

// ErrConflict indicates a uniqueness conflict or a resource reserved by another assignment (HTTP 409).
var ErrConflict = errors.New("conflict")

// ErrNotFound indicates that the requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrPreconditionFailed indicates a lifecycle transition that is not legal from the current state.
var ErrPreconditionFailed = errors.New("precondition failed")

var (
	// ErrDriverUnavailable is the conflict reported when the driver is already reserved.
	ErrDriverUnavailable = fmt.Errorf("driver not available: %w", ErrConflict)
	// ErrVehicleUnavailable is the conflict reported when the vehicle is already reserved.
	ErrVehicleUnavailable = fmt.Errorf("vehicle not available: %w", ErrConflict)
)

// Invalidf wraps ErrInvalid with a field-level reason.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
