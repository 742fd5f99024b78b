package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a request rejected before any shared state was read.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates the transaction's validate step failed because
	// state changed between planning and commit. Callers should re-plan once.
	ErrConflict = errors.New("concurrent modification detected")
	// ErrInvalidStatus indicates a forbidden lifecycle transition.
	ErrInvalidStatus = errors.New("invalid status transition")
)

// InsufficientStockError reports an allocation shortfall detected at
// validation time. It is a planning outcome, not an infrastructure failure.
type InsufficientStockError struct {
	SizeClass    SizeClass
	RequestedKg  float64
	AvailableKg  float64
	ShortfallKg  float64
	LocationName string
}

func (e *InsufficientStockError) Error() string {
	if e.LocationName != "" {
		return fmt.Sprintf("insufficient stock at %s for size %s: requested %.2f kg, available %.2f kg (short %.2f kg)",
			e.LocationName, e.SizeClass, e.RequestedKg, e.AvailableKg, e.ShortfallKg)
	}
	return fmt.Sprintf("insufficient stock for size %s: requested %.2f kg, available %.2f kg (short %.2f kg)",
		e.SizeClass, e.RequestedKg, e.AvailableKg, e.ShortfallKg)
}

// CapacityExceededError reports that a destination location lacks room.
type CapacityExceededError struct {
	LocationName string
	RequiredKg   float64
	AvailableKg  float64
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("storage %s cannot take %.2f kg, only %.2f kg of capacity free",
		e.LocationName, e.RequiredKg, e.AvailableKg)
}

// DuplicateRequestError reports a request matching an existing pending one.
type DuplicateRequestError struct {
	Detail string
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("duplicate request: %s", e.Detail)
}

// ValidationError carries human-readable feedback for malformed input.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Detail: fmt.Sprintf(format, args...)}
}
