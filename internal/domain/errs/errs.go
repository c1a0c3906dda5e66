// Package errs holds the error kinds shared by every domain package.
//
// Domain packages declare their own sentinels (coupon.ErrCouponExpired,
// order.ErrOrderNotFound, ...) for conditions that belong to a single
// component. The kinds here cut across components and are what the HTTP
// layer maps to status codes.
package errs

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned when a guarded update lost a race with a
	// concurrent writer. The caller may re-read and retry.
	ErrConflict = errors.New("concurrent modification")
	// ErrIllegalTransition is returned when a status change is not an edge of
	// the entity's state machine.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrStorage marks a failure of the persistence layer itself.
	ErrStorage = errors.New("storage failure")
)

// ValidationError describes which input field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

// Validation returns a *ValidationError for field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is reports ErrValidation so callers can match the kind without errors.As.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IllegalTransitionError carries the rejected edge.
type IllegalTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %q to %q", e.Entity, e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// StorageError wraps a driver error with the operation that failed.
type StorageError struct {
	Op  string
	Err error
}

// Storage wraps err as a *StorageError. It returns nil for a nil err.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// IsValidation reports whether err is, or wraps, a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
