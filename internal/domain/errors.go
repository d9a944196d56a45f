// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)

// Card and transfer error kinds. Every business failure produced by the
// card services wraps exactly one of these, so callers can match with errors.Is.
var (
	ErrCardNotFound           = errors.New("card not found")
	ErrOwnerNotFound          = errors.New("owner not found")
	ErrDuplicateCardNumber    = errors.New("card number already exists")
	ErrInvalidCardNumber      = errors.New("invalid card number")
	ErrInvalidExpiry          = errors.New("invalid expiry date")
	ErrInvalidBalance         = errors.New("invalid balance")
	ErrInvalidStatus          = errors.New("invalid card status")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrSameCardTransfer       = errors.New("cannot transfer to the same card")
	ErrInvalidAmount          = errors.New("invalid transfer amount")
	ErrAmountTooLarge         = errors.New("transfer amount too large")
	ErrSourceNotActive        = errors.New("source card is not active")
	ErrDestinationNotActive   = errors.New("destination card is not active")
	ErrCardExpired            = errors.New("card is expired")
	ErrInsufficientFunds      = errors.New("insufficient funds")

	// ErrConcurrentModification is the only kind a caller may retry, after
	// re-fetching and re-validating.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrStorageUnavailable reports an infrastructure failure, not a business rule.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// User directory error kinds.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUserHasCards       = errors.New("user still owns cards")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// CardError is a typed business failure carrying the error kind plus the
// structured context a caller needs to render a response.
type CardError struct {
	Op      string // operation that failed, e.g. "transfer"
	Kind    error  // one of the Err* kinds above
	Message string // human-readable detail
	Field   string // offending field, if any

	// Available is set for ErrInsufficientFunds.
	Available *decimal.Decimal
}

// Error implements the error interface.
func (e *CardError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Message)
}

// Unwrap returns the error kind so errors.Is works against the sentinels.
func (e *CardError) Unwrap() error {
	return e.Kind
}

// NewCardError creates a CardError for the given operation and kind.
func NewCardError(op string, kind error, message string) *CardError {
	return &CardError{Op: op, Kind: kind, Message: message}
}

// NewFieldError creates a CardError that names the offending field.
func NewFieldError(op, field string, kind error, message string) *CardError {
	return &CardError{Op: op, Kind: kind, Message: message, Field: field}
}

// NewInsufficientFundsError reports the balance that was available on the source card.
func NewInsufficientFundsError(op string, available decimal.Decimal) *CardError {
	return &CardError{
		Op:        op,
		Kind:      ErrInsufficientFunds,
		Message:   "available balance: " + available.StringFixed(2),
		Available: &available,
	}
}

// ValidationError describes a failed validation of a single field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap returns the wrapped error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError. When err is nil the
// result wraps ErrValidation.
func NewValidationError(field, message string, err error) error {
	if err == nil {
		err = ErrValidation
	}
	return &ValidationError{Field: field, Message: message, Err: err}
}
