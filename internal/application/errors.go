package application

import (
	"errors"
	"fmt"

	"github.com/example/booking-pipeline/internal/appointment"
	"github.com/example/booking-pipeline/internal/availability"
	"github.com/example/booking-pipeline/internal/persistence"
	"github.com/example/booking-pipeline/internal/settlement"
	"github.com/example/booking-pipeline/internal/wallet"
)

var (
	// ErrUnauthorized is returned when the actor may not perform the operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrSlotNoLongerAvailable is returned when the chosen slot was taken or
	// became unbookable before the booking committed.
	ErrSlotNoLongerAvailable = errors.New("application: slot no longer available")
	// ErrAmountMismatch is returned when a paid notification reports a
	// different amount than the transaction.
	ErrAmountMismatch = errors.New("application: paid amount does not match transaction")
	// ErrDuplicateNotification labels a replayed gateway notification. It is
	// logged but never returned to the gateway.
	ErrDuplicateNotification = errors.New("application: duplicate notification")
	// ErrConflict is returned when a concurrent writer changed the record first.
	ErrConflict = errors.New("application: concurrent update")
)

// Domain sentinels re-exported so callers can match on one package.
var (
	ErrInvalidRange          = availability.ErrInvalidRange
	ErrPolicyDisallowed      = appointment.ErrPolicyDisallowed
	ErrAdvanceWindowViolated = appointment.ErrAdvanceWindowViolated
	ErrInvalidTransition     = appointment.ErrInvalidTransition
	ErrExpiredTransaction    = settlement.ErrExpiredTransaction
	ErrUnknownGatewayStatus  = settlement.ErrUnknownGatewayStatus
	ErrInsufficientBalance   = wallet.ErrInsufficientBalance
	ErrWalletInactive        = wallet.ErrWalletInactive
	ErrInvalidAmount         = wallet.ErrInvalidAmount
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %d field(s)", len(v.FieldErrors))
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// mapRepoError translates persistence sentinels into application errors.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, persistence.ErrStaleState),
		errors.Is(err, persistence.ErrContention),
		errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, settlement.ErrInvalidTransition):
		return fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	}
	return err
}
