// Package errs defines the error taxonomy shared by the services: what the
// caller did wrong, what a provider did wrong, what cannot be verified, and
// what merely collided.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound is returned when an order lookup finds nothing.
	ErrOrderNotFound = errors.New("order not found")

	// ErrPaymentNotFound is returned when a payment lookup finds nothing,
	// including webhooks referencing a transaction this system never created.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrConcurrencyConflict signals a lost optimistic-lock race on a
	// per-order update. Retried internally a bounded number of times.
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")
)

// ValidationError is a client-caused rejection raised before any persistence.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}

	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidation creates a ValidationError for the given field.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ProviderError wraps a failure coming from a payment provider boundary.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// VerificationError signals that a callback's authenticity could not be
// established. It is never forwarded to the ledger.
type VerificationError struct {
	Provider string
	Reason   string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("provider %s: callback verification failed: %s", e.Provider, e.Reason)
}

// ConflictError signals an illegal state transition. Replays of already
// applied events are not conflicts; they are swallowed as no-ops before this
// error is ever constructed.
type ConflictError struct {
	Entity  string
	From    string
	To      string
	Anomaly bool
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("illegal %s transition %s -> %s", e.Entity, e.From, e.To)
}

// IsAnomaly reports whether err is a conflict that needs manual review, such
// as a success callback arriving after a recorded failure.
func IsAnomaly(err error) bool {
	var conflict *ConflictError

	return errors.As(err, &conflict) && conflict.Anomaly
}
