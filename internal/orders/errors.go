package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation failed")
	ErrRetryExhausted    = errors.New("retry exhausted")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrAllocationFailed  = errors.New("order index allocation failed")

	// ErrTxConflict is a store-level abort (serialization failure, deadlock).
	// It matches ErrConflict but, unlike claim contention, is retried.
	ErrTxConflict = fmt.Errorf("%w: transaction aborted", ErrConflict)

	ErrAlreadyExists = fmt.Errorf("%w: already exists", ErrValidation)
)

// OpError carries the failing operation and entity alongside a sentinel.
type OpError struct {
	Op   string // e.g. "orders.ClaimStock"
	Kind string // shop, product, order, stock
	ID   string
	Err  error
}

func (e *OpError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s [%s %s]: %v", e.Op, e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op, kind, id string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, Kind: kind, ID: id, Err: err}
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func transitionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

// IsTransient reports errors that a fresh transaction attempt may fix.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTxConflict) || errors.Is(err, ErrStoreUnavailable)
}
