package broker

import (
	"errors"
	"fmt"
)

// TransientError marks a network or API hiccup. The caller retries with
// bounded backoff and otherwise abandons the tick.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// OrderRejectedError means the brokerage refused an order. It is recorded
// against the one account and never fails the whole tick.
type OrderRejectedError struct {
	AccountID  string
	Instrument string
	Reason     string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order rejected for %s on %s: %s", e.AccountID, e.Instrument, e.Reason)
}

// IsRejected reports whether err is (or wraps) an OrderRejectedError.
func IsRejected(err error) bool {
	var re *OrderRejectedError
	return errors.As(err, &re)
}
