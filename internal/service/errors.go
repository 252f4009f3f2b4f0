package service

import (
	"errors"
	"fmt"
)

// RejectionKind classifies why a submission was rejected
type RejectionKind string

const (
	RejectStructural  RejectionKind = "structural"
	RejectValueRange  RejectionKind = "value_range"
	RejectReferential RejectionKind = "referential"
)

// RejectionError is a validation failure the caller can fix by resubmitting.
// Line is the zero-based order line index, or -1 for order-level fields.
type RejectionError struct {
	Kind    RejectionKind
	Field   string
	Line    int
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

func reject(kind RejectionKind, field string, line int, format string, args ...interface{}) *RejectionError {
	return &RejectionError{
		Kind:    kind,
		Field:   field,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	}
}

// StoreError wraps a failure of the store that was not caused by the caller
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

var (
	ErrOrderTimeout         = errors.New("order creation timed out")
	ErrSubmissionInProgress = errors.New("an order with this idempotency key is already being processed")
)

// IsRejection reports whether err is a validation rejection
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}
