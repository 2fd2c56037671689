package es

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrStoreIO             = errors.New("event store failure")
	ErrCorrupt             = errors.New("corrupt event data")
	ErrEntityNotFound      = errors.New("entity not found")
	ErrUnknownEventType    = errors.New("unknown event type")
	ErrStoreNoEvents       = errors.New("no events to store")
	ErrProjectionGap       = errors.New("projection gap")
	ErrProjectionFailed    = errors.New("projection failed")
)

// ValidationError is returned by Aggregate.Execute when a command is rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string        { return "validation failed: " + e.Reason }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Reject builds a ValidationError with a formatted reason.
func Reject(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports an append whose expected version did not match the head.
type ConflictError struct {
	StreamID StreamID
	Expected ExpectedVersion
	Actual   Version
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on stream %s: expected %s, head is %d", e.StreamID, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

// StoreError wraps a storage failure. Op is "read" or "append".
type StoreError struct {
	Op       string
	StreamID StreamID
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("event store %s stream=%s: %v", e.Op, e.StreamID, e.Err)
}

func (e *StoreError) Is(target error) bool { return target == ErrStoreIO }
func (e *StoreError) Unwrap() error        { return e.Err }

// IOFailure wraps err as a StoreError unless it already is one or is a conflict.
func IOFailure(op string, stream StreamID, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreIO) || errors.Is(err, ErrConcurrencyConflict) {
		return err
	}
	return &StoreError{Op: op, StreamID: stream, Err: err}
}

// Corrupt reports stored data that cannot be trusted.
func Corrupt(stream StreamID, format string, args ...any) error {
	return &StoreError{Op: "read", StreamID: stream, Err: fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))}
}
