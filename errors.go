package deeppatch

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingTarget indicates a pointer path resolves through a missing
	// intermediate value, or addresses a leaf that does not exist
	ErrMissingTarget = errors.New("missing target")
	// ErrTestFailed is returned when a test operation's value does not equal
	// the value found at its path
	ErrTestFailed = errors.New("test failed")
	// ErrInvalidOperation means an operation failed shape validation
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrInvalidPatch means a patch is not a recognized sequence or byte buffer
	ErrInvalidPatch = errors.New("invalid patch")
	// ErrCodecUnavailable is returned by every binary encode or decode call
	// when no document codec is configured
	ErrCodecUnavailable = errors.New("document codec unavailable")
	// ErrUnserializable means an operation could not be round-tripped through
	// the document codec
	ErrUnserializable = errors.New("operation is not serializable")
	// ErrInvalidPointer is returned when parsing a textual pointer that is
	// neither empty nor starts with "/"
	ErrInvalidPointer = errors.New("invalid pointer")
	// ErrIncompatibleValue means a value cannot be stored in a typed container
	ErrIncompatibleValue = errors.New("incompatible value")
)

// MissingTargetError carries the pointer that failed to resolve
type MissingTargetError struct {
	Path   Pointer
	Reason string
}

func (e *MissingTargetError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing target at %q", e.Path.String())
	}
	return fmt.Sprintf("missing target at %q: %s", e.Path.String(), e.Reason)
}

// Unwrap allows errors.Is(err, ErrMissingTarget)
func (e *MissingTargetError) Unwrap() error { return ErrMissingTarget }

// TestError is returned by Apply when a test operation fails. Actual and
// Expected are the compared values
type TestError struct {
	Path     Pointer
	Actual   interface{}
	Expected interface{}
}

func (e *TestError) Error() string {
	return fmt.Sprintf("test failed at %q: expected %s, got %s", e.Path.String(), display(e.Expected), display(e.Actual))
}

// Unwrap allows errors.Is(err, ErrTestFailed)
func (e *TestError) Unwrap() error { return ErrTestFailed }

// InvalidOperationError describes an operation rejected during conversion or
// decoding. Index is the operation's position within its patch, -1 if unknown
type InvalidOperationError struct {
	Index  int
	Op     interface{}
	Reason string
}

func (e *InvalidOperationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid operation %v: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("invalid operation %d %v: %s", e.Index, e.Op, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidOperation)
func (e *InvalidOperationError) Unwrap() error { return ErrInvalidOperation }

func invalidOp(index int, op interface{}, format string, args ...interface{}) error {
	return &InvalidOperationError{Index: index, Op: op, Reason: fmt.Sprintf(format, args...)}
}

func missingTarget(p Pointer, format string, args ...interface{}) error {
	return &MissingTargetError{Path: p, Reason: fmt.Sprintf(format, args...)}
}

func incompatible(p Pointer, format string, args ...interface{}) error {
	return fmt.Errorf("%w at %q: %s", ErrIncompatibleValue, p.String(), fmt.Sprintf(format, args...))
}

// display renders a value for messages as JSON, Absent as <absent>. cycles
// render as null where they close
func display(v interface{}) string {
	if IsAbsent(v) {
		return "<absent>"
	}
	return string(marshalValue(v))
}
