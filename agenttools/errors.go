package agenttools

import (
	"errors"
	"fmt"
)

// Class is the spec §7 error taxonomy shared across every component.
type Class string

const (
	ClassTransient  Class = "transient"  // retry eligible: network, 5xx, timeout, rate-limited
	ClassPolicy     Class = "policy"     // not retried: circuit-open, chain-exhausted, budget-exhausted, cancellation, permission-denied
	ClassInput      Class = "input"      // user-visible: malformed output, invalid args, cycles
	ClassDurability Class = "durability" // surface + halt current op: journal/checkpoint write failure
	ClassInternal   Class = "internal"   // bug: invariant violation
)

// CoreError is a structured, classified error that preserves a cause chain
// via errors.Is/As while remaining serialization-friendly, generalizing the
// teacher's toolerrors.ToolError to the whole taxonomy rather than just
// tool invocation failures.
type CoreError struct {
	Class   Class
	Message string
	Cause   *CoreError
}

// New constructs a CoreError with no wrapped cause.
func New(class Class, message string) *CoreError {
	if message == "" {
		message = string(class) + " error"
	}
	return &CoreError{Class: class, Message: message}
}

// Wrap converts an arbitrary error into a CoreError chain under class,
// preserving an existing CoreError chain if cause already is one.
func Wrap(class Class, message string, cause error) *CoreError {
	if cause == nil {
		return New(class, message)
	}
	var ce *CoreError
	if errors.As(cause, &ce) {
		if message == "" {
			message = ce.Message
		}
		return &CoreError{Class: class, Message: message, Cause: ce}
	}
	if message == "" {
		message = cause.Error()
	}
	return &CoreError{Class: class, Message: message, Cause: &CoreError{Class: class, Message: cause.Error()}}
}

// Errorf formats a message and returns it as a classified CoreError.
func Errorf(class Class, format string, args ...any) *CoreError {
	return New(class, fmt.Sprintf(format, args...))
}

func (e *CoreError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap supports errors.Is/As traversal across the cause chain.
func (e *CoreError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is a CoreError with the same Class, so callers
// can do errors.Is(err, &CoreError{Class: ClassTransient}).
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok || e == nil {
		return false
	}
	return t.Message == "" && t.Class == e.Class
}

// IsClass reports whether err is (or wraps) a CoreError of the given class.
func IsClass(err error, class Class) bool {
	var ce *CoreError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Class == class
}
