package engine

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error is a classified engine error.
//
// Two kinds are returned to callers:
//   - Invalid input: oversized fields, malformed ids, bad values. The caller
//     can fix the input and retry; engine state is untouched.
//   - Misuse: operations the current instance cannot perform at all, such as
//     pushing a read-only config or encrypting with no key loaded.
//
// Undecryptable or malformed remote data is never an Error. Merge drops it
// and key loading reports false.
type Error struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Op names the failing operation.
	Op string

	// Message is a human-readable description.
	Message string
}

// ErrorKind categorizes engine errors.
type ErrorKind string

const (
	// KindInvalidInput marks recoverable validation failures.
	KindInvalidInput ErrorKind = "INVALID_INPUT"

	// KindMisuse marks calls that cannot succeed without caller changes.
	KindMisuse ErrorKind = "MISUSE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsInvalidInput reports whether err is an invalid-input error.
func IsInvalidInput(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindInvalidInput
	}
	return false
}

// IsMisuse reports whether err is a misuse error.
func IsMisuse(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindMisuse
	}
	return false
}

// NewInvalidInputError creates an invalid-input error with a stack trace.
func NewInvalidInputError(op, format string, args ...any) error {
	return errors.WithStack(&Error{
		Kind:    KindInvalidInput,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	})
}

// NewMisuseError creates a misuse error with a stack trace.
func NewMisuseError(op, format string, args ...any) error {
	return errors.WithStack(&Error{
		Kind:    KindMisuse,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	})
}
