// Package errs provides the small error-construction helpers shared
// across the module's packages: a string-based error type cheap enough
// to declare as a package-level sentinel, and formatted constructors
// that wrap a sentinel with contextual detail.
package errs

import (
	"errors"
	"fmt"
)

// Error is a string that implements error, suitable for declaring
// package-level sentinel errors (e.g. ErrMalformed).
type Error string

func (e Error) Error() string { return string(e) }

// Errorf formats a standalone error, not associated with any sentinel.
func Errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...) //errtrace:skip
}

// Wrap formats a message and wraps it around sentinel so that
// errors.Is(result, sentinel) holds.
func Wrap(sentinel error, format string, args ...any) error {
	if format == "" {
		return sentinel //errtrace:skip
	}
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...) //errtrace:skip
}

// Is is a re-export of errors.Is for callers that otherwise only need
// this package.
func Is(err, target error) bool { return errors.Is(err, target) }
