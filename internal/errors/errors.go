package errors

import (
	"errors"
	"fmt"
)

// Error categories for a headless login
var (
	// Configuration / liveness errors
	ErrInvalidSettings = errors.New("invalid login settings")
	ErrRedirectLoop    = errors.New("keeps redirecting forever")

	// Discovery errors
	ErrDiscovery = errors.New("failed to access authority discovery document")

	// Protocol errors
	ErrUnexpectedStatus = errors.New("unexpected status code")

	// Parse errors
	ErrParse = errors.New("parse error")

	// Validation errors
	ErrUnsupportedAlgorithm = errors.New("no appropriate hashing algorithm found")
	ErrHashMismatch         = errors.New("hash does not match")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
