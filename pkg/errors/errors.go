package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input was provided
	ErrInvalidInput = errors.New("invalid input")

	// ErrDatabaseConnection indicates a database connection issue
	ErrDatabaseConnection = errors.New("database connection error")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrConflict indicates a unique key violation in the registry
	ErrConflict = errors.New("resource conflict")

	// ErrTransport indicates a node could not be reached or answered badly
	ErrTransport = errors.New("transport failure")

	// ErrMalformedPayload indicates a truncated or out-of-bounds wire payload
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrConfiguration indicates a required setting is missing
	ErrConfiguration = errors.New("configuration fault")
)

// Wrap wraps an error with a message
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is checks if an error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New creates a new error with the given message
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new error with a formatted message
func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// Join joins multiple errors into one
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Transport marks err as a transport failure while keeping its chain
func Transport(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrTransport, err)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsConflict checks if an error is a registry conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTransport checks if an error is a transport failure
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsConfiguration checks if an error is a configuration fault
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
