// Package errors defines the error kinds shared across the retrieval engine
// and maps them to process exit codes.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrIndexUnavailable = errors.New("index unavailable")
	ErrDocumentNotFound = errors.New("document not found")
	ErrMalformedQuery   = errors.New("malformed query")
	ErrConfiguration    = errors.New("configuration error")
	ErrSinkFailed       = errors.New("result sink failed")
)

const (
	ExitFailure          = 1
	ExitConfiguration    = 2
	ExitIndexUnavailable = 3
	ExitSinkFailed       = 4
)

type AppError struct {
	Err      error
	Message  string
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  message,
		ExitCode: exitCodeFor(sentinel),
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  fmt.Sprintf(format, args...),
		ExitCode: exitCodeFor(sentinel),
	}
}

// ExitCode returns the process status a fatal err should terminate with.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}
	return exitCodeFor(err)
}

// IsFatal reports whether err belongs to a class that must abort the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrIndexUnavailable) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrSinkFailed)
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrIndexUnavailable):
		return ExitIndexUnavailable
	case errors.Is(err, ErrSinkFailed):
		return ExitSinkFailed
	default:
		return ExitFailure
	}
}
