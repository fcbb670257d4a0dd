package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"configuration", New(ErrConfiguration, "lambda out of range"), ExitConfiguration},
		{"wrapped index", fmt.Errorf("building stats: %w", ErrIndexUnavailable), ExitIndexUnavailable},
		{"sink", Newf(ErrSinkFailed, "writing %s", "run.res"), ExitSinkFailed},
		{"plain", errors.New("boom"), ExitFailure},
		{"malformed query", New(ErrMalformedQuery, "empty"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("loading: %w", Newf(ErrDocumentNotFound, "doc %d", 7))
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("errors.Is(%v, ErrDocumentNotFound) = false", err)
	}
	if IsFatal(err) {
		t.Errorf("document errors must not be fatal")
	}
	if !IsFatal(New(ErrIndexUnavailable, "empty")) {
		t.Errorf("index errors must be fatal")
	}
	if got := err.Error(); got != "loading: document not found: doc 7" {
		t.Errorf("Error() = %q", got)
	}
}
