package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariel-frischer/smartrelease/internal/retry"
)

// Exit codes for the smart-release CLI
// These codes support programmatic composition and CI/CD integration
const (
	// ExitSuccess indicates successful command execution
	ExitSuccess = 0

	// ExitFailure indicates a failure not covered by a more specific code
	ExitFailure = 1

	// ExitPublishFailed indicates publishing stopped, including exhausted retries
	ExitPublishFailed = retry.ExitCodeExhausted

	// ExitInvalidArguments indicates invalid command arguments
	ExitInvalidArguments = 3

	// ExitConfiguration indicates invalid configuration or package metadata
	ExitConfiguration = 4

	// ExitTimeout indicates command execution timed out
	ExitTimeout = 5
)

// ExitError carries an exit code for an error that was already reported.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError returns an error that makes Execute exit with code.
func NewExitError(code int) error {
	return &ExitError{Code: code}
}

// exitCoder is implemented by errors that choose their exit code.
type exitCoder interface {
	ExitCode() int
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ExitTimeout
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return ExitFailure
}
