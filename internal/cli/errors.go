package cli

import (
	"errors"
	"fmt"
	"io"
)

// Exit codes.
const (
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// ExitError carries the process exit code for an error. An empty Message
// means the command already reported the problem.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: ExitUsage, Message: fmt.Sprintf(format, args...)}
}

// ExitCode reports err on stderr and returns the status the process should
// exit with.
func ExitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Message != "" {
			fmt.Fprintln(stderr, "Error:", exitErr.Message)
		}
		return exitErr.Code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return ExitFailure
}
