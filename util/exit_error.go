package util

import (
	"fmt"
)

// ExitError carries the process exit code a failure should produce,
// letting cmd.Execute distinguish "exit 1, generic failure" from a more
// specific code a subcommand wants to signal (e.g. "curve not configured").
type ExitError struct {
	ExitCode int
	Err      error
}

func (ee ExitError) Error() string {
	return fmt.Sprintf("exit with code %d: %v", ee.ExitCode, ee.Err)
}

// Unwrap lets errors.As/errors.Is see through to the underlying cause.
func (ee ExitError) Unwrap() error {
	return ee.Err
}
