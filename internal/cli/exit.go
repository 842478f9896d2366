package cli

import (
	"context"
	"errors"
	"fmt"

	"opencli/internal/build"
	"opencli/internal/cache"
	"opencli/internal/retry"
	"opencli/internal/tui"
	"opencli/internal/version"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitGeneric     = 1
	ExitResolution  = 2
	ExitDownload    = 3
	ExitIntegrity   = 4
	ExitCompile     = 5
	ExitToolchain   = 6
	ExitInterrupted = 130
)

// ExitError carries an explicit exit code out of a RunE handler.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, context.Canceled), errors.Is(err, tui.ErrInterrupted):
		return ExitInterrupted
	case errors.Is(err, cache.ErrIntegrity):
		return ExitIntegrity
	case errors.Is(err, cache.ErrFetch), errors.Is(err, retry.ErrUnreachable):
		return ExitDownload
	case errors.Is(err, build.ErrToolchainUnavailable):
		return ExitToolchain
	case errors.Is(err, version.ErrNoMatch),
		errors.Is(err, version.ErrMalformed),
		errors.Is(err, version.ErrInvalidRange):
		return ExitResolution
	default:
		return ExitGeneric
	}
}
