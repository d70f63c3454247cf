package cli

import (
	"errors"
	"fmt"
	"io"

	rverrors "github.com/randalmurphal/repovault/internal/errors"
	"github.com/randalmurphal/repovault/internal/orchestrator"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfigError = 2
)

// RunFailedError reports a run that finished with failed entities.
type RunFailedError struct {
	Run *orchestrator.RunResult
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("%s %s: %d of %d entities failed (%s)",
		e.Run.Operation, e.Run.ID, e.Run.Count(orchestrator.StateFailed), len(e.Run.Entities), e.Run.Status)
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case rverrors.IsConfiguration(err):
		return ExitConfigError
	default:
		return ExitFailure
	}
}

// PrintError prints err to w. Structured errors use their user message; in
// verbose mode the code and cause follow.
func PrintError(w io.Writer, err error, verbose bool) {
	var failed *RunFailedError
	if errors.As(err, &failed) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	if rvErr := rverrors.AsError(err); rvErr != nil {
		fmt.Fprintln(w, rvErr.UserMessage())
		if verbose {
			fmt.Fprintf(w, "\nCode: %s\n", rvErr.Code)
			if rvErr.Cause != nil {
				fmt.Fprintf(w, "Cause: %v\n", rvErr.Cause)
			}
		}
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
