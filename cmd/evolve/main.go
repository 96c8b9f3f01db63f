package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/evolvehq/evolve/internal/evolution"
)

// Exit codes for different failure modes
const (
	ExitSuccess         = 0 // Evolution succeeded
	ExitEvolutionFailed = 1 // Evolution or validation completed but did not pass
	ExitError           = 2 // Configuration or runtime error
)

// ValidationFailedError indicates that the validation pipeline ran to
// completion, but one or more stages reported errors.
type ValidationFailedError struct {
	Message string
}

func (e *ValidationFailedError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		// Check error type to determine exit code
		var failedErr *evolution.FailedError
		if errors.As(err, &failedErr) {
			os.Exit(ExitEvolutionFailed)
		}
		var validationErr *ValidationFailedError
		if errors.As(err, &validationErr) {
			os.Exit(ExitEvolutionFailed)
		}

		// All other errors are configuration/runtime errors
		os.Exit(ExitError)
	}
}
