// Package shell runs external commands with timeouts, capturing exit
// codes and combined output. It backs the dependency install phase and
// the validation stages that shell out (test execution, runtime checks).
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Spec describes one command invocation.
type Spec struct {
	// Command is the program to run; Args are its arguments. Command is
	// never passed through a shell, so no quoting rules apply.
	Command string
	Args    []string

	// Dir is the working directory; empty means the process inherits
	// the caller's.
	Dir string

	// Env entries are appended to the inherited environment.
	Env []string

	// Stdin is written to the process's standard input when non-empty.
	Stdin string

	// Timeout bounds the run; <= 0 leaves only the caller's context
	// deadline in effect.
	Timeout time.Duration
}

// Result captures a completed command. A non-zero exit code is a
// Result, not an error: callers decide what exit codes mean.
type Result struct {
	Command    string `json:"command"`
	ExitCode   int    `json:"exit_code"`
	Output     string `json:"output"`
	DurationMs int64  `json:"duration_ms"`
}

// Succeeded reports whether the command exited zero.
func (r *Result) Succeeded() bool { return r.ExitCode == 0 }

// TimeoutError reports that a command was killed at its deadline. It is
// distinct from a failing exit code so callers can retry timeouts
// without treating them as application failures.
type TimeoutError struct {
	Command string
	Timeout time.Duration
	// Output holds whatever the command produced before being killed.
	Output string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q exceeded its %s timeout", e.Command, e.Timeout)
}

// IsTimeout reports whether err is a command timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Runner executes commands. The interface exists so tests can substitute
// scripted results for real subprocesses.
type Runner interface {
	Run(ctx context.Context, spec Spec) (*Result, error)
}

// ExecRunner runs commands as real subprocesses.
type ExecRunner struct{}

// Run executes spec and waits for completion. It returns a Result for
// any exit, a [*TimeoutError] when the deadline killed the process, and
// a plain error when the command could not be started at all.
func (ExecRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return nil, errors.New("empty command")
	}

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.Command, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, &TimeoutError{
			Command: spec.Command,
			Timeout: spec.Timeout,
			Output:  combined.String(),
		}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Result{
				Command:    spec.Command,
				ExitCode:   exitErr.ExitCode(),
				Output:     combined.String(),
				DurationMs: elapsed,
			}, nil
		}
		// Start failure: command not found, permission denied, etc.
		return nil, fmt.Errorf("running %s: %w", spec.Command, err)
	}

	return &Result{
		Command:    spec.Command,
		ExitCode:   0,
		Output:     combined.String(),
		DurationMs: elapsed,
	}, nil
}

var _ Runner = ExecRunner{}
