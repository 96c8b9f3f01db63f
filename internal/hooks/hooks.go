// Package hooks runs user-configured shell commands at evolution
// lifecycle points: before and after a session, and before and after
// each iteration. Hooks let a project snapshot state, warm caches, or
// notify external systems without patching the evolution loop itself.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/evolvehq/evolve/internal/shell"
	"github.com/evolvehq/evolve/internal/utils"
)

// DefaultTimeout bounds a single hook command.
const DefaultTimeout = 2 * time.Minute

// Hook defines one lifecycle command.
type Hook struct {
	Command string `yaml:"command" json:"command" mapstructure:"command"`

	// Dir is the working directory for the command; empty inherits the
	// process's own. Relative paths resolve against the runner's
	// BaseDir.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty" mapstructure:"dir"`

	// ExitCodes lists the exit codes treated as success. Empty means
	// only zero.
	ExitCodes []int `yaml:"exit_codes,omitempty" json:"exit_codes,omitempty" mapstructure:"exit_codes"`

	// ErrorOnFail aborts the session when the hook fails. A failing
	// hook otherwise only logs a warning.
	ErrorOnFail bool `yaml:"error_on_fail,omitempty" json:"error_on_fail,omitempty" mapstructure:"error_on_fail"`
}

// Config holds the hooks for every lifecycle point.
type Config struct {
	BeforeSession   []Hook `yaml:"before_session,omitempty" json:"before_session,omitempty" mapstructure:"before_session"`
	AfterSession    []Hook `yaml:"after_session,omitempty" json:"after_session,omitempty" mapstructure:"after_session"`
	BeforeIteration []Hook `yaml:"before_iteration,omitempty" json:"before_iteration,omitempty" mapstructure:"before_iteration"`
	AfterIteration  []Hook `yaml:"after_iteration,omitempty" json:"after_iteration,omitempty" mapstructure:"after_iteration"`
}

// Empty reports whether no lifecycle point has any hooks.
func (c Config) Empty() bool {
	return len(c.BeforeSession) == 0 && len(c.AfterSession) == 0 &&
		len(c.BeforeIteration) == 0 && len(c.AfterIteration) == 0
}

// Runner executes hook commands through a shell runner.
type Runner struct {
	// Shell runs the commands; nil falls back to real subprocesses.
	Shell shell.Runner

	// BaseDir anchors relative hook dirs, typically the session's
	// output directory. Empty leaves relative dirs as written.
	BaseDir string

	// Timeout bounds each individual hook; <= 0 uses DefaultTimeout.
	Timeout time.Duration
}

// Execute runs all hooks for one lifecycle point in order. point names
// the lifecycle point (for example "before_session") for logging and
// error context. env entries are appended to each hook's environment.
func (r *Runner) Execute(ctx context.Context, point string, hooks []Hook, env ...string) error {
	for i, h := range hooks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("hook %s[%d]: %w", point, i, err)
		}
		if err := r.runHook(ctx, point, i, h, env); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runHook(ctx context.Context, point string, index int, h Hook, env []string) error {
	if strings.TrimSpace(h.Command) == "" {
		return fmt.Errorf("hook %s[%d]: empty command", point, index)
	}

	// Hook commands are split on whitespace, not parsed by a shell, so
	// arguments cannot be quoted.
	parts := strings.Fields(h.Command)

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runner := r.Shell
	if runner == nil {
		runner = &shell.ExecRunner{}
	}

	dir := h.Dir
	if dir != "" {
		dir = utils.ResolvePath(dir, r.BaseDir)
	}

	res, err := runner.Run(ctx, shell.Spec{
		Command: parts[0],
		Args:    parts[1:],
		Dir:     dir,
		Env:     env,
		Timeout: timeout,
	})
	if err != nil {
		if h.ErrorOnFail {
			return fmt.Errorf("hook %s[%d]: %w", point, index, err)
		}
		slog.Warn("hook failed, continuing", "point", point, "index", index, "error", err)
		return nil
	}

	if len(res.Output) > 0 {
		slog.Debug("hook output", "point", point, "command", parts[0], "output", res.Output)
	}

	if !isAcceptableExit(res.ExitCode, h.ExitCodes) {
		if h.ErrorOnFail {
			return fmt.Errorf("hook %s[%d]: command exited with code %d", point, index, res.ExitCode)
		}
		slog.Warn("hook exited with unexpected code, continuing",
			"point", point, "index", index, "code", res.ExitCode)
	}
	return nil
}

// isAcceptableExit checks whether exitCode is in the allowed list. An
// empty list allows only exit code 0.
func isAcceptableExit(exitCode int, allowedCodes []int) bool {
	if len(allowedCodes) == 0 {
		return exitCode == 0
	}
	for _, code := range allowedCodes {
		if exitCode == code {
			return true
		}
	}
	return false
}
