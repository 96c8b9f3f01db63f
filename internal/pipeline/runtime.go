package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/evolvehq/evolve/internal/shell"
	"github.com/go-viper/mapstructure/v2"
)

// DefaultRuntimeTimeout bounds the runtime smoke check.
const DefaultRuntimeTimeout = 30 * time.Second

// RuntimeStage smoke-checks that the generated service can at least be
// loaded by its runtime: the entrypoint must pass node's syntax check,
// and a Dockerfile, when present, must be buildable in shape. It never
// starts the service.
type RuntimeStage struct {
	// Command overrides the default node --check invocation.
	Command []string
	Timeout time.Duration
}

var (
	_ Stage        = (*RuntimeStage)(nil)
	_ Configurable = (*RuntimeStage)(nil)
)

// NewRuntimeStage returns a runtime stage with defaults applied.
func NewRuntimeStage() *RuntimeStage {
	return &RuntimeStage{Timeout: DefaultRuntimeTimeout}
}

type runtimeSettings struct {
	Command        []string `mapstructure:"command"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// Configure applies project-level settings.
func (s *RuntimeStage) Configure(settings map[string]any) error {
	var cfg runtimeSettings
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return fmt.Errorf("decoding runtime settings: %w", err)
	}
	if len(cfg.Command) > 0 {
		s.Command = cfg.Command
	}
	if cfg.TimeoutSeconds > 0 {
		s.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return nil
}

func (*RuntimeStage) Name() string { return "runtime" }

func (s *RuntimeStage) Run(ctx context.Context, vc *Context) StageResult {
	var sr StageResult

	command := s.Command
	if len(command) == 0 {
		entry := resolveEntrypoint(vc)
		if entry == "" {
			sr.Warnings = append(sr.Warnings, Finding{Message: "no entrypoint found; skipping runtime check"})
			s.checkDockerfile(vc, &sr)
			return sr
		}
		command = []string{"node", "--check", entry}
	}

	res, err := vc.Runner.Run(ctx, shell.Spec{
		Command: command[0],
		Args:    command[1:],
		Dir:     vc.OutputDir,
		Timeout: s.Timeout,
	})
	switch {
	case errors.Is(err, exec.ErrNotFound):
		sr.Warnings = append(sr.Warnings, Finding{
			Message: command[0] + " is not installed; skipping runtime check",
		})
	case shell.IsTimeout(err):
		sr.Errors = append(sr.Errors, Finding{Message: fmt.Sprintf("runtime check timed out after %s", s.Timeout)})
	case err != nil:
		sr.Errors = append(sr.Errors, Finding{Message: "runtime check: " + err.Error()})
	case !res.Succeeded():
		sr.Errors = append(sr.Errors, Finding{
			Message: fmt.Sprintf("runtime check failed (exit %d)\n%s", res.ExitCode, excerpt(res.Output, 600)),
		})
	}

	s.checkDockerfile(vc, &sr)
	return sr
}

// entryCandidates are tried in order when package.json does not name a
// main module.
var entryCandidates = []string{
	"server.js", "app.js", "index.js",
	"api/server.js", "api/app.js", "api/index.js",
	"src/server.js", "src/app.js", "src/index.js",
}

func resolveEntrypoint(vc *Context) string {
	if pkg, pkgPath, ok := vc.PackageJSON(); ok {
		if main, _ := pkg["main"].(string); main != "" {
			entry := path.Join(path.Dir(pkgPath), main)
			if _, ok := vc.File(entry); ok {
				return entry
			}
		}
	}
	for _, candidate := range entryCandidates {
		if _, ok := vc.File(candidate); ok {
			return candidate
		}
	}
	return ""
}

func (*RuntimeStage) checkDockerfile(vc *Context, sr *StageResult) {
	df, ok := vc.File("Dockerfile")
	if !ok {
		return
	}
	for i, line := range strings.Split(df.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		word := strings.ToUpper(strings.Fields(trimmed)[0])
		// ARG is the only instruction Docker permits before FROM.
		if word != "FROM" && word != "ARG" {
			sr.Errors = append(sr.Errors, Finding{
				File: df.Path, Line: i + 1,
				Message: "Dockerfile must begin with a FROM instruction, found " + word,
			})
		}
		return
	}
	sr.Errors = append(sr.Errors, Finding{File: df.Path, Message: "Dockerfile is empty"})
}
