package pipeline

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/evolvehq/evolve/internal/shell"
	"github.com/go-viper/mapstructure/v2"
)

// DefaultTestTimeout bounds one test run.
const DefaultTestTimeout = 5 * time.Minute

// TestsStage executes the generated project's test script and parses
// pass/fail counts out of the output. Projects without a test script
// are reported as a warning, not a failure.
type TestsStage struct {
	// Command overrides the test invocation. Defaults to npm test.
	Command []string
	Timeout time.Duration
}

var (
	_ Stage        = (*TestsStage)(nil)
	_ Configurable = (*TestsStage)(nil)
)

// NewTestsStage returns a tests stage with defaults applied.
func NewTestsStage() *TestsStage {
	return &TestsStage{
		Command: []string{"npm", "test", "--silent"},
		Timeout: DefaultTestTimeout,
	}
}

type testsSettings struct {
	Command        []string `mapstructure:"command"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// Configure applies project-level settings.
func (s *TestsStage) Configure(settings map[string]any) error {
	var cfg testsSettings
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return fmt.Errorf("decoding tests settings: %w", err)
	}
	if len(cfg.Command) > 0 {
		s.Command = cfg.Command
	}
	if cfg.TimeoutSeconds > 0 {
		s.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return nil
}

func (*TestsStage) Name() string { return "tests" }

func (s *TestsStage) Run(ctx context.Context, vc *Context) StageResult {
	var sr StageResult
	sr.Data = TestStats{}

	pkg, pkgPath, ok := vc.PackageJSON()
	if !ok {
		sr.Warnings = append(sr.Warnings, Finding{Message: "no package.json; skipping test execution"})
		return sr
	}
	if !hasTestScript(pkg) {
		sr.Warnings = append(sr.Warnings, Finding{
			File:    pkgPath,
			Message: "no test script declared; skipping test execution",
		})
		return sr
	}

	workDir := filepath.Join(vc.OutputDir, filepath.FromSlash(path.Dir(pkgPath)))
	res, err := vc.Runner.Run(ctx, shell.Spec{
		Command: s.Command[0],
		Args:    s.Command[1:],
		Dir:     workDir,
		Timeout: s.Timeout,
	})
	if err != nil {
		if shell.IsTimeout(err) {
			sr.Errors = append(sr.Errors, Finding{Message: fmt.Sprintf("test run timed out after %s", s.Timeout)})
		} else {
			sr.Errors = append(sr.Errors, Finding{Message: "running tests: " + err.Error()})
		}
		return sr
	}

	stats := parseTestOutput(res.Output)
	sr.Data = stats

	if !res.Succeeded() {
		msg := fmt.Sprintf("tests failed (exit %d)", res.ExitCode)
		if stats.Failed > 0 {
			msg = fmt.Sprintf("%d of %d tests failed", stats.Failed, stats.Passed+stats.Failed)
		}
		sr.Errors = append(sr.Errors, Finding{Message: msg + "\n" + excerpt(res.Output, 600)})
	}
	return sr
}

func hasTestScript(pkg map[string]any) bool {
	scripts, _ := pkg["scripts"].(map[string]any)
	script, _ := scripts["test"].(string)
	script = strings.TrimSpace(script)
	if script == "" {
		return false
	}
	// npm's scaffolded placeholder exits non-zero without running
	// anything.
	return !strings.Contains(script, "no test specified")
}

var (
	// mocha prints "12 passing", jest prints "Tests: 2 failed, 10 passed".
	passedRe = regexp.MustCompile(`(\d+)\s+(?:passing|passed)`)
	failedRe = regexp.MustCompile(`(\d+)\s+(?:failing|failed)`)
)

func parseTestOutput(output string) TestStats {
	var stats TestStats
	if m := passedRe.FindStringSubmatch(output); m != nil {
		fmt.Sscanf(m[1], "%d", &stats.Passed)
	}
	if m := failedRe.FindStringSubmatch(output); m != nil {
		fmt.Sscanf(m[1], "%d", &stats.Failed)
	}
	return stats
}
