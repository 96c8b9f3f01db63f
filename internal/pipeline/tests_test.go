package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/evolvehq/evolve/internal/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestWithTests = `{"name":"taskman","scripts":{"test":"jest --coverage"}}`

func TestTestsStage(t *testing.T) {
	t.Run("passing run records stats", func(t *testing.T) {
		runner := &shell.FakeRunner{Results: map[string]*shell.Result{
			"npm": {ExitCode: 0, Output: "Tests: 12 passed, 12 total\n"},
		}}
		vc := &Context{
			Files:     codegenFiles("package.json", manifestWithTests),
			OutputDir: "/tmp/out",
			Runner:    runner,
		}

		sr := NewTestsStage().Run(context.Background(), vc)

		assert.Empty(t, sr.Errors)
		stats, ok := sr.Data.(TestStats)
		require.True(t, ok)
		assert.Equal(t, 12, stats.Passed)
		assert.Equal(t, 0, stats.Failed)

		calls := runner.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "npm", calls[0].Command)
		assert.Equal(t, []string{"test", "--silent"}, calls[0].Args)
		assert.Equal(t, "/tmp/out", calls[0].Dir)
	})

	t.Run("failures are counted and reported", func(t *testing.T) {
		runner := &shell.FakeRunner{Results: map[string]*shell.Result{
			"npm": {ExitCode: 1, Output: "Tests: 3 failed, 12 passed, 15 total\n"},
		}}
		vc := &Context{
			Files:  codegenFiles("package.json", manifestWithTests),
			Runner: runner,
		}

		sr := NewTestsStage().Run(context.Background(), vc)

		require.Len(t, sr.Errors, 1)
		assert.Contains(t, sr.Errors[0].Message, "3 of 15 tests failed")
		stats := sr.Data.(TestStats)
		assert.Equal(t, 12, stats.Passed)
		assert.Equal(t, 3, stats.Failed)
	})

	t.Run("nonzero exit without parseable counts", func(t *testing.T) {
		runner := &shell.FakeRunner{Results: map[string]*shell.Result{
			"npm": {ExitCode: 127, Output: "sh: jest: not found\n"},
		}}
		vc := &Context{
			Files:  codegenFiles("package.json", manifestWithTests),
			Runner: runner,
		}

		sr := NewTestsStage().Run(context.Background(), vc)
		require.Len(t, sr.Errors, 1)
		assert.Contains(t, sr.Errors[0].Message, "tests failed (exit 127)")
	})

	t.Run("no manifest skips with a warning", func(t *testing.T) {
		sr := NewTestsStage().Run(context.Background(), &Context{Runner: &shell.FakeRunner{}})

		assert.Empty(t, sr.Errors)
		require.Len(t, sr.Warnings, 1)
		assert.Contains(t, sr.Warnings[0].Message, "no package.json")
		stats, ok := sr.Data.(TestStats)
		require.True(t, ok)
		assert.Zero(t, stats.Passed)
	})

	t.Run("npm placeholder script skips with a warning", func(t *testing.T) {
		manifest := `{"scripts":{"test":"echo \"Error: no test specified\" && exit 1"}}`
		runner := &shell.FakeRunner{}
		vc := &Context{
			Files:  codegenFiles("package.json", manifest),
			Runner: runner,
		}

		sr := NewTestsStage().Run(context.Background(), vc)

		assert.Empty(t, sr.Errors)
		require.Len(t, sr.Warnings, 1)
		assert.Contains(t, sr.Warnings[0].Message, "no test script declared")
		assert.Empty(t, runner.Calls())
	})

	t.Run("nested manifest sets the working directory", func(t *testing.T) {
		runner := &shell.FakeRunner{}
		vc := &Context{
			Files:     codegenFiles("app/package.json", manifestWithTests),
			OutputDir: "/tmp/out",
			Runner:    runner,
		}

		NewTestsStage().Run(context.Background(), vc)

		calls := runner.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, filepath.Join("/tmp/out", "app"), calls[0].Dir)
	})

	t.Run("timeout is an error", func(t *testing.T) {
		runner := &shell.FakeRunner{Errs: map[string]error{
			"npm": &shell.TimeoutError{Command: "npm", Timeout: time.Second},
		}}
		vc := &Context{
			Files:  codegenFiles("package.json", manifestWithTests),
			Runner: runner,
		}

		sr := NewTestsStage().Run(context.Background(), vc)
		require.Len(t, sr.Errors, 1)
		assert.Contains(t, sr.Errors[0].Message, "test run timed out")
	})

	t.Run("configure overrides command and timeout", func(t *testing.T) {
		stage := NewTestsStage()
		require.NoError(t, stage.Configure(map[string]any{
			"command":         []string{"yarn", "test"},
			"timeout_seconds": 90,
		}))
		assert.Equal(t, []string{"yarn", "test"}, stage.Command)
		assert.Equal(t, 90*time.Second, stage.Timeout)
	})
}

func TestParseTestOutput(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   TestStats
	}{
		{"jest", "Tests: 2 failed, 10 passed, 12 total", TestStats{Passed: 10, Failed: 2}},
		{"mocha", "  14 passing (230ms)\n  1 failing\n", TestStats{Passed: 14, Failed: 1}},
		{"all green", "Tests: 8 passed, 8 total", TestStats{Passed: 8}},
		{"silence", "done", TestStats{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseTestOutput(tc.output))
		})
	}
}
