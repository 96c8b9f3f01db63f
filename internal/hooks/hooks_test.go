package hooks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/evolvehq/evolve/internal/shell"
)

func TestRunHook(t *testing.T) {
	tests := []struct {
		name      string
		hook      Hook
		results   map[string]*shell.Result
		errs      map[string]error
		wantErr   bool
		errSubstr string
	}{
		{
			name:    "command succeeds",
			hook:    Hook{Command: "make snapshot"},
			wantErr: false,
		},
		{
			name:      "empty command returns error",
			hook:      Hook{Command: ""},
			wantErr:   true,
			errSubstr: "empty command",
		},
		{
			name:      "whitespace-only command returns error",
			hook:      Hook{Command: "   "},
			wantErr:   true,
			errSubstr: "empty command",
		},
		{
			name:      "non-zero exit with error_on_fail returns error",
			hook:      Hook{Command: "make check", ErrorOnFail: true},
			results:   map[string]*shell.Result{"make": {ExitCode: 2}},
			wantErr:   true,
			errSubstr: "exited with code 2",
		},
		{
			name:    "non-zero exit without error_on_fail continues",
			hook:    Hook{Command: "make check"},
			results: map[string]*shell.Result{"make": {ExitCode: 2}},
			wantErr: false,
		},
		{
			name:    "custom acceptable exit codes",
			hook:    Hook{Command: "grep -q marker notes.txt", ExitCodes: []int{0, 1}, ErrorOnFail: true},
			results: map[string]*shell.Result{"grep": {ExitCode: 1}},
			wantErr: false,
		},
		{
			name:      "missing binary with error_on_fail returns error",
			hook:      Hook{Command: "frobnicate", ErrorOnFail: true},
			errs:      map[string]error{"frobnicate": errors.New("running frobnicate: executable file not found")},
			wantErr:   true,
			errSubstr: "executable file not found",
		},
		{
			name:    "missing binary without error_on_fail continues",
			hook:    Hook{Command: "frobnicate"},
			errs:    map[string]error{"frobnicate": errors.New("running frobnicate: executable file not found")},
			wantErr: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &shell.FakeRunner{Results: tc.results, Errs: tc.errs}
			r := &Runner{Shell: fake}
			err := r.runHook(context.Background(), "before_session", 0, tc.hook, nil)

			if tc.wantErr && err == nil {
				t.Fatalf("expected error but got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.errSubstr != "" && err != nil {
				if got := err.Error(); !strings.Contains(got, tc.errSubstr) {
					t.Errorf("error %q does not contain %q", got, tc.errSubstr)
				}
			}
		})
	}
}

func TestExecutePassesSpecThrough(t *testing.T) {
	fake := &shell.FakeRunner{}
	r := &Runner{Shell: fake, Timeout: 30 * time.Second}

	hooks := []Hook{
		{Command: "git stash", Dir: "/work/app"},
		{Command: "npm ci"},
	}
	err := r.Execute(context.Background(), "before_iteration", hooks, "EVOLVE_ITERATION=2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := fake.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 hook invocations, got %d", len(calls))
	}
	first := calls[0]
	if first.Command != "git" || len(first.Args) != 1 || first.Args[0] != "stash" {
		t.Errorf("unexpected first invocation: %+v", first)
	}
	if first.Dir != "/work/app" {
		t.Errorf("working directory not passed through, got %q", first.Dir)
	}
	if first.Timeout != 30*time.Second {
		t.Errorf("timeout not passed through, got %s", first.Timeout)
	}
	if len(first.Env) != 1 || first.Env[0] != "EVOLVE_ITERATION=2" {
		t.Errorf("env not passed through, got %v", first.Env)
	}
}

func TestExecuteResolvesRelativeDirs(t *testing.T) {
	fake := &shell.FakeRunner{}
	r := &Runner{Shell: fake, BaseDir: "/sessions/app"}

	hooks := []Hook{
		{Command: "npm test", Dir: "api"},
		{Command: "git stash", Dir: "/work/app"},
		{Command: "ls"},
	}
	if err := r.Execute(context.Background(), "after_iteration", hooks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := fake.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 hook invocations, got %d", len(calls))
	}
	if calls[0].Dir != "/sessions/app/api" {
		t.Errorf("relative dir not anchored to BaseDir, got %q", calls[0].Dir)
	}
	if calls[1].Dir != "/work/app" {
		t.Errorf("absolute dir should pass through unchanged, got %q", calls[1].Dir)
	}
	if calls[2].Dir != "" {
		t.Errorf("empty dir should stay empty, got %q", calls[2].Dir)
	}
}

func TestExecuteStopsAtFirstFatalHook(t *testing.T) {
	fake := &shell.FakeRunner{Results: map[string]*shell.Result{"make": {ExitCode: 1}}}
	r := &Runner{Shell: fake}

	hooks := []Hook{
		{Command: "make check", ErrorOnFail: true},
		{Command: "echo never"},
	}
	err := r.Execute(context.Background(), "after_session", hooks)
	if err == nil {
		t.Fatal("expected error from fatal hook")
	}
	if calls := fake.Calls(); len(calls) != 1 {
		t.Errorf("expected execution to stop after first hook, got %d calls", len(calls))
	}
}

func TestExecuteContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{Shell: &shell.FakeRunner{}}
	err := r.Execute(ctx, "before_session", []Hook{{Command: "echo hello"}})
	if err == nil {
		t.Fatal("expected context cancellation error but got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error %v does not wrap context.Canceled", err)
	}
}

func TestConfigEmpty(t *testing.T) {
	if !(Config{}).Empty() {
		t.Error("zero config should be empty")
	}
	cfg := Config{AfterIteration: []Hook{{Command: "true"}}}
	if cfg.Empty() {
		t.Error("config with hooks should not be empty")
	}
}
