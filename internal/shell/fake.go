package shell

import (
	"context"
	"sync"
)

// FakeRunner replays scripted results keyed by command name, recording
// every invocation. It stands in for [ExecRunner] in tests and dry runs.
type FakeRunner struct {
	mu sync.Mutex

	// Results maps a command name to its scripted outcome. Commands
	// without an entry succeed with empty output.
	Results map[string]*Result

	// Errs maps a command name to a scripted error, which wins over
	// Results.
	Errs map[string]error

	calls []Spec
}

// Run returns the scripted outcome for spec.Command.
func (f *FakeRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.Errs[spec.Command]; ok {
		return nil, err
	}
	if res, ok := f.Results[spec.Command]; ok {
		out := *res
		out.Command = spec.Command
		return &out, nil
	}
	return &Result{Command: spec.Command, ExitCode: 0}, nil
}

// Calls returns a copy of every recorded invocation in order.
func (f *FakeRunner) Calls() []Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Spec, len(f.calls))
	copy(out, f.calls)
	return out
}

var _ Runner = (*FakeRunner)(nil)
