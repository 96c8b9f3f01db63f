package provider

import (
	"context"
	"errors"
	"sync"
)

const staticName = "static"

// StaticProvider returns canned responses without network access. It
// backs `--provider static` dry runs and the test suites. Responses are
// served in order; the last one repeats once the script is exhausted.
type StaticProvider struct {
	model string

	mu        sync.Mutex
	responses []string
	next      int
	calls     int

	// jsonResponse, when set, answers every FormatJSON request without
	// consuming the positional script.
	jsonResponse string
}

// NewStaticProvider creates a provider that replays the given responses.
func NewStaticProvider(model string, responses ...string) *StaticProvider {
	if model == "" {
		model = "static-1"
	}
	return &StaticProvider{model: model, responses: responses}
}

// NewStaticScaffoldProvider pairs a fixed response for JSON-format
// requests with a replay script for everything else. Contract
// generation asks for JSON, so it receives jsonResponse regardless of
// call order; code generation consumes the script. This keeps dry runs
// working whether a session starts from a prompt or a supplied
// contract.
func NewStaticScaffoldProvider(model, jsonResponse string, responses ...string) *StaticProvider {
	p := NewStaticProvider(model, responses...)
	p.jsonResponse = jsonResponse
	return p
}

func (p *StaticProvider) Name() string  { return staticName }
func (p *StaticProvider) Model() string { return p.model }

func (p *StaticProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *StaticProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return []ModelInfo{{ID: p.model, Description: "canned responses"}}, nil
}

func (p *StaticProvider) Generate(ctx context.Context, opts GenerateOptions) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapErr(staticName, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if opts.ResponseFormat == FormatJSON && p.jsonResponse != "" {
		p.calls++
		return &Response{
			Text:     p.jsonResponse,
			Model:    p.model,
			Provider: staticName,
		}, nil
	}

	if len(p.responses) == 0 {
		return nil, &Error{Provider: staticName, Kind: KindAPI, Err: errors.New("no scripted responses configured")}
	}

	text := p.responses[p.next]
	if p.next < len(p.responses)-1 {
		p.next++
	}
	p.calls++

	return &Response{
		Text:     text,
		Model:    p.model,
		Provider: staticName,
	}, nil
}

// Calls returns how many generation calls the provider has served.
func (p *StaticProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

var _ Provider = (*StaticProvider)(nil)
