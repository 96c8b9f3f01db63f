package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/evolvehq/evolve/internal/prompt"
	"github.com/evolvehq/evolve/internal/provider"
	"github.com/evolvehq/evolve/internal/utils"
)

// Generation defaults. Contracts want low temperature output: the goal
// is a parseable document, not creative variety.
const (
	DefaultTemperature float32 = 0.2
	DefaultMaxTokens           = 4096
)

// TextGenerator is the slice of the provider manager the generator
// needs. *provider.Manager satisfies it.
type TextGenerator interface {
	Generate(ctx context.Context, opts provider.GenerateOptions) (*provider.Response, error)
}

// Generator turns natural-language application descriptions into
// validated contracts. It performs single attempts only; the retry
// policy belongs to the caller, which can feed a rejected attempt back
// through [Generator.Fix].
type Generator struct {
	llm         TextGenerator
	prompts     *prompt.Builder
	temperature float32
	maxTokens   int
}

// GeneratorOption configures a [Generator].
type GeneratorOption func(*Generator)

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float32) GeneratorOption {
	return func(g *Generator) { g.temperature = t }
}

// WithMaxTokens overrides the response token budget.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) { g.maxTokens = n }
}

// NewGenerator returns a contract generator backed by llm and the
// built-in prompt templates.
func NewGenerator(llm TextGenerator, prompts *prompt.Builder, opts ...GeneratorOption) *Generator {
	g := &Generator{
		llm:         llm,
		prompts:     prompts,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces a contract from a free-text application
// description. Malformed or invalid model output fails with a
// [*ValidationError] carrying the raw response text.
func (g *Generator) Generate(ctx context.Context, userPrompt string) (*Contract, error) {
	msgs, err := g.prompts.Build(prompt.TemplateContract, prompt.ContractVars{Prompt: userPrompt})
	if err != nil {
		return nil, err
	}
	return g.generate(ctx, msgs)
}

// Fix re-prompts after a rejected attempt, appending the prior raw
// output and its issues as correction context.
func (g *Generator) Fix(ctx context.Context, userPrompt string, rejected *ValidationError) (*Contract, error) {
	msgs, err := g.prompts.Build(prompt.TemplateContractFix, prompt.ContractFixVars{
		Prompt:    userPrompt,
		RawOutput: rejected.Raw,
		Issues:    rejected.Issues,
	})
	if err != nil {
		return nil, err
	}
	return g.generate(ctx, msgs)
}

func (g *Generator) generate(ctx context.Context, msgs prompt.Messages) (*Contract, error) {
	resp, err := g.llm.Generate(ctx, provider.GenerateOptions{
		System:         msgs.System,
		User:           msgs.User,
		Temperature:    utils.Ptr(g.temperature),
		MaxTokens:      utils.Ptr(g.maxTokens),
		ResponseFormat: provider.FormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("contract generation: %w", err)
	}

	raw := resp.Text
	jsonText, err := ExtractJSON(raw)
	if err != nil {
		if errors.Is(err, ErrNoJSON) {
			return nil, &ValidationError{Raw: raw, Issues: []string{"response contained no JSON object"}}
		}
		return nil, err
	}

	if errs := SchemaErrors([]byte(jsonText)); len(errs) > 0 {
		return nil, &ValidationError{Raw: raw, Issues: errs}
	}

	var c Contract
	if err := json.Unmarshal([]byte(jsonText), &c); err != nil {
		return nil, &ValidationError{Raw: raw, Issues: []string{fmt.Sprintf("JSON parse error: %v", err)}}
	}

	if err := c.Validate(); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Raw = raw
			return nil, ve
		}
		return nil, err
	}
	c.Normalize()

	slog.Debug("contract generated",
		"app", c.App.Name,
		"entities", len(c.Entities),
		"resources", len(c.API.Resources),
		"provider", resp.Provider,
		"model", resp.Model)
	return &c, nil
}
