// Package codegen turns a contract into generated source files. The
// generator prompts the model for a complete project, scans the
// response for fenced code blocks, and maps every block to a relative
// output path. Path mapping is deterministic: the same contract and
// the same response text always yield the same file set.
package codegen

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evolvehq/evolve/internal/contract"
	"github.com/evolvehq/evolve/internal/prompt"
	"github.com/evolvehq/evolve/internal/provider"
	"github.com/evolvehq/evolve/internal/utils"
)

// Generation defaults.
const (
	DefaultTemperature float32 = 0.3
	DefaultMaxTokens           = 8192
)

// TargetRoot is the bucket assigned to files without a directory
// component.
const TargetRoot = "root"

// GeneratedFile is one output artifact extracted from a model
// response. Files are never mutated after creation; a repair round
// produces a brand-new set.
type GeneratedFile struct {
	// Path is relative to the output directory, slash-separated.
	Path    string `json:"path"`
	Content string `json:"content"`
	// Target is the bucket the file belongs to, derived from the first
	// path segment ("api", "frontend", ...).
	Target string `json:"target"`
}

// Result is the outcome of one code generation call. Success means at
// least one file was extracted; per-block mapping problems are
// recorded in Errors without failing the call.
type Result struct {
	Success bool            `json:"success"`
	Files   []GeneratedFile `json:"files"`
	Errors  []string        `json:"errors,omitempty"`
}

// TextGenerator is the slice of the provider manager the generator
// needs. *provider.Manager satisfies it.
type TextGenerator interface {
	Generate(ctx context.Context, opts provider.GenerateOptions) (*provider.Response, error)
}

// Generator produces code from contracts.
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

// NewGenerator returns a code generator backed by llm and the built-in
// prompt templates.
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

// Generate asks the model for a complete implementation of the
// contract and extracts the resulting files. A response without any
// extractable file yields Success=false, not an error; errors are
// reserved for prompt and provider failures.
func (g *Generator) Generate(ctx context.Context, c *contract.Contract) (*Result, error) {
	contractJSON, err := contract.FormatJSON(c)
	if err != nil {
		return nil, err
	}

	msgs, err := g.prompts.Build(prompt.TemplateCode, prompt.CodeVars{
		AppName:      c.App.Name,
		ContractJSON: contractJSON,
		Framework:    c.TechStack.Framework,
		Language:     c.TechStack.Language,
		Runtime:      c.TechStack.Runtime,
		Port:         c.TechStack.Port,
		Instructions: c.InstructionLines(),
	})
	if err != nil {
		return nil, err
	}
	return g.generate(ctx, c, msgs)
}

// Fix asks the model to correct previously generated files given the
// validation errors they produced. Extraction semantics match
// [Generator.Generate]; blocks the model chose not to re-emit are
// simply absent from the result.
func (g *Generator) Fix(ctx context.Context, c *contract.Contract, files []GeneratedFile, validationErrors []string) (*Result, error) {
	contractJSON, err := contract.FormatJSON(c)
	if err != nil {
		return nil, err
	}

	fixFiles := make([]prompt.FixFile, len(files))
	for i, f := range files {
		fixFiles[i] = prompt.FixFile{Path: f.Path, Content: f.Content}
	}

	msgs, err := g.prompts.Build(prompt.TemplateFix, prompt.FixVars{
		AppName:      c.App.Name,
		ContractJSON: contractJSON,
		Files:        fixFiles,
		Errors:       validationErrors,
	})
	if err != nil {
		return nil, err
	}
	return g.generate(ctx, c, msgs)
}

func (g *Generator) generate(ctx context.Context, c *contract.Contract, msgs prompt.Messages) (*Result, error) {
	resp, err := g.llm.Generate(ctx, provider.GenerateOptions{
		System:      msgs.System,
		User:        msgs.User,
		Temperature: utils.Ptr(g.temperature),
		MaxTokens:   utils.Ptr(g.maxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("code generation: %w", err)
	}

	result := ExtractFiles(resp.Text, c)
	slog.Debug("code generated",
		"app", c.App.Name,
		"files", len(result.Files),
		"extraction_errors", len(result.Errors),
		"provider", resp.Provider,
		"model", resp.Model)
	return result, nil
}
