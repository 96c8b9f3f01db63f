// Package pipeline validates generated applications by running an
// ordered list of independent stages. Each stage inspects the same
// validation context and reports findings; error findings block,
// warnings do not. The pipeline is stateless across runs and one
// stage's crash never prevents the remaining stages from measuring.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"time"

	"github.com/evolvehq/evolve/internal/codegen"
	"github.com/evolvehq/evolve/internal/contract"
	"github.com/evolvehq/evolve/internal/shell"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("evolve.pipeline")

// Finding is one problem reported by a validation stage.
type Finding struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	switch {
	case f.File != "" && f.Line > 0:
		return fmt.Sprintf("%s:%d: %s", f.File, f.Line, f.Message)
	case f.File != "":
		return fmt.Sprintf("%s: %s", f.File, f.Message)
	default:
		return f.Message
	}
}

// StageResult is the outcome of one stage. Passed is derived from the
// absence of error findings; warnings never block.
type StageResult struct {
	Stage    string    `json:"stage"`
	Passed   bool      `json:"passed"`
	Errors   []Finding `json:"errors,omitempty"`
	Warnings []Finding `json:"warnings,omitempty"`
	TimeMs   int64     `json:"time_ms"`
	// Data carries an optional stage-specific payload for structured
	// consumers, such as test counts.
	Data any `json:"-"`
}

// Summary aggregates one pipeline run.
type Summary struct {
	TotalErrors   int   `json:"total_errors"`
	TotalWarnings int   `json:"total_warnings"`
	StagesPassed  int   `json:"stages_passed"`
	StagesFailed  int   `json:"stages_failed"`
	TimeMs        int64 `json:"time_ms"`
}

// Result is the outcome of one validation attempt. Results are never
// merged across attempts; a repair round starts from a fresh one.
type Result struct {
	Passed  bool          `json:"passed"`
	Stages  []StageResult `json:"stages"`
	Summary Summary       `json:"summary"`
}

// ErrorLines renders every stage error as a "stage: file: message"
// feedback line for repair prompts, in stage order.
func (r *Result) ErrorLines() []string {
	var lines []string
	for _, s := range r.Stages {
		for _, f := range s.Errors {
			lines = append(lines, s.Stage+": "+f.String())
		}
	}
	return lines
}

// TestStats summarizes a test run. The tests stage attaches it to its
// result as Data.
type TestStats struct {
	Passed int
	Failed int
}

// TestStats returns the counts attached by the tests stage, if it ran.
func (r *Result) TestStats() (TestStats, bool) {
	for _, s := range r.Stages {
		if st, ok := s.Data.(TestStats); ok {
			return st, true
		}
	}
	return TestStats{}, false
}

// Context carries everything a stage may inspect: the generated files,
// the governing contract, and the output directory the files were
// written to. Stages treat it as read-only.
type Context struct {
	Contract  *contract.Contract
	Files     []codegen.GeneratedFile
	OutputDir string
	// Runner executes external commands for stages that need them
	// (tests, runtime). Defaults to [shell.ExecRunner] in New.
	Runner shell.Runner
}

// File returns the generated file with the given slash-separated path.
func (vc *Context) File(relPath string) (*codegen.GeneratedFile, bool) {
	for i := range vc.Files {
		if vc.Files[i].Path == relPath {
			return &vc.Files[i], true
		}
	}
	return nil, false
}

// PackageJSON locates and decodes the dependency manifest closest to
// the project root. The second return is the manifest's path.
func (vc *Context) PackageJSON() (map[string]any, string, bool) {
	best := -1
	for i, f := range vc.Files {
		if path.Base(f.Path) != "package.json" {
			continue
		}
		if best < 0 || segmentCount(f.Path) < segmentCount(vc.Files[best].Path) {
			best = i
		}
	}
	if best < 0 {
		return nil, "", false
	}
	var pkg map[string]any
	if err := json.Unmarshal([]byte(vc.Files[best].Content), &pkg); err != nil {
		return nil, vc.Files[best].Path, false
	}
	return pkg, vc.Files[best].Path, true
}

func segmentCount(p string) int {
	n := 1
	for _, ch := range p {
		if ch == '/' {
			n++
		}
	}
	return n
}

// Stage is one independent validation step. Implementations fill
// Errors and Warnings; the pipeline computes Passed and timing.
type Stage interface {
	Name() string
	Run(ctx context.Context, vc *Context) StageResult
}

// Configurable is implemented by stages that accept settings from the
// project configuration.
type Configurable interface {
	Configure(settings map[string]any) error
}

// Options selects and configures the stages of a pipeline.
type Options struct {
	// Skip removes the named stages. Skipped stages are omitted from
	// the result entirely, not reported as vacuously passed.
	Skip []string
	// Only restricts the pipeline to the named stages, preserving the
	// default order. Empty means all.
	Only []string
	// Settings carries per-stage configuration keyed by stage name.
	Settings map[string]map[string]any
}

// Pipeline runs validation stages in a fixed order.
type Pipeline struct {
	stages []Stage
}

// DefaultStages returns all stages in execution order.
func DefaultStages() []Stage {
	return []Stage{
		&SyntaxStage{},
		&SchemaStage{},
		&AssertionStage{},
		&StaticStage{},
		NewTestsStage(),
		&QualityStage{},
		&SecurityStage{},
		NewRuntimeStage(),
	}
}

// New builds a pipeline from the default stages filtered and
// configured by opts.
func New(opts Options) (*Pipeline, error) {
	var stages []Stage
	for _, s := range DefaultStages() {
		if len(opts.Only) > 0 && !slices.Contains(opts.Only, s.Name()) {
			continue
		}
		if slices.Contains(opts.Skip, s.Name()) {
			continue
		}
		if settings, ok := opts.Settings[s.Name()]; ok {
			c, configurable := s.(Configurable)
			if !configurable {
				return nil, fmt.Errorf("stage %s does not accept settings", s.Name())
			}
			if err := c.Configure(settings); err != nil {
				return nil, fmt.Errorf("configuring stage %s: %w", s.Name(), err)
			}
		}
		stages = append(stages, s)
	}
	return &Pipeline{stages: stages}, nil
}

// Stages returns the names of the stages this pipeline will run.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes every stage in order against vc and aggregates the
// results. A stage panic is converted into a failing result for that
// stage; subsequent stages still run.
func (p *Pipeline) Run(ctx context.Context, vc *Context) *Result {
	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()

	if vc.Runner == nil {
		vc.Runner = &shell.ExecRunner{}
	}

	result := &Result{Passed: true}
	start := time.Now()

	for _, s := range p.stages {
		sr := p.runStage(ctx, s, vc)
		result.Stages = append(result.Stages, sr)

		result.Summary.TotalErrors += len(sr.Errors)
		result.Summary.TotalWarnings += len(sr.Warnings)
		if sr.Passed {
			result.Summary.StagesPassed++
		} else {
			result.Summary.StagesFailed++
			result.Passed = false
		}
	}

	result.Summary.TimeMs = time.Since(start).Milliseconds()
	span.SetAttributes(
		attribute.Bool("passed", result.Passed),
		attribute.Int("errors", result.Summary.TotalErrors),
		attribute.Int("warnings", result.Summary.TotalWarnings),
	)
	return result
}

func (p *Pipeline) runStage(ctx context.Context, s Stage, vc *Context) (sr StageResult) {
	ctx, span := tracer.Start(ctx, "Stage."+s.Name())
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			sr = StageResult{
				Stage:  s.Name(),
				Errors: []Finding{{Message: fmt.Sprintf("stage panicked: %v", r)}},
			}
		}
		sr.Stage = s.Name()
		sr.Passed = len(sr.Errors) == 0
		sr.TimeMs = time.Since(start).Milliseconds()
		span.SetAttributes(attribute.Bool("passed", sr.Passed))
		span.End()
	}()

	sr = s.Run(ctx, vc)
	return sr
}

// excerpt truncates command output for inclusion in a finding.
func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
