package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/evolvehq/evolve/internal/shell"
	"github.com/go-viper/mapstructure/v2"
)

// DefaultMaxFileLines is the length past which a generated file earns a
// maintainability warning.
const DefaultMaxFileLines = 400

// QualityStage checks maintainability signals and the contract's
// acceptance thresholds: oversized files, swallowed exceptions, test
// coverage, and lint cleanliness.
type QualityStage struct {
	MaxFileLines int
	// LintCommand runs when the contract demands a clean lint pass.
	LintCommand []string
}

var (
	_ Stage        = (*QualityStage)(nil)
	_ Configurable = (*QualityStage)(nil)
)

type qualitySettings struct {
	MaxFileLines int      `mapstructure:"max_file_lines"`
	LintCommand  []string `mapstructure:"lint_command"`
}

// Configure applies project-level settings.
func (s *QualityStage) Configure(settings map[string]any) error {
	var cfg qualitySettings
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return fmt.Errorf("decoding quality settings: %w", err)
	}
	if cfg.MaxFileLines > 0 {
		s.MaxFileLines = cfg.MaxFileLines
	}
	if len(cfg.LintCommand) > 0 {
		s.LintCommand = cfg.LintCommand
	}
	return nil
}

func (*QualityStage) Name() string { return "quality" }

// emptyCatchRe matches catch clauses whose body contains nothing but
// whitespace, ie. errors silently discarded.
var emptyCatchRe = regexp.MustCompile(`catch\s*(?:\([^)]*\))?\s*\{\s*\}`)

func (s *QualityStage) Run(ctx context.Context, vc *Context) StageResult {
	var sr StageResult

	maxLines := s.MaxFileLines
	if maxLines <= 0 {
		maxLines = DefaultMaxFileLines
	}

	for _, f := range vc.Files {
		if lines := 1 + strings.Count(f.Content, "\n"); lines > maxLines {
			sr.Warnings = append(sr.Warnings, Finding{
				File:    f.Path,
				Message: fmt.Sprintf("file has %d lines (over %d); consider splitting it", lines, maxLines),
			})
		}
		if !isJSFile(f.Path) {
			continue
		}
		if loc := emptyCatchRe.FindStringIndex(f.Content); loc != nil {
			sr.Warnings = append(sr.Warnings, Finding{
				File:    f.Path,
				Line:    lineAt(f.Content, loc[0]),
				Message: "empty catch block swallows errors",
			})
		}
	}

	if vc.Contract != nil {
		s.checkCoverage(vc, &sr)
		s.checkLint(ctx, vc, &sr)
	}
	return sr
}

// coverageSummary mirrors the jest/istanbul coverage-summary.json shape.
type coverageSummary struct {
	Total struct {
		Lines struct {
			Pct float64 `json:"pct"`
		} `json:"lines"`
	} `json:"total"`
}

func (s *QualityStage) checkCoverage(vc *Context, sr *StageResult) {
	min := vc.Contract.Acceptance.MinCoverage
	if min <= 0 {
		return
	}
	summaryPath := filepath.Join(vc.OutputDir, "coverage", "coverage-summary.json")
	data, err := os.ReadFile(summaryPath)
	if err != nil {
		sr.Warnings = append(sr.Warnings, Finding{
			Message: fmt.Sprintf("coverage of %.0f%% required but no coverage report found", min),
		})
		return
	}
	var summary coverageSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		sr.Warnings = append(sr.Warnings, Finding{
			File:    "coverage/coverage-summary.json",
			Message: "unreadable coverage report: " + err.Error(),
		})
		return
	}
	if pct := summary.Total.Lines.Pct; pct < min {
		sr.Errors = append(sr.Errors, Finding{
			Message: fmt.Sprintf("line coverage %.1f%% is below the required %.0f%%", pct, min),
		})
	}
}

func (s *QualityStage) checkLint(ctx context.Context, vc *Context, sr *StageResult) {
	if !vc.Contract.Acceptance.LintClean {
		return
	}
	if len(s.LintCommand) == 0 {
		sr.Warnings = append(sr.Warnings, Finding{
			Message: "lint cleanliness required but no lint command configured",
		})
		return
	}
	res, err := vc.Runner.Run(ctx, shell.Spec{
		Command: s.LintCommand[0],
		Args:    s.LintCommand[1:],
		Dir:     vc.OutputDir,
		Timeout: 2 * time.Minute,
	})
	if err != nil {
		sr.Errors = append(sr.Errors, Finding{Message: "running lint: " + err.Error()})
		return
	}
	if !res.Succeeded() {
		sr.Errors = append(sr.Errors, Finding{
			Message: fmt.Sprintf("lint failed (exit %d)\n%s", res.ExitCode, excerpt(res.Output, 600)),
		})
	}
}

func isJSFile(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx":
		return true
	}
	return false
}
