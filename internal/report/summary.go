package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/evolvehq/evolve/internal/evolution"
	"github.com/evolvehq/evolve/internal/task"
)

// StatusLine returns a plain-language verdict for an evolution result.
func StatusLine(res *evolution.Result) string {
	d := time.Duration(res.TimeMs) * time.Millisecond
	if res.Success {
		return fmt.Sprintf("Passed after %d iteration(s) in %v", res.Iterations, d)
	}
	return fmt.Sprintf("Failed after %d iteration(s) in %v", res.Iterations, d)
}

// Markdown renders res as a GitHub-flavored markdown comment: a verdict
// line, a metrics table, the per-stage breakdown, and the task ledger
// as a checklist. Failure detail goes in a collapsed section.
func Markdown(res *evolution.Result) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("## Evolution report: %s\n\n", appName(res)))
	b.WriteString(fmt.Sprintf("**%s %s**\n\n", statusIcon(res.Success), StatusLine(res)))

	writeMetricsTable(&b, res)

	if res.Pipeline != nil {
		writeStageTable(&b, res)
	}
	if len(res.Tasks.Tasks) > 0 {
		writeTaskChecklist(&b, res)
	}
	if !res.Success && len(res.Errors) > 0 {
		writeFailureDetail(&b, res)
	}

	return b.String()
}

func statusIcon(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

func writeMetricsTable(b *strings.Builder, res *evolution.Result) {
	b.WriteString("| Metric | Value |\n")
	b.WriteString("| --- | --- |\n")
	b.WriteString(fmt.Sprintf("| Iterations | %d |\n", res.Iterations))
	b.WriteString(fmt.Sprintf("| Files generated | %d |\n", res.FilesGenerated))
	if res.TestsPassed > 0 || res.TestsFailed > 0 {
		b.WriteString(fmt.Sprintf("| Tests | %d passed, %d failed |\n", res.TestsPassed, res.TestsFailed))
	}
	if res.ServicePort > 0 {
		b.WriteString(fmt.Sprintf("| Service port | %d |\n", res.ServicePort))
	}
	b.WriteString("\n")
}

func writeStageTable(b *strings.Builder, res *evolution.Result) {
	b.WriteString("### Validation stages\n\n")
	b.WriteString("| Stage | Status | Errors | Warnings | Time |\n")
	b.WriteString("| --- | --- | --- | --- | --- |\n")
	for _, sr := range res.Pipeline.Stages {
		d := time.Duration(sr.TimeMs) * time.Millisecond
		b.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %v |\n",
			sr.Stage, statusIcon(sr.Passed), len(sr.Errors), len(sr.Warnings), d))
	}
	b.WriteString("\n")
}

func writeTaskChecklist(b *strings.Builder, res *evolution.Result) {
	b.WriteString(fmt.Sprintf("### Tasks (%d/%d done)\n\n", res.Tasks.Done, res.Tasks.Total))
	for _, t := range res.Tasks.Tasks {
		mark := " "
		if t.Status == task.StatusDone {
			mark = "x"
		}
		b.WriteString(fmt.Sprintf("- [%s] %s", mark, t.Name))
		switch t.Status {
		case task.StatusFailed:
			if t.Error != "" {
				b.WriteString(fmt.Sprintf(" (failed: %s)", t.Error))
			} else {
				b.WriteString(" (failed)")
			}
		case task.StatusSkipped:
			b.WriteString(" (skipped)")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeFailureDetail(b *strings.Builder, res *evolution.Result) {
	b.WriteString("<details>\n<summary>Failure detail</summary>\n\n")
	for _, e := range res.Errors {
		b.WriteString(fmt.Sprintf("- %s\n", e))
	}
	b.WriteString("\n</details>\n")
}

// WriteMarkdown writes the markdown summary for res to the specified
// file path.
func WriteMarkdown(res *evolution.Result, path string) error {
	return os.WriteFile(path, []byte(Markdown(res)), 0o644)
}
