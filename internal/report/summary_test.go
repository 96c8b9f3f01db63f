package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evolvehq/evolve/internal/evolution"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusLine(t *testing.T) {
	res := newTestResult()
	assert.Equal(t, "Failed after 2 iteration(s) in 3.5s", StatusLine(res))

	res.Success = true
	res.Iterations = 1
	res.TimeMs = 800
	assert.Equal(t, "Passed after 1 iteration(s) in 800ms", StatusLine(res))
}

func TestMarkdown_FailedSession(t *testing.T) {
	md := Markdown(newTestResult())

	assert.Contains(t, md, "## Evolution report: notes-api")
	assert.Contains(t, md, "❌ Failed after 2 iteration(s)")
	assert.Contains(t, md, "| Iterations | 2 |")
	assert.Contains(t, md, "| Files generated | 6 |")
	assert.Contains(t, md, "| Tests | 4 passed, 1 failed |")
	assert.Contains(t, md, "| Service port | 3000 |")

	assert.Contains(t, md, "### Validation stages")
	assert.Contains(t, md, "| structure | ✅ | 0 | 0 | 10ms |")
	assert.Contains(t, md, "| tests | ❌ | 1 | 1 | 1.5s |")

	assert.Contains(t, md, "### Tasks (2/4 done)")
	assert.Contains(t, md, "- [x] Generate contract")
	assert.Contains(t, md, "- [ ] Validate application (failed: 1 stage failed)")
	assert.Contains(t, md, "- [ ] Install dependencies (skipped)")

	assert.Contains(t, md, "<summary>Failure detail</summary>")
	assert.Contains(t, md, "- tests: tests/notes.test.js: 1 failing")
}

func TestMarkdown_PassedSession(t *testing.T) {
	res := newTestResult()
	res.Success = true
	res.Errors = nil

	md := Markdown(res)
	assert.Contains(t, md, "✅ Passed after 2 iteration(s)")
	assert.NotContains(t, md, "Failure detail")
}

func TestMarkdown_NoPipeline(t *testing.T) {
	res := &evolution.Result{
		Success:    false,
		Iterations: 1,
		Errors:     []string{"contract generation failed"},
	}

	md := Markdown(res)
	assert.Contains(t, md, "## Evolution report: evolution")
	assert.NotContains(t, md, "### Validation stages")
	assert.NotContains(t, md, "### Tasks")
	assert.Contains(t, md, "- contract generation failed")
}

func TestWriteMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.md")

	require.NoError(t, WriteMarkdown(newTestResult(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "## Evolution report:"))
}
