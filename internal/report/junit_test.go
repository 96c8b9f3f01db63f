package report

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evolvehq/evolve/internal/contract"
	"github.com/evolvehq/evolve/internal/evolution"
	"github.com/evolvehq/evolve/internal/pipeline"
	"github.com/evolvehq/evolve/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResult() *evolution.Result {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Second)
	return &evolution.Result{
		Success:        false,
		Iterations:     2,
		FilesGenerated: 6,
		TestsPassed:    4,
		TestsFailed:    1,
		TimeMs:         3500,
		ServicePort:    3000,
		Errors:         []string{"tests: tests/notes.test.js: 1 failing"},
		Contract: &contract.Contract{
			App: contract.App{Name: "notes-api", Version: "0.1.0"},
		},
		Pipeline: &pipeline.Result{
			Passed: false,
			Stages: []pipeline.StageResult{
				{Stage: "structure", Passed: true, TimeMs: 10},
				{Stage: "syntax", Passed: true, TimeMs: 40},
				{
					Stage:  "tests",
					Passed: false,
					TimeMs: 1500,
					Errors: []pipeline.Finding{
						{File: "tests/notes.test.js", Message: "1 failing"},
					},
					Warnings: []pipeline.Finding{
						{Message: "slow test run"},
					},
				},
			},
			Summary: pipeline.Summary{TotalErrors: 1, TotalWarnings: 1, StagesPassed: 2, StagesFailed: 1, TimeMs: 1550},
		},
		Tasks: task.Snapshot{
			Done:   2,
			Failed: 1,
			Total:  4,
			Tasks: []task.Task{
				{ID: "contract", Name: "Generate contract", Status: task.StatusDone, StartedAt: &started, CompletedAt: &finished},
				{ID: "code", Name: "Generate code", Status: task.StatusDone},
				{ID: "validate", Name: "Validate application", Status: task.StatusFailed, Error: "1 stage failed"},
				{ID: "deps", Name: "Install dependencies", Status: task.StatusSkipped},
			},
		},
	}
}

func TestFromResult_Structure(t *testing.T) {
	res := newTestResult()
	at := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	suites := FromResult(res, at)

	// 3 stages + 4 tasks
	assert.Equal(t, 7, suites.Tests)
	assert.Equal(t, 2, suites.Failures)
	assert.Equal(t, 0, suites.Errors)

	require.Len(t, suites.TestSuites, 2)
	stages := suites.TestSuites[0]
	assert.Equal(t, "notes-api.validation", stages.Name)
	assert.Equal(t, 3, stages.Tests)
	assert.Equal(t, 1, stages.Failures)
	assert.InDelta(t, 3.5, stages.Time, 0.01)
	assert.Equal(t, "2026-03-01T12:00:05Z", stages.Timestamp)

	tasks := suites.TestSuites[1]
	assert.Equal(t, "notes-api.tasks", tasks.Name)
	assert.Equal(t, 4, tasks.Tests)
	assert.Equal(t, 1, tasks.Failures)
	assert.Equal(t, 1, tasks.Skipped)
}

func TestFromResult_PassedStage(t *testing.T) {
	suites := FromResult(newTestResult(), time.Now())
	tc := suites.TestSuites[0].TestCases[0]

	assert.Equal(t, "structure", tc.Name)
	assert.Equal(t, "notes-api", tc.Classname)
	assert.InDelta(t, 0.01, tc.Time, 0.001)
	assert.Nil(t, tc.Failure)
	assert.Nil(t, tc.Error)
}

func TestFromResult_FailedStage(t *testing.T) {
	suites := FromResult(newTestResult(), time.Now())
	tc := suites.TestSuites[0].TestCases[2]

	assert.Equal(t, "tests", tc.Name)
	require.NotNil(t, tc.Failure)
	assert.Equal(t, "StageFailure", tc.Failure.Type)
	assert.Contains(t, tc.Failure.Message, "1 error(s)")
	assert.Contains(t, tc.Failure.Body, "[FAIL] tests/notes.test.js: 1 failing")
	// Warnings never block, so they stay out of the failure body.
	assert.NotContains(t, tc.Failure.Body, "slow test run")
}

func TestFromResult_TaskCases(t *testing.T) {
	suites := FromResult(newTestResult(), time.Now())
	cases := suites.TestSuites[1].TestCases
	require.Len(t, cases, 4)

	assert.Equal(t, "Generate contract", cases[0].Name)
	assert.Nil(t, cases[0].Failure)
	assert.InDelta(t, 2.0, cases[0].Time, 0.01)

	require.NotNil(t, cases[2].Failure)
	assert.Equal(t, "TaskFailure", cases[2].Failure.Type)
	assert.Equal(t, "1 stage failed", cases[2].Failure.Message)

	require.NotNil(t, cases[3].Skipped)
	assert.Equal(t, "skipped", cases[3].Skipped.Message)
}

func TestFromResult_Properties(t *testing.T) {
	suites := FromResult(newTestResult(), time.Now())
	props := suites.TestSuites[0].Properties

	propMap := make(map[string]string)
	for _, p := range props {
		propMap[p.Name] = p.Value
	}

	assert.Equal(t, "2", propMap["iterations"])
	assert.Equal(t, "6", propMap["files_generated"])
	assert.Equal(t, "3000", propMap["service_port"])
}

func TestFromResult_NoPipeline(t *testing.T) {
	res := &evolution.Result{
		Success:    false,
		Iterations: 1,
		TimeMs:     500,
		Errors:     []string{"contract generation failed: all providers failed"},
	}

	suites := FromResult(res, time.Now())
	require.Len(t, suites.TestSuites, 1)
	suite := suites.TestSuites[0]
	assert.Equal(t, "evolution.validation", suite.Name)
	assert.Equal(t, 1, suite.Tests)
	assert.Equal(t, 1, suite.Errors)

	tc := suite.TestCases[0]
	assert.Equal(t, "evolution", tc.Name)
	require.NotNil(t, tc.Error)
	assert.Equal(t, "SessionError", tc.Error.Type)
	assert.Contains(t, tc.Error.Body, "all providers failed")
}

func TestWriteJUnitXML_ValidXML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.xml")

	err := WriteJUnitXML(newTestResult(), path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.True(t, strings.HasPrefix(content, "<?xml"))

	var parsed JUnitTestSuites
	require.NoError(t, xml.Unmarshal(data, &parsed))
	assert.Equal(t, 7, parsed.Tests)
	require.Len(t, parsed.TestSuites, 2)
	assert.Equal(t, "notes-api.validation", parsed.TestSuites[0].Name)
}
