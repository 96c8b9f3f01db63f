// Package report renders an evolution result for CI consumers: JUnit
// XML of the validation stages and a markdown summary suitable for a
// pull-request comment.
package report

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/evolvehq/evolve/internal/evolution"
	"github.com/evolvehq/evolve/internal/pipeline"
	"github.com/evolvehq/evolve/internal/task"
)

// JUnit XML schema types

// JUnitTestSuites is the top-level container.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite maps to one group of outcomes: the validation stages
// of the final pipeline run, or the session task ledger.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase maps to one validation stage or one tracked task.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

// JUnitFailure represents a stage or task that ran and did not pass.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitError represents a session that failed before validation could run.
type JUnitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitSkipped marks a case as skipped.
type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitProperty is a key-value metadata entry.
type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// FromResult converts an evolution result to JUnit XML. The validation
// suite holds one case per pipeline stage; the tasks suite holds one
// case per tracked task. at becomes the suite timestamp.
func FromResult(res *evolution.Result, at time.Time) *JUnitTestSuites {
	app := appName(res)
	ts := at.Format(time.RFC3339)

	suites := &JUnitTestSuites{
		TestSuites: []JUnitTestSuite{
			stageSuite(res, app, ts),
		},
	}
	if len(res.Tasks.Tasks) > 0 {
		suites.TestSuites = append(suites.TestSuites, taskSuite(res, app, ts))
	}

	for _, s := range suites.TestSuites {
		suites.Tests += s.Tests
		suites.Failures += s.Failures
		suites.Errors += s.Errors
		suites.Time += s.Time
	}
	return suites
}

func appName(res *evolution.Result) string {
	if res.Contract != nil && res.Contract.App.Name != "" {
		return res.Contract.App.Name
	}
	return "evolution"
}

func stageSuite(res *evolution.Result, app, ts string) JUnitTestSuite {
	suite := JUnitTestSuite{
		Name:      app + ".validation",
		Time:      float64(res.TimeMs) / 1000.0,
		Timestamp: ts,
		Properties: []JUnitProperty{
			{Name: "iterations", Value: fmt.Sprintf("%d", res.Iterations)},
			{Name: "files_generated", Value: fmt.Sprintf("%d", res.FilesGenerated)},
		},
	}
	if res.ServicePort > 0 {
		suite.Properties = append(suite.Properties, JUnitProperty{
			Name: "service_port", Value: fmt.Sprintf("%d", res.ServicePort),
		})
	}

	if res.Pipeline == nil {
		// Validation never ran; surface the session failure as a single
		// errored case so CI still reports something actionable.
		tc := JUnitTestCase{Name: "evolution", Classname: app}
		if !res.Success {
			tc.Error = &JUnitError{
				Message: "session failed before validation",
				Type:    "SessionError",
				Body:    strings.Join(res.Errors, "\n"),
			}
			suite.Errors = 1
		}
		suite.Tests = 1
		suite.TestCases = []JUnitTestCase{tc}
		return suite
	}

	for _, sr := range res.Pipeline.Stages {
		tc := convertStage(app, sr)
		if tc.Failure != nil {
			suite.Failures++
		}
		suite.TestCases = append(suite.TestCases, tc)
	}
	suite.Tests = len(suite.TestCases)
	return suite
}

func convertStage(app string, sr pipeline.StageResult) JUnitTestCase {
	tc := JUnitTestCase{
		Name:      sr.Stage,
		Classname: app,
		Time:      float64(sr.TimeMs) / 1000.0,
	}
	if !sr.Passed {
		tc.Failure = &JUnitFailure{
			Message: fmt.Sprintf("%s: %d error(s)", sr.Stage, len(sr.Errors)),
			Type:    "StageFailure",
			Body:    formatFindings(sr.Errors),
		}
	}
	return tc
}

func formatFindings(findings []pipeline.Finding) string {
	var b strings.Builder
	for _, f := range findings {
		b.WriteString("[FAIL] " + f.String() + "\n")
	}
	return b.String()
}

func taskSuite(res *evolution.Result, app, ts string) JUnitTestSuite {
	suite := JUnitTestSuite{
		Name:      app + ".tasks",
		Tests:     res.Tasks.Total,
		Timestamp: ts,
	}

	for _, t := range res.Tasks.Tasks {
		tc := convertTask(app, t)
		switch {
		case tc.Failure != nil:
			suite.Failures++
		case tc.Skipped != nil:
			suite.Skipped++
		}
		suite.Time += tc.Time
		suite.TestCases = append(suite.TestCases, tc)
	}
	return suite
}

func convertTask(app string, t task.Task) JUnitTestCase {
	tc := JUnitTestCase{
		Name:      t.Name,
		Classname: app + ".tasks",
	}
	if t.StartedAt != nil && t.CompletedAt != nil {
		tc.Time = t.CompletedAt.Sub(*t.StartedAt).Seconds()
	}

	switch t.Status {
	case task.StatusFailed:
		msg := t.Error
		if msg == "" {
			msg = "task failed"
		}
		tc.Failure = &JUnitFailure{Message: msg, Type: "TaskFailure"}
	case task.StatusSkipped:
		tc.Skipped = &JUnitSkipped{Message: "skipped"}
	case task.StatusPending, task.StatusRunning:
		tc.Skipped = &JUnitSkipped{Message: "never ran"}
	}
	return tc
}

// WriteJUnitXML writes the JUnit XML for res to the specified file path.
func WriteJUnitXML(res *evolution.Result, path string) error {
	suites := FromResult(res, time.Now().UTC())

	data, err := xml.MarshalIndent(suites, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JUnit XML: %w", err)
	}

	output := append([]byte(xml.Header), data...)
	return os.WriteFile(path, output, 0o644)
}
