package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evolvehq/evolve/internal/contract"
)

// AssertionStage verifies the contract's assertions against the output
// directory. Error-severity assertions that fail block the pipeline;
// warning-severity ones are reported without blocking.
type AssertionStage struct{}

var _ Stage = (*AssertionStage)(nil)

func (*AssertionStage) Name() string { return "assertion" }

func (*AssertionStage) Run(_ context.Context, vc *Context) StageResult {
	var sr StageResult
	if vc.Contract == nil {
		return sr
	}

	for _, a := range vc.Contract.Assertions {
		ok, detail := runCheck(a.Check, vc.OutputDir)
		if ok {
			continue
		}
		msg := a.Message
		if msg == "" {
			msg = detail
		}
		f := Finding{File: a.Check.Path, Message: fmt.Sprintf("%s: %s", a.ID, msg)}
		if a.Severity == contract.SeverityWarning {
			sr.Warnings = append(sr.Warnings, f)
		} else {
			sr.Errors = append(sr.Errors, f)
		}
	}
	return sr
}

// runCheck evaluates a single filesystem check. The pattern of a
// file_contains check is interpreted as a regular expression; an
// invalid pattern falls back to a literal substring match.
func runCheck(check contract.Check, outputDir string) (ok bool, detail string) {
	target := filepath.Join(outputDir, filepath.FromSlash(check.Path))

	switch check.Type {
	case contract.CheckFileExists:
		info, err := os.Stat(target)
		if err != nil {
			return false, fmt.Sprintf("file %s does not exist", check.Path)
		}
		if info.IsDir() {
			return false, fmt.Sprintf("%s is a directory, not a file", check.Path)
		}
		return true, ""

	case contract.CheckDirExists:
		info, err := os.Stat(target)
		if err != nil || !info.IsDir() {
			return false, fmt.Sprintf("directory %s does not exist", check.Path)
		}
		return true, ""

	case contract.CheckFileContains:
		data, err := os.ReadFile(target)
		if err != nil {
			return false, fmt.Sprintf("file %s does not exist", check.Path)
		}
		if re, reErr := regexp.Compile(check.Pattern); reErr == nil {
			if re.Match(data) {
				return true, ""
			}
		} else if strings.Contains(string(data), check.Pattern) {
			return true, ""
		}
		return false, fmt.Sprintf("file %s does not match %q", check.Path, check.Pattern)

	default:
		return false, fmt.Sprintf("unknown check type %q", check.Type)
	}
}
