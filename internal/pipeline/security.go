package pipeline

import (
	"context"
	"regexp"
	"strings"
)

// SecurityStage scans generated sources for credential leaks and unsafe
// patterns. Committed key material and dynamic code evaluation are
// errors; subprocess use and cleartext URLs are surfaced as warnings.
type SecurityStage struct{}

var _ Stage = (*SecurityStage)(nil)

func (*SecurityStage) Name() string { return "security" }

var (
	privateKeyRe = regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)
	secretRe     = regexp.MustCompile(`(?i)\b(api[_-]?key|secret|password|token)\b\s*[:=]\s*['"]([A-Za-z0-9+/_\-]{12,})['"]`)
	evalRe       = regexp.MustCompile(`\beval\s*\(|\bnew\s+Function\s*\(`)
	childProcRe  = regexp.MustCompile(`(?:require\(\s*['"]|from\s+['"])(?:node:)?child_process['"]`)
	httpURLRe    = regexp.MustCompile(`['"]http://([^'"/]+)[^'"]*['"]`)
)

// placeholderMarkers are substrings of secret-looking values that mark
// them as templates rather than live credentials.
var placeholderMarkers = []string{"example", "your", "placeholder", "changeme", "xxx"}

func (*SecurityStage) Run(_ context.Context, vc *Context) StageResult {
	var sr StageResult

	for _, f := range vc.Files {
		if m := privateKeyRe.FindStringIndex(f.Content); m != nil {
			sr.Errors = append(sr.Errors, Finding{
				File: f.Path, Line: lineAt(f.Content, m[0]),
				Message: "private key material committed to the project",
			})
		}
		for _, m := range secretRe.FindAllStringSubmatchIndex(f.Content, -1) {
			value := f.Content[m[4]:m[5]]
			if isPlaceholder(value) {
				continue
			}
			sr.Errors = append(sr.Errors, Finding{
				File: f.Path, Line: lineAt(f.Content, m[0]),
				Message: "hardcoded " + strings.ToLower(f.Content[m[2]:m[3]]) + "; read it from the environment instead",
			})
		}

		if !isJSFile(f.Path) {
			continue
		}
		if m := evalRe.FindStringIndex(f.Content); m != nil {
			sr.Errors = append(sr.Errors, Finding{
				File: f.Path, Line: lineAt(f.Content, m[0]),
				Message: "dynamic code evaluation (eval or new Function)",
			})
		}
		if m := childProcRe.FindStringIndex(f.Content); m != nil {
			sr.Warnings = append(sr.Warnings, Finding{
				File: f.Path, Line: lineAt(f.Content, m[0]),
				Message: "imports child_process; generated services should not spawn subprocesses",
			})
		}
		for _, m := range httpURLRe.FindAllStringSubmatchIndex(f.Content, -1) {
			host := f.Content[m[2]:m[3]]
			if isLoopbackHost(host) {
				continue
			}
			sr.Warnings = append(sr.Warnings, Finding{
				File: f.Path, Line: lineAt(f.Content, m[0]),
				Message: "cleartext http:// URL to " + host,
			})
		}
	}
	return sr
}

func isPlaceholder(value string) bool {
	lower := strings.ToLower(value)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isLoopbackHost(host string) bool {
	host = strings.ToLower(host)
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host == "localhost" || host == "127.0.0.1" || host == "0.0.0.0" || host == "::1"
}
