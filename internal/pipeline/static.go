package pipeline

import (
	"context"
	"regexp"
	"strings"
)

// StaticStage applies static-analysis rules to the generated sources:
// leftover merge conflict markers, debugger statements, imports of
// dependencies the manifest does not declare, and TODO markers.
type StaticStage struct{}

var _ Stage = (*StaticStage)(nil)

func (*StaticStage) Name() string { return "static" }

var (
	// Only the <<<<<<< and >>>>>>> markers are unambiguous; a bare
	// ======= line is also a markdown heading underline.
	conflictMarkerRe = regexp.MustCompile(`(?m)^(<{7}|>{7})( |$)`)
	debuggerRe       = regexp.MustCompile(`(?m)^\s*debugger\s*;?\s*$`)
	todoRe           = regexp.MustCompile(`(?i)\b(TODO|FIXME|XXX)\b`)
	requireRe        = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
	importRe         = regexp.MustCompile(`(?m)^\s*import\s+(?:[\w${},\s*]+\s+from\s+)?['"]([^'"]+)['"]`)
)

// nodeBuiltins lists modules require() resolves without a declared
// dependency.
var nodeBuiltins = map[string]bool{
	"assert": true, "buffer": true, "child_process": true, "cluster": true,
	"crypto": true, "dns": true, "events": true, "fs": true, "http": true,
	"https": true, "net": true, "os": true, "path": true, "querystring": true,
	"readline": true, "stream": true, "string_decoder": true, "timers": true,
	"tls": true, "url": true, "util": true, "worker_threads": true, "zlib": true,
}

func (*StaticStage) Run(_ context.Context, vc *Context) StageResult {
	var sr StageResult

	declared, hasManifest := declaredDependencies(vc)
	sawJS := false

	for _, f := range vc.Files {
		if m := conflictMarkerRe.FindStringIndex(f.Content); m != nil {
			sr.Errors = append(sr.Errors, Finding{
				File: f.Path, Line: lineAt(f.Content, m[0]),
				Message: "merge conflict marker left in file",
			})
		}

		if !isJSFile(f.Path) {
			continue
		}
		sawJS = true

		if m := debuggerRe.FindStringIndex(f.Content); m != nil {
			sr.Errors = append(sr.Errors, Finding{
				File: f.Path, Line: lineAt(f.Content, m[0]),
				Message: "debugger statement left in file",
			})
		}
		if m := todoRe.FindStringIndex(f.Content); m != nil {
			sr.Warnings = append(sr.Warnings, Finding{
				File: f.Path, Line: lineAt(f.Content, m[0]),
				Message: "unfinished work marker",
			})
		}

		if hasManifest {
			for _, mod := range undeclaredModules(f.Content, declared) {
				sr.Errors = append(sr.Errors, Finding{
					File:    f.Path,
					Message: "imports " + mod + ", which package.json does not declare",
				})
			}
		}
	}

	if sawJS && !hasManifest {
		sr.Warnings = append(sr.Warnings, Finding{Message: "no package.json manifest; dependency checks skipped"})
	}
	return sr
}

// declaredDependencies flattens dependencies and devDependencies from
// the manifest.
func declaredDependencies(vc *Context) (map[string]bool, bool) {
	pkg, _, ok := vc.PackageJSON()
	if !ok {
		return nil, false
	}
	declared := map[string]bool{}
	for _, section := range []string{"dependencies", "devDependencies"} {
		deps, _ := pkg[section].(map[string]any)
		for name := range deps {
			declared[name] = true
		}
	}
	return declared, true
}

// undeclaredModules returns the bare modules a source imports that are
// neither Node builtins nor declared dependencies, deduplicated in
// first-use order.
func undeclaredModules(content string, declared map[string]bool) []string {
	var missing []string
	seen := map[string]bool{}

	record := func(spec string) {
		mod, ok := bareModule(spec)
		if !ok || seen[mod] {
			return
		}
		seen[mod] = true
		if !nodeBuiltins[mod] && !declared[mod] {
			missing = append(missing, mod)
		}
	}

	for _, m := range requireRe.FindAllStringSubmatch(content, -1) {
		record(m[1])
	}
	for _, m := range importRe.FindAllStringSubmatch(content, -1) {
		record(m[1])
	}
	return missing
}

// bareModule resolves an import specifier to its package root, or
// reports false for relative and absolute specifiers.
func bareModule(spec string) (string, bool) {
	if spec == "" || strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		return "", false
	}
	spec = strings.TrimPrefix(spec, "node:")
	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1], true
	}
	return parts[0], true
}

// lineAt returns the 1-based line number of a byte offset.
func lineAt(content string, offset int) int {
	return 1 + strings.Count(content[:offset], "\n")
}
