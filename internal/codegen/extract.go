package codegen

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/evolvehq/evolve/internal/contract"
)

// fenceRe matches fenced code blocks, capturing the info string and
// the body.
var fenceRe = regexp.MustCompile("(?s)```([^`\\n]*)\\n(.*?)\\n[ \t]*```")

// pathCommentRe matches a leading path comment in any common comment
// syntax, for example "// path: api/server.js" or "# path: README.md".
var pathCommentRe = regexp.MustCompile(`(?i)^\s*(?://|#|--|;|@|<!--)\s*path:?\s*([^\s>]+)`)

// driveRe matches Windows drive-letter prefixes.
var driveRe = regexp.MustCompile(`^[a-zA-Z]:[\\/]`)

// ExtractFiles scans a model response for fenced code blocks and maps
// each one to a [GeneratedFile]. Paths come from, in order of
// preference: a path comment on the block's first line, a path token
// in the fence info string, or a deterministic name derived from the
// contract. Blocks with unusable paths are recorded in Errors and
// excluded from Files; a later block with the same path as an earlier
// one replaces it.
func ExtractFiles(response string, c *contract.Contract) *Result {
	result := &Result{}
	index := map[string]int{}

	for i, m := range fenceRe.FindAllStringSubmatch(response, -1) {
		lang, infoPath := parseInfo(m[1])
		body := m[2]

		relPath := infoPath
		if commentPath, stripped, ok := pathFromComment(body); ok {
			relPath = commentPath
			body = stripped
		}

		if strings.TrimSpace(body) == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("code block %d is empty", i+1))
			continue
		}

		if relPath == "" {
			relPath = fallbackPath(c, lang, body, i)
		}

		clean, err := cleanPath(relPath)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("code block %d: %v", i+1, err))
			continue
		}

		file := GeneratedFile{
			Path:    clean,
			Content: ensureTrailingNewline(body),
			Target:  targetFor(clean),
		}
		if at, seen := index[clean]; seen {
			result.Files[at] = file
			continue
		}
		index[clean] = len(result.Files)
		result.Files = append(result.Files, file)
	}

	result.Success = len(result.Files) > 0
	return result
}

// parseInfo splits a fence info string into a language tag and an
// optional path hint. Models emit hints as "js path=api/server.js",
// "js title=...", or a bare "api/server.js".
func parseInfo(info string) (lang, hint string) {
	for i, tok := range strings.Fields(info) {
		switch {
		case strings.HasPrefix(tok, "path="), strings.HasPrefix(tok, "file="), strings.HasPrefix(tok, "title="):
			hint = tok[strings.IndexByte(tok, '=')+1:]
		case strings.Contains(tok, "/"):
			hint = tok
		case i == 0:
			lang = strings.ToLower(tok)
		}
	}
	return lang, strings.Trim(hint, `"'`)
}

// pathFromComment checks the first body line for a path comment and
// strips it when found.
func pathFromComment(body string) (relPath, stripped string, ok bool) {
	first, rest, _ := strings.Cut(body, "\n")
	m := pathCommentRe.FindStringSubmatch(first)
	if len(m) < 2 {
		return "", body, false
	}
	return strings.TrimSpace(m[1]), rest, true
}

// fallbackPath derives a deterministic path for a block without an
// explicit hint. A block that mentions a contract entity lands under
// api/ using the resource name; anything else gets a counter-based
// name. No clock or randomness is involved.
func fallbackPath(c *contract.Contract, lang, body string, i int) string {
	ext := extFor(lang)
	if c != nil {
		for _, r := range c.API.Resources {
			if mentionsWord(body, r.Entity) {
				return fmt.Sprintf("api/%s.%s", strings.ToLower(r.Name), ext)
			}
		}
	}
	return fmt.Sprintf("generated/file_%d.%s", i+1, ext)
}

func mentionsWord(body, word string) bool {
	if word == "" {
		return false
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(body)
}

// cleanPath normalizes a slash-separated relative path and rejects
// anything that would escape the output directory.
func cleanPath(relPath string) (string, error) {
	p := strings.TrimSpace(relPath)
	p = strings.Trim(p, `"'`)
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.HasPrefix(p, "/") || driveRe.MatchString(p) {
		return "", fmt.Errorf("absolute path %q not allowed", relPath)
	}
	p = path.Clean(strings.ReplaceAll(p, `\`, "/"))
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("path %q escapes the output directory", relPath)
	}
	return p, nil
}

// targetFor buckets a path by its first segment.
func targetFor(relPath string) string {
	dir, _, found := strings.Cut(relPath, "/")
	if !found {
		return TargetRoot
	}
	return dir
}

func ensureTrailingNewline(body string) string {
	if strings.HasSuffix(body, "\n") {
		return body
	}
	return body + "\n"
}

// extFor maps a fence language tag to a file extension.
func extFor(lang string) string {
	mapping := map[string]string{
		"js": "js", "javascript": "js", "jsx": "jsx",
		"ts": "ts", "typescript": "ts", "tsx": "tsx",
		"json": "json", "yaml": "yml", "yml": "yml",
		"html": "html", "css": "css", "md": "md",
		"sh": "sh", "bash": "sh", "dockerfile": "dockerfile",
		"sql": "sql", "go": "go", "py": "py", "python": "py",
	}
	if ext, ok := mapping[lang]; ok {
		return ext
	}
	return "txt"
}
