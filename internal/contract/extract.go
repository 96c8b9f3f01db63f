package contract

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned by [ExtractJSON] when the text contains no
// complete top-level JSON object.
var ErrNoJSON = errors.New("no JSON object found")

// jsonFenceRe matches fenced code blocks, capturing the body. Models
// frequently wrap JSON in ```json fences despite being asked not to.
var jsonFenceRe = regexp.MustCompile("(?s)```[a-zA-Z0-9_+\\.-]*[ \t]*\\n(.*?)\\n[ \t]*```")

// ExtractJSON returns the first complete top-level JSON object embedded
// in text, tolerating surrounding prose and code fences. Fenced blocks
// are preferred over a raw scan of the whole text.
func ExtractJSON(text string) (string, error) {
	for _, m := range jsonFenceRe.FindAllStringSubmatch(text, -1) {
		if obj, ok := firstObject(m[1]); ok {
			return obj, nil
		}
	}
	if obj, ok := firstObject(text); ok {
		return obj, nil
	}
	return "", ErrNoJSON
}

// firstObject scans text for the first balanced {...} span that parses
// as valid JSON. Braces inside string literals do not count toward
// nesting depth.
func firstObject(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end, ok := scanObject(text, start); ok {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return "", false
}

// scanObject returns the index of the brace closing the object that
// opens at start.
func scanObject(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
