package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// SyntaxStage runs lightweight syntax checks over the generated files:
// JSON and YAML documents must parse, and JavaScript-family sources
// must have balanced braces outside strings, comments, and regex
// literals. It never executes anything.
type SyntaxStage struct{}

var _ Stage = (*SyntaxStage)(nil)

func (*SyntaxStage) Name() string { return "syntax" }

func (*SyntaxStage) Run(_ context.Context, vc *Context) StageResult {
	var sr StageResult
	for _, f := range vc.Files {
		switch strings.ToLower(path.Ext(f.Path)) {
		case ".json":
			var v any
			if err := json.Unmarshal([]byte(f.Content), &v); err != nil {
				sr.Errors = append(sr.Errors, Finding{File: f.Path, Message: "invalid JSON: " + err.Error()})
			}
		case ".yml", ".yaml":
			var v any
			if err := yaml.Unmarshal([]byte(f.Content), &v); err != nil {
				sr.Errors = append(sr.Errors, Finding{File: f.Path, Message: "invalid YAML: " + err.Error()})
			}
		case ".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx":
			sr.Errors = append(sr.Errors, scanJS(f.Path, f.Content)...)
		}
	}
	return sr
}

type jsScanner struct {
	file string
	src  string
	pos  int
	line int
	// word holds the most recent identifier, used to spot keywords a
	// regex literal may follow. wordDone marks that the identifier was
	// closed by whitespace, so the next ident char starts a new one.
	word     string
	wordDone bool
	// stack holds open braces with the line they opened on.
	stack []braceFrame
}

type braceFrame struct {
	ch   byte
	line int
}

// scanJS checks brace, bracket, and paren balance in a
// JavaScript-family source, skipping strings, template literals,
// comments, and regex literals.
func scanJS(file, src string) []Finding {
	s := &jsScanner{file: file, src: src, line: 1}
	return s.scan()
}

func (s *jsScanner) scan() []Finding {
	var findings []Finding
	var lastSignificant byte

	for s.pos < len(s.src) {
		ch := s.src[s.pos]
		switch ch {
		case '\n':
			s.line++
			s.pos++
		case '\'', '"':
			if !s.skipString(ch) {
				return []Finding{{File: s.file, Line: s.line, Message: "unterminated string literal"}}
			}
			lastSignificant = '"'
			s.resetWord()
		case '`':
			if !s.skipTemplate() {
				return []Finding{{File: s.file, Line: s.line, Message: "unterminated template literal"}}
			}
			lastSignificant = '"'
			s.resetWord()
		case '/':
			switch {
			case s.peek(1) == '/':
				s.skipLineComment()
			case s.peek(1) == '*':
				if !s.skipBlockComment() {
					return []Finding{{File: s.file, Line: s.line, Message: "unterminated block comment"}}
				}
			case regexCanFollow(lastSignificant) || regexKeyword(s.word):
				if !s.skipRegex() {
					// Lone slash in an odd spot; treat as division and move on.
					s.pos++
				}
			default:
				s.pos++
				lastSignificant = ch
			}
			s.resetWord()
		case '{', '(', '[':
			s.stack = append(s.stack, braceFrame{ch: ch, line: s.line})
			s.pos++
			lastSignificant = ch
			s.resetWord()
		case '}', ')', ']':
			if len(s.stack) == 0 {
				findings = append(findings, Finding{File: s.file, Line: s.line, Message: fmt.Sprintf("unexpected %q", string(ch))})
			} else {
				top := s.stack[len(s.stack)-1]
				s.stack = s.stack[:len(s.stack)-1]
				if closerFor(top.ch) != ch {
					findings = append(findings, Finding{
						File: s.file, Line: s.line,
						Message: fmt.Sprintf("mismatched %q closes %q from line %d", string(ch), string(top.ch), top.line),
					})
				}
			}
			s.pos++
			lastSignificant = ch
			s.resetWord()
		default:
			if !isSpace(ch) {
				lastSignificant = ch
			}
			switch {
			case isIdentChar(ch):
				if s.wordDone {
					s.word = ""
					s.wordDone = false
				}
				s.word += string(ch)
			case isSpace(ch):
				s.wordDone = s.word != ""
			default:
				s.resetWord()
			}
			s.pos++
		}
		if len(findings) >= 3 {
			// Cascading brace errors are noise past the first few.
			return findings
		}
	}

	if len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1]
		findings = append(findings, Finding{
			File: s.file, Line: top.line,
			Message: fmt.Sprintf("unclosed %q", string(top.ch)),
		})
	}
	return findings
}

func (s *jsScanner) resetWord() {
	s.word = ""
	s.wordDone = false
}

func (s *jsScanner) peek(n int) byte {
	if s.pos+n >= len(s.src) {
		return 0
	}
	return s.src[s.pos+n]
}

// skipString consumes a single- or double-quoted string. Reports false
// if the string runs to end of line or file.
func (s *jsScanner) skipString(quote byte) bool {
	s.pos++
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case '\\':
			s.pos += 2
		case quote:
			s.pos++
			return true
		case '\n':
			return false
		default:
			s.pos++
		}
	}
	return false
}

// skipTemplate consumes a backtick template literal, recursing into
// ${...} interpolations.
func (s *jsScanner) skipTemplate() bool {
	s.pos++
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case '\\':
			s.pos += 2
		case '\n':
			s.line++
			s.pos++
		case '`':
			s.pos++
			return true
		case '$':
			if s.peek(1) == '{' {
				s.pos += 2
				if !s.skipInterpolation() {
					return false
				}
			} else {
				s.pos++
			}
		default:
			s.pos++
		}
	}
	return false
}

// skipInterpolation consumes a ${...} body up to its closing brace,
// tracking nested braces and strings.
func (s *jsScanner) skipInterpolation() bool {
	depth := 1
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case '\n':
			s.line++
			s.pos++
		case '\'', '"':
			if !s.skipString(s.src[s.pos]) {
				return false
			}
		case '`':
			if !s.skipTemplate() {
				return false
			}
		case '{':
			depth++
			s.pos++
		case '}':
			depth--
			s.pos++
			if depth == 0 {
				return true
			}
		default:
			s.pos++
		}
	}
	return false
}

func (s *jsScanner) skipLineComment() {
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		s.pos++
	}
}

func (s *jsScanner) skipBlockComment() bool {
	s.pos += 2
	for s.pos < len(s.src) {
		if s.src[s.pos] == '\n' {
			s.line++
		}
		if s.src[s.pos] == '*' && s.peek(1) == '/' {
			s.pos += 2
			return true
		}
		s.pos++
	}
	return false
}

// skipRegex consumes a regex literal, honoring character classes where
// a slash does not terminate. Reports false when no closing slash is
// found on the same line, letting the caller treat the slash as
// division.
func (s *jsScanner) skipRegex() bool {
	start := s.pos
	s.pos++
	inClass := false
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case '\\':
			s.pos += 2
		case '\n':
			s.pos = start
			return false
		case '[':
			inClass = true
			s.pos++
		case ']':
			inClass = false
			s.pos++
		case '/':
			if !inClass {
				s.pos++
				return true
			}
			s.pos++
		default:
			s.pos++
		}
	}
	s.pos = start
	return false
}

// regexCanFollow reports whether a slash after the given significant
// character starts a regex literal rather than division.
func regexCanFollow(prev byte) bool {
	switch prev {
	case 0, '=', '(', ',', ':', '[', '!', '&', '|', '?', '{', '}', ';', '\n', '<', '>', '+', '-', '*', '%':
		return true
	}
	return false
}

func closerFor(opener byte) byte {
	switch opener {
	case '{':
		return '}'
	case '(':
		return ')'
	case '[':
		return ']'
	}
	return 0
}

// regexKeyword reports whether a regex literal may directly follow the
// given keyword, as in "return /x/.test(s)".
func regexKeyword(word string) bool {
	switch word {
	case "return", "case", "typeof", "instanceof", "in", "of", "new",
		"delete", "void", "throw", "do", "else", "yield", "await":
		return true
	}
	return false
}

func isIdentChar(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '_' || ch == '$'
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'
}
