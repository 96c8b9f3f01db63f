// Package render defines the sink that receives user-facing progress
// output from an evolution session, plus console and no-op
// implementations.
package render

// Renderer receives headings, code blocks, and status messages as an
// evolution session progresses. The evolution loop only ever emits to
// this interface; swapping implementations must not change loop
// behavior.
type Renderer interface {
	// Heading renders a section heading. Level 1 is the session banner,
	// level 2 a phase, level 3 and deeper a sub-step.
	Heading(level int, text string)

	// CodeBlock renders fenced content such as a generated file or a
	// prompt excerpt.
	CodeBlock(language, content string)

	Info(message string)
	Success(message string)
	Warning(message string)
	Error(message string)
}

// Nop discards all output. It backs tests and --quiet runs.
type Nop struct{}

func (Nop) Heading(int, string)      {}
func (Nop) CodeBlock(string, string) {}
func (Nop) Info(string)              {}
func (Nop) Success(string)           {}
func (Nop) Warning(string)           {}
func (Nop) Error(string)             {}

var _ Renderer = Nop{}
