package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// defaultWidth is used when the output is not a terminal or its size
// cannot be determined.
const defaultWidth = 80

var (
	colorAccent  = lipgloss.Color("#7C6AF2")
	colorSuccess = lipgloss.Color("#2CD7A7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#6C7086")
)

type consoleStyles struct {
	banner  lipgloss.Style
	phase   lipgloss.Style
	step    lipgloss.Style
	rule    lipgloss.Style
	fence   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	errText lipgloss.Style
}

// Console renders progress to a terminal using lipgloss styling. Color
// is enabled only when the writer is a TTY; piped output stays plain so
// logs remain grep-able.
type Console struct {
	out    io.Writer
	color  bool
	width  int
	styles consoleStyles
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithColor forces color on or off, overriding TTY detection.
func WithColor(enabled bool) ConsoleOption {
	return func(c *Console) { c.color = enabled }
}

// WithWidth overrides the detected terminal width.
func WithWidth(width int) ConsoleOption {
	return func(c *Console) {
		if width > 0 {
			c.width = width
		}
	}
}

// NewConsole creates a console renderer writing to out.
func NewConsole(out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{out: out, width: defaultWidth}

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.color = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			c.width = w
		}
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.color {
		c.styles = consoleStyles{
			banner:  lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
			phase:   lipgloss.NewStyle().Bold(true),
			step:    lipgloss.NewStyle().Foreground(colorMuted),
			rule:    lipgloss.NewStyle().Foreground(colorMuted),
			fence:   lipgloss.NewStyle().Foreground(colorMuted),
			success: lipgloss.NewStyle().Foreground(colorSuccess),
			warning: lipgloss.NewStyle().Foreground(colorWarning),
			errText: lipgloss.NewStyle().Foreground(colorError),
		}
	}
	return c
}

// Heading renders section headings. Level 1 gets a full-width rule,
// level 2 a short rule, deeper levels a bullet.
func (c *Console) Heading(level int, text string) {
	switch {
	case level <= 1:
		rule := strings.Repeat("═", c.ruleWidth(0))
		fmt.Fprintln(c.out, c.styles.rule.Render(rule))
		fmt.Fprintln(c.out, c.styles.banner.Render(text))
		fmt.Fprintln(c.out, c.styles.rule.Render(rule))
	case level == 2:
		// Pad the trailing rule so phase headings line up at the
		// terminal edge regardless of label width.
		lead := "── " + text + " "
		tail := c.ruleWidth(runewidth.StringWidth(lead))
		fmt.Fprintln(c.out, c.styles.phase.Render(lead)+c.styles.rule.Render(strings.Repeat("─", tail)))
	default:
		fmt.Fprintln(c.out, c.styles.step.Render("· "+text))
	}
}

// CodeBlock renders fenced content indented under a language marker.
func (c *Console) CodeBlock(language, content string) {
	fmt.Fprintln(c.out, c.styles.fence.Render("┌ "+language))
	for line := range strings.SplitSeq(strings.TrimRight(content, "\n"), "\n") {
		fmt.Fprintln(c.out, c.styles.fence.Render("│ ")+line)
	}
	fmt.Fprintln(c.out, c.styles.fence.Render("└"))
}

func (c *Console) Info(message string) {
	fmt.Fprintln(c.out, "• "+message)
}

func (c *Console) Success(message string) {
	fmt.Fprintln(c.out, c.styles.success.Render("✓ "+message))
}

func (c *Console) Warning(message string) {
	fmt.Fprintln(c.out, c.styles.warning.Render("⚠ "+message))
}

func (c *Console) Error(message string) {
	fmt.Fprintln(c.out, c.styles.errText.Render("✗ "+message))
}

func (c *Console) ruleWidth(used int) int {
	w := c.width - used
	if w < 4 {
		w = 4
	}
	if w > c.width {
		w = c.width
	}
	return w
}

var _ Renderer = (*Console)(nil)
