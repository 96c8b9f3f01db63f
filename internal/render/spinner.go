package render

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinnerInterval is a variable so tests can speed the animation up.
var spinnerInterval = 80 * time.Millisecond

// Spinner displays an animated line with the given message until the
// returned stop function is called. On non-interactive output the
// message is printed once instead; carriage-return animation would
// garble piped logs.
func (c *Console) Spinner(message string) (stop func()) {
	if !c.color {
		c.Info(message)
		return func() {}
	}

	done := make(chan struct{})
	cleared := make(chan struct{})
	var stopOnce sync.Once
	go func() {
		i := 0
		for {
			select {
			case <-done:
				width := runewidth.StringWidth(message) + 2
				fmt.Fprintf(c.out, "\r%s\r", strings.Repeat(" ", width)) //nolint:errcheck
				close(cleared)
				return
			case <-time.After(spinnerInterval):
				frame := c.styles.step.Render(spinnerFrames[i%len(spinnerFrames)])
				fmt.Fprintf(c.out, "\r%s %s", frame, message) //nolint:errcheck
				i++
			}
		}
	}()
	return func() {
		stopOnce.Do(func() {
			close(done)
		})
		<-cleared
	}
}
