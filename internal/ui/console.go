// Package ui renders the setup run's progress lines. Every line carries the
// ">>" marker; color is applied only when writing to a terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"sparxel/internal/tui/styles"
)

const marker = ">>"

// Console writes progress lines. It is safe for concurrent use since stage
// workers report from their own goroutines.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	color   bool
	verbose bool
}

// NewConsole creates a console writing to out and errOut. Color is enabled
// when out is a terminal and NO_COLOR is unset.
func NewConsole(out, errOut io.Writer) *Console {
	return &Console{
		out:    out,
		errOut: errOut,
		color:  supportsColor(out),
	}
}

// Discard returns a console that drops everything
func Discard() *Console {
	return &Console{out: io.Discard, errOut: io.Discard}
}

// SetVerbose toggles Debug output
func (c *Console) SetVerbose(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verbose = v
}

// SetOutput redirects normal output, used when a TUI takes over the screen
func (c *Console) SetOutput(out io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = out
	c.color = supportsColor(out)
}

// Step announces a stage transition or notable event
func (c *Console) Step(format string, args ...any) {
	c.line(c.out, nil, format, args...)
}

// Debug prints only in verbose mode
func (c *Console) Debug(format string, args ...any) {
	c.mu.Lock()
	verbose := c.verbose
	c.mu.Unlock()
	if !verbose {
		return
	}
	c.line(c.out, &styles.Muted, format, args...)
}

// Warn reports a recoverable condition
func (c *Console) Warn(format string, args ...any) {
	c.line(c.out, &styles.WarnMsg, "WARN: "+format, args...)
}

// Success reports successful completion
func (c *Console) Success(format string, args ...any) {
	c.line(c.out, &styles.SuccessMsg, format, args...)
}

// Abort reports the fatal error that ends a run
func (c *Console) Abort(err error) {
	c.line(c.errOut, &styles.ErrorMsg, "Abort %v", err)
}

func (c *Console) line(w io.Writer, style *lipgloss.Style, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := marker
	if c.color {
		prefix = styles.Marker.Render(marker)
		if style != nil {
			msg = style.Render(msg)
		}
	}
	fmt.Fprintf(w, "%s %s\n", prefix, msg)
}

func supportsColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}
