// Package output renders plain status lines for the CLI commands.
// It is deliberately dumb: one line per message, a severity marker in
// front, no cursor movement. Anything interactive lives in
// internal/ui.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Writer prints status lines to a destination. Write errors are
// ignored; there is no useful recovery for console output.
type Writer struct {
	out   io.Writer
	fancy bool
}

// New creates a Writer. Unicode severity markers are used when the
// destination is a terminal, plain ASCII tags otherwise, so piped
// output stays grep-friendly.
func New(out io.Writer) *Writer {
	fancy := false
	if f, ok := out.(*os.File); ok {
		fancy = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Writer{out: out, fancy: fancy}
}

// Status prints one line with the given marker. An empty marker
// indents the line under the previous one.
func (w *Writer) Status(marker, msg string) {
	if marker == "" {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", marker, msg)
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(marker, format string, args ...any) {
	w.Status(marker, fmt.Sprintf(format, args...))
}

// Success prints a line marked as succeeded.
func (w *Writer) Success(msg string) {
	w.Status(w.marker("✓", "[ok]"), msg)
}

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a line marked as a warning.
func (w *Writer) Warning(msg string) {
	w.Status(w.marker("⚠", "[warn]"), msg)
}

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints a line marked as failed.
func (w *Writer) Error(msg string) {
	w.Status(w.marker("✗", "[error]"), msg)
}

// Errorf is Error with formatting.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

func (w *Writer) marker(terminal, plain string) string {
	if w.fancy {
		return terminal
	}
	return plain
}
