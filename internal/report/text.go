package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/onlinereader/internal/paragraph"
)

// TextWriter prints paragraphs separated by blank lines, with a
// "==> key <==" header whenever the key changes.
type TextWriter struct {
	output io.Writer

	// summary prints a closing line with the run counts.
	summary bool

	lastKey string
	wrote   bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithSummary makes Finish print a one-line run summary.
func WithSummary(show bool) TextWriterOption {
	return func(w *TextWriter) {
		w.summary = show
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{output: output}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteParagraph implements Writer.
func (w *TextWriter) WriteParagraph(p paragraph.Paragraph) error {
	var b strings.Builder
	if w.wrote {
		b.WriteString("\n")
	}
	if !w.wrote || p.Key != w.lastKey {
		fmt.Fprintf(&b, "==> %s <==\n", p.Key)
	}
	b.WriteString(p.Text)
	b.WriteString("\n")

	w.wrote = true
	w.lastKey = p.Key

	_, err := io.WriteString(w.output, b.String())
	return err
}

// Finish implements Writer.
func (w *TextWriter) Finish(s Summary) error {
	if !w.summary {
		return nil
	}

	line := fmt.Sprintf("%d paragraph(s) from %d resource(s) in %s",
		s.Paragraphs, len(s.Resources), s.Elapsed.Round(time.Millisecond))
	if s.RunID != "" {
		line += ", saved as run " + s.RunID
	}
	if s.Err != "" {
		line += ", failed: " + s.Err
	}

	if w.wrote {
		line = "\n" + line
	}
	_, err := fmt.Fprintln(w.output, line)
	return err
}
