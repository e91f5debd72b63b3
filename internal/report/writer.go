package report

import (
	"fmt"
	"io"
	"time"

	"github.com/nao1215/onlinereader/internal/config"
	"github.com/nao1215/onlinereader/internal/paragraph"
)

// Resource is a fetched resource listed in a report.
type Resource struct {
	Name    string `json:"name"`
	Locator string `json:"locator"`
	Route   string `json:"route"`
}

// Summary describes a finished run.
type Summary struct {
	// RunID is the stored run ID, empty when the run was not saved.
	RunID string

	StartedAt  time.Time
	Elapsed    time.Duration
	Resources  []Resource
	Paragraphs int

	// Err is the message of the error that ended the run, if any.
	Err string
}

// Status returns "failed" when the run ended with an error and "complete"
// otherwise.
func (s Summary) Status() string {
	if s.Err != "" {
		return "failed"
	}
	return "complete"
}

// Writer renders a run's paragraphs. WriteParagraph is called once per
// paragraph in emission order, then Finish once.
type Writer interface {
	WriteParagraph(p paragraph.Paragraph) error
	Finish(s Summary) error
}

// New returns the writer for a config.Format value.
func New(format string, output io.Writer) (Writer, error) {
	switch format {
	case config.FormatText, "":
		return NewTextWriter(output), nil
	case config.FormatJSON:
		return NewJSONWriter(output), nil
	case config.FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownFormat, format)
	}
}
