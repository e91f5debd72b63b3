package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/onlinereader/internal/paragraph"
)

// MarkdownWriter renders a run as a Markdown document: a run table, the
// fetched resources, then one section per run of same-key paragraphs.
// Paragraphs are buffered until Finish because the run table comes first.
type MarkdownWriter struct {
	output     io.Writer
	paragraphs []paragraph.Paragraph
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

// WriteParagraph implements Writer.
func (w *MarkdownWriter) WriteParagraph(p paragraph.Paragraph) error {
	w.paragraphs = append(w.paragraphs, p)
	return nil
}

// Finish implements Writer.
func (w *MarkdownWriter) Finish(s Summary) error {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, s)
	w.writeResources(md, s)
	w.writeParagraphs(md)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Generated by [onlinereader](https://github.com/nao1215/onlinereader)*")

	w.paragraphs = nil
	return md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s Summary) {
	md.H1("Paragraph Report")
	md.PlainText("")

	runID := s.RunID
	if runID == "" {
		runID = "-"
	} else {
		runID = "`" + runID + "`"
	}

	rows := [][]string{
		{"Run", runID},
		{"Status", cases.Title(language.English).String(s.Status())},
		{"Resources", strconv.Itoa(len(s.Resources))},
		{"Paragraphs", strconv.Itoa(s.Paragraphs)},
		{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
	}
	if !s.StartedAt.IsZero() {
		rows = append(rows, []string{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")})
	}

	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	if s.Err != "" {
		md.Cautionf("The run stopped early: %s", s.Err)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeResources(md *markdown.Markdown, s Summary) {
	md.H2("Resources")
	md.PlainText("")

	if len(s.Resources) == 0 {
		md.PlainText("No resource was fetched.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(s.Resources))
	for i, r := range s.Resources {
		rows[i] = []string{strconv.Itoa(i + 1), r.Name, r.Route, truncateString(r.Locator, 80)}
	}
	md.Table(markdown.TableSet{Header: []string{"#", "Name", "Route", "Locator"}, Rows: rows})
	md.PlainText("")
}

func (w *MarkdownWriter) writeParagraphs(md *markdown.Markdown) {
	md.H2("Paragraphs")
	md.PlainText("")

	if len(w.paragraphs) == 0 {
		md.Note("No paragraph was produced.")
		md.PlainText("")
		return
	}

	for i, p := range w.paragraphs {
		if i == 0 || p.Key != w.paragraphs[i-1].Key {
			md.H3(p.Key)
			md.PlainText("")
		}
		md.CodeBlocks(markdown.SyntaxHighlight("text"), p.Text)
		md.PlainText("")
	}
}

// truncateString shortens s to maxLen bytes, ending in "...".
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
