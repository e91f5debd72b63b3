package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/onlinereader/internal/config"
	"github.com/nao1215/onlinereader/internal/paragraph"
)

func sampleParagraphs() []paragraph.Paragraph {
	return []paragraph.Paragraph{
		{Key: "train.tsv", Text: "a\nb"},
		{Key: "train.tsv", Text: "c"},
		{Key: "https://example.com/LICENSE", Text: "BSD 3-Clause License"},
	}
}

func sampleSummary() Summary {
	return Summary{
		RunID:     "3f2a",
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Elapsed:   1500 * time.Millisecond,
		Resources: []Resource{
			{Name: "train.tsv", Locator: "https://docs.google.com/uc?id=1", Route: "drive"},
			{Name: "https://example.com/LICENSE", Locator: "https://example.com/LICENSE", Route: "http"},
		},
		Paragraphs: 3,
	}
}

func writeAll(t *testing.T, w Writer, s Summary) {
	t.Helper()

	for _, p := range sampleParagraphs() {
		if err := w.WriteParagraph(p); err != nil {
			t.Fatalf("failed to write paragraph: %v", err)
		}
	}
	if err := w.Finish(s); err != nil {
		t.Fatalf("failed to finish: %v", err)
	}
}

// TestNew tests format selection.
func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		want   any
	}{
		{format: "", want: &TextWriter{}},
		{format: config.FormatText, want: &TextWriter{}},
		{format: config.FormatJSON, want: &JSONWriter{}},
		{format: config.FormatMarkdown, want: &MarkdownWriter{}},
	}

	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			t.Parallel()

			w, err := New(tt.format, &bytes.Buffer{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch tt.want.(type) {
			case *TextWriter:
				if _, ok := w.(*TextWriter); !ok {
					t.Errorf("expected *TextWriter, got %T", w)
				}
			case *JSONWriter:
				if _, ok := w.(*JSONWriter); !ok {
					t.Errorf("expected *JSONWriter, got %T", w)
				}
			case *MarkdownWriter:
				if _, ok := w.(*MarkdownWriter); !ok {
					t.Errorf("expected *MarkdownWriter, got %T", w)
				}
			}
		})
	}

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()

		_, err := New("xml", &bytes.Buffer{})
		if !errors.Is(err, config.ErrUnknownFormat) {
			t.Errorf("expected ErrUnknownFormat, got %v", err)
		}
	})
}

// TestTextWriter tests plain text output.
func TestTextWriter(t *testing.T) {
	t.Parallel()

	t.Run("headers on key change and blank line separators", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		writeAll(t, NewTextWriter(&buf), sampleSummary())

		want := "==> train.tsv <==\na\nb\n\nc\n\n==> https://example.com/LICENSE <==\nBSD 3-Clause License\n"
		if buf.String() != want {
			t.Errorf("expected %q, got %q", want, buf.String())
		}
	})

	t.Run("summary line", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		s := sampleSummary()
		s.Err = "boom"
		writeAll(t, NewTextWriter(&buf, WithSummary(true)), s)

		output := buf.String()
		for _, want := range []string{"3 paragraph(s) from 2 resource(s) in 1.5s", "saved as run 3f2a", "failed: boom"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got %q", want, output)
			}
		}
	})

	t.Run("no paragraphs and no summary writes nothing", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := NewTextWriter(&buf).Finish(Summary{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if buf.Len() != 0 {
			t.Errorf("expected empty output, got %q", buf.String())
		}
	})
}

// TestJSONWriter tests JSON lines output.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	writeAll(t, NewJSONWriter(&buf), sampleSummary())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), buf.String())
	}

	var first jsonParagraph
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("failed to decode paragraph: %v", err)
	}
	if first.Type != "paragraph" || first.Key != "train.tsv" || first.Text != "a\nb" {
		t.Errorf("unexpected paragraph %+v", first)
	}

	var summary jsonSummary
	if err := json.Unmarshal([]byte(lines[3]), &summary); err != nil {
		t.Fatalf("failed to decode summary: %v", err)
	}
	if summary.Type != "summary" || summary.Status != "complete" {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.Paragraphs != 3 || len(summary.Resources) != 2 || summary.ElapsedMS != 1500 {
		t.Errorf("unexpected summary counts %+v", summary)
	}
	if summary.Resources[0].Route != "drive" {
		t.Errorf("expected drive route, got %q", summary.Resources[0].Route)
	}
}

// TestMarkdownWriter tests Markdown output.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("complete run", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		writeAll(t, NewMarkdownWriter(&buf), sampleSummary())

		output := buf.String()
		for _, want := range []string{
			"# Paragraph Report",
			"`3f2a`",
			"Complete",
			"## Resources",
			"train.tsv",
			"## Paragraphs",
			"### https://example.com/LICENSE",
			"BSD 3-Clause License",
			"Generated by",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if n := strings.Count(output, "### train.tsv"); n != 1 {
			t.Errorf("expected one section for consecutive train.tsv paragraphs, got %d", n)
		}
	})

	t.Run("failed empty run", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)
		if err := w.Finish(Summary{Err: "connection refused"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"Failed", "connection refused", "No resource was fetched.", "No paragraph was produced."} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})
}

// TestTruncateString tests locator shortening.
func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{input: "short", maxLen: 10, want: "short"},
		{input: "exactly10!", maxLen: 10, want: "exactly10!"},
		{input: "this is longer", maxLen: 10, want: "this is..."},
		{input: "abc", maxLen: 2, want: "ab"},
	}

	for _, tt := range tests {
		if got := truncateString(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d): expected %q, got %q", tt.input, tt.maxLen, tt.want, got)
		}
	}
}
