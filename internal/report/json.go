package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/onlinereader/internal/paragraph"
)

// JSONWriter writes JSON lines: one "paragraph" object per paragraph and a
// final "summary" object.
type JSONWriter struct {
	enc *json.Encoder
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer) *JSONWriter {
	enc := json.NewEncoder(output)
	enc.SetEscapeHTML(false)
	return &JSONWriter{enc: enc}
}

type jsonParagraph struct {
	Type string `json:"type"`
	Key  string `json:"key"`
	Text string `json:"text"`
}

type jsonSummary struct {
	Type       string     `json:"type"`
	RunID      string     `json:"run_id,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	ElapsedMS  int64      `json:"elapsed_ms"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Paragraphs int        `json:"paragraphs"`
	Resources  []Resource `json:"resources"`
}

// WriteParagraph implements Writer.
func (w *JSONWriter) WriteParagraph(p paragraph.Paragraph) error {
	return w.enc.Encode(jsonParagraph{Type: "paragraph", Key: p.Key, Text: p.Text})
}

// Finish implements Writer.
func (w *JSONWriter) Finish(s Summary) error {
	resources := s.Resources
	if resources == nil {
		resources = []Resource{}
	}
	return w.enc.Encode(jsonSummary{
		Type:       "summary",
		RunID:      s.RunID,
		StartedAt:  s.StartedAt,
		ElapsedMS:  s.Elapsed.Milliseconds(),
		Status:     s.Status(),
		Error:      s.Err,
		Paragraphs: s.Paragraphs,
		Resources:  resources,
	})
}
