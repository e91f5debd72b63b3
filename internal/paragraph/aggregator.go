package paragraph

import (
	"iter"
	"strings"
)

// Line is one line of text together with the key of the resource it was
// read from. An empty Text is an explicit paragraph break.
type Line struct {
	Key  string
	Text string
}

// Paragraph is the joined text of one run of consecutive non-empty lines
// sharing a key.
type Paragraph struct {
	Key  string
	Text string
}

// Joiner turns the buffered lines of a paragraph into its text.
type Joiner func(lines []string) string

// NewlineJoiner joins lines with "\n". It is the default joiner.
func NewlineJoiner(lines []string) string {
	return strings.Join(lines, "\n")
}

// Aggregator groups lines into paragraphs.
//
// The zero value is not usable; create one with New. An Aggregator holds the
// state of one aggregation at a time and must not be shared between
// goroutines or ranged over concurrently.
type Aggregator struct {
	joiner Joiner

	// started is false until the first line has been seen.
	started bool

	// key is the key of the open paragraph.
	key string

	// buffer holds the lines of the open paragraph.
	buffer []string
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithJoiner replaces the default newline joiner.
func WithJoiner(j Joiner) Option {
	return func(a *Aggregator) {
		a.joiner = j
	}
}

// New creates an Aggregator. A nil joiner is rejected here, before any line
// is processed.
func New(opts ...Option) (*Aggregator, error) {
	a := &Aggregator{joiner: NewlineJoiner}
	for _, opt := range opts {
		opt(a)
	}
	if a.joiner == nil {
		return nil, &ConfigurationError{Setting: "joiner", Err: ErrNilJoiner}
	}
	return a, nil
}

// Push feeds one line and returns the paragraph it completes, if any.
//
// A non-empty line with the open key is buffered. Any other line (a new key,
// or an empty text) first flushes the buffer when it holds lines, then opens
// a new paragraph: holding the line when it is non-empty, empty otherwise.
// The open key always becomes key.
func (a *Aggregator) Push(key, text string) (Paragraph, bool) {
	if !a.started {
		a.started = true
		a.key = key
	}

	if text != "" && key == a.key {
		a.buffer = append(a.buffer, text)
		return Paragraph{}, false
	}

	p, flushed := a.flush()
	if text != "" {
		a.buffer = append(a.buffer, text)
	}
	a.key = key
	return p, flushed
}

// Flush emits the open paragraph at end of input, if it holds any line.
func (a *Aggregator) Flush() (Paragraph, bool) {
	return a.flush()
}

// Pending returns the number of buffered lines.
func (a *Aggregator) Pending() int {
	return len(a.buffer)
}

// Reset drops the open paragraph and forgets the open key.
func (a *Aggregator) Reset() {
	a.started = false
	a.key = ""
	a.buffer = nil
}

func (a *Aggregator) flush() (Paragraph, bool) {
	if len(a.buffer) == 0 {
		return Paragraph{}, false
	}
	p := Paragraph{Key: a.key, Text: a.joiner(a.buffer)}
	a.buffer = nil
	return p, true
}

// Aggregate lazily groups the lines of seq into paragraphs, one per maximal
// run of same-key non-empty lines not interrupted by an empty line.
//
// The state is reset when iteration starts, so the result can be ranged over
// again whenever seq can. An error from seq is yielded once and ends the
// sequence; the open paragraph is dropped.
func (a *Aggregator) Aggregate(seq iter.Seq2[Line, error]) iter.Seq2[Paragraph, error] {
	return func(yield func(Paragraph, error) bool) {
		a.Reset()
		defer a.Reset()

		for line, err := range seq {
			if err != nil {
				yield(Paragraph{}, err)
				return
			}
			if p, ok := a.Push(line.Key, line.Text); ok {
				if !yield(p, nil) {
					return
				}
			}
		}

		if p, ok := a.Flush(); ok {
			yield(p, nil)
		}
	}
}

// Lines adapts an error-free sequence of lines for Aggregate.
func Lines(seq iter.Seq[Line]) iter.Seq2[Line, error] {
	return func(yield func(Line, error) bool) {
		for line := range seq {
			if !yield(line, nil) {
				return
			}
		}
	}
}
