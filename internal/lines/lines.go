package lines

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/nao1215/onlinereader/internal/fetch"
	"github.com/nao1215/onlinereader/internal/paragraph"
)

// MaxLineSize is the longest line Split accepts.
const MaxLineSize = 1 << 20

// ErrLineTooLong is returned when a stream holds a line longer than MaxLineSize.
var ErrLineTooLong = errors.New("line too long")

// Split turns a sequence of fetched resources into (name, line) pairs, one per
// line of each stream, in order. Blank lines are yielded with empty text.
//
// Each stream is read to the end and closed before the next resource is
// requested from results. A stream whose iteration is abandoned is closed too.
// The first error, from results or from reading a stream, is yielded once and
// ends the sequence.
func Split(results iter.Seq2[*fetch.Result, error]) iter.Seq2[paragraph.Line, error] {
	return func(yield func(paragraph.Line, error) bool) {
		for res, err := range results {
			if err != nil {
				yield(paragraph.Line{}, err)
				return
			}
			if !splitOne(res, yield) {
				return
			}
		}
	}
}

// splitOne yields the lines of one resource and reports whether iteration
// should continue.
func splitOne(res *fetch.Result, yield func(paragraph.Line, error) bool) bool {
	defer res.Stream.Close() //nolint:errcheck

	for text, err := range Read(res.Stream) {
		if err != nil {
			yield(paragraph.Line{}, fmt.Errorf("failed to read %s: %w", res.Name, err))
			return false
		}
		if !yield(paragraph.Line{Key: res.Name, Text: text}, nil) {
			return false
		}
	}
	return true
}

// Read yields the lines of r without their terminators. Input is decoded as
// UTF-8 unless a byte order mark selects UTF-16; the mark itself is dropped.
// A trailing "\r" is trimmed from every line. r is not closed.
func Read(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

		scanner := bufio.NewScanner(decoded)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

		for scanner.Scan() {
			if !yield(strings.TrimSuffix(scanner.Text(), "\r"), nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				err = fmt.Errorf("%w: limit is %d bytes", ErrLineTooLong, MaxLineSize)
			}
			yield("", err)
		}
	}
}
