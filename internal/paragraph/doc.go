// Package paragraph groups keyed lines of text into paragraphs.
//
// An Aggregator consumes (key, line) pairs, usually the lines of fetched
// files keyed by file name, and emits one Paragraph per maximal run of
// consecutive non-empty lines sharing a key. A paragraph is flushed when the
// key changes, when an empty line arrives (even for the same key), and at
// end of input. Flushing is incremental, so paragraphs already emitted stay
// valid if the input later fails.
//
//	agg, err := paragraph.New(paragraph.WithJoiner(myJoiner))
//	for p, err := range agg.Aggregate(lines) {
//	    ...
//	}
//
// The state machine is also usable one pair at a time through Push and Flush.
package paragraph
