// Package lines reads fetched streams line by line.
//
// It sits between the fetch and paragraph packages: Split consumes the
// sequence produced by a fetcher and yields the (name, line) pairs an
// Aggregator groups into paragraphs. Streams are decoded with
// golang.org/x/text so UTF-16 files with a byte order mark read the same as
// UTF-8 ones.
package lines
