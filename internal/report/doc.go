// Package report renders the paragraphs of a run as plain text, JSON lines
// or Markdown.
package report
