// Package pipeline runs the full read path: locators are fetched one at a
// time, each stream is split into lines, and the lines are grouped into
// paragraphs.
//
// Every stage is a lazy sequence, so a run does no work until the caller
// ranges over it and stops as soon as the caller does. There is no
// concurrency inside a run.
package pipeline
