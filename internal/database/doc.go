// Package database stores fetch runs in SQLite through the CGO-free
// modernc.org/sqlite driver.
//
// A run has a UUID, the joiner it used, its final status and the resources
// and paragraphs it produced. Every paragraph is stored with a SHA3-256
// digest of its text so identical paragraphs can be found across runs.
package database
