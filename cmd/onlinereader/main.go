// Package main provides the entry point for the onlinereader CLI.
//
// onlinereader reads text resources over HTTP(S), including files shared on
// Google Drive, and prints their contents grouped into paragraphs.
//
// Usage:
//
//	onlinereader fetch <url>...
//	onlinereader fetch --list <file>
//
// See --help for all available options.
package main

// main is the entry point for onlinereader.
func main() {
	Execute()
}
