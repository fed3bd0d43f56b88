// Package cli implements the gyazemon command line: the long-running
// watcher (run), one-off uploads (upload), and the settings commands
// (token, watch) that replace a settings window.
package cli
