// Package runlog reads the per-run JSON logs written under an output root's
// logs/ directory.
//
// Tail returns the last N lines of a log or the lines appended after a byte
// offset, optionally waiting for more when following a run that is still in
// progress. Parse and Format turn the JSON lines back into short
// human-readable lines for the CLI.
package runlog
