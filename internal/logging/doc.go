// Package logging assembles structured slog loggers and formatting helpers used
// across recflow.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so lifecycle and stage code can
// automatically tag log lines with run IDs, task names, stages, and batch
// correlation IDs. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
package logging
