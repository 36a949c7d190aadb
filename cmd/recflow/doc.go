// Package main hosts the recflow CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once, builds the task registry
// from the built-in catalog and the workspace directory, and hands batches to
// the workflow orchestrator. Run history lives in the runstore database and
// is surfaced through the runs command.
//
// Keep this package thin: engine behavior belongs in the internal packages,
// and commands here only translate flags into requests and render results.
package main
