// Package stage defines the contract between the task lifecycle and the
// computations a task runs, plus the catalog of computations that task
// definitions can reference by kind.
//
// Computations are pure with respect to the engine: they receive a record and
// the merged settings and return the next record. Anything else they do
// (plots, reports) is their own concern. A computation that wants to mark the
// run for human review uses the Flagger stored on its context.
package stage
