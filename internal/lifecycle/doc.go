// Package lifecycle drives one run of a task through its states.
//
// A Task moves created -> configured -> imported -> processing -> completed,
// or to failed from any non-terminal state. Configuration is validated when
// the Task is constructed; an invalid configuration fails the task before
// the importer is ever called. Processing capability is injected through
// Capabilities rather than inherited, so a task definition only names which
// computations it uses.
//
// The QualityFlag is orthogonal to state: stages append reasons through the
// stage.Flagger on their context and the flag is never cleared within a run.
package lifecycle
