// Package stageexec runs one pipeline stage of a task: it honours the stage
// toggle, invokes the bound computation, persists the resulting artifact,
// and emits the stage_start, stage_complete, stage_skipped and
// stage_failure events.
package stageexec
