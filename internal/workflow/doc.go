// Package workflow drives task runs: one input at a time through RunOne, or
// a discovered input set through RunMany under a bounded worker pool.
//
// The Orchestrator owns run identity and outcome construction. Each run
// builds its run config from the base config, validates it, and executes a
// lifecycle.Task whose stage artifacts land under the task's output root:
//
//	<output_dir>/<task>/stages/<run_id>/<stage><suffix>.json
//	<output_dir>/<task>/logs/<run_id>.log
//	<output_dir>/<task>/final/<run_id>/<input stem>.json
//
// The first time an orchestrator prepares an output root that already
// exists, the old root is renamed aside to <task>_backup_<timestamp>. This
// happens at most once per root per Orchestrator, under a lock, before any
// run writes into the root.
//
// Per-run failures become failed RunOutcomes and never affect sibling runs.
// Only misuse (unknown task, empty input set) and input discovery failures
// are returned as errors.
package workflow
