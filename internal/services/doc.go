// Package services defines shared utilities consumed by the task lifecycle,
// the stage executor, and the orchestrator.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, task names, stage names, and batch
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap and Details helpers that keep
//     failure classification (configuration, import, stage, persistence,
//     misuse) uniform across the engine.
//
// Use these helpers when wiring new stage logic so failure reporting stays
// consistent between single runs and batches.
package services
