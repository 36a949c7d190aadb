// Package artifact persists per-stage snapshots of a run.
//
// Artifacts live at <root>/<runID>/<stage><suffix>.json on an afero
// filesystem. Writes go through a temp file and a rename so a reader never
// observes a partial artifact, and rewriting the same key replaces it.
package artifact
