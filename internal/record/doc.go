// Package record holds the in-memory representation of one recording while a
// run processes it, plus the Importer collaborator that loads recordings from
// disk.
//
// Importers are deliberately thin: they understand a CSV layout (one column
// per channel, optional "# sample_rate=" header) and the JSON encoding that
// stage artifacts are written in, so an artifact can be re-imported as input.
package record
