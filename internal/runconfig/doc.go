// Package runconfig builds and validates the configuration of a single run.
//
// Validation happens in two stages. The base field set (run identifier, input
// reference, task name, task settings, stage map) is checked for presence and
// exact type in declaration order, failing on the first violation. Then every
// stage the task definition requires must appear in the stage map with an
// enabled flag and an artifact suffix. Definitions that predate required-stage
// declarations fall back to the default stage list with a warning.
package runconfig
