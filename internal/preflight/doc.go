// Package preflight provides readiness checks for the filesystem paths a
// batch writes to.
//
// The orchestrator calls RunAll before a batch and logs failures as
// warnings; checks are advisory and never stop a batch. The CLI "config
// show" command uses the individual check functions to display path health.
package preflight
