package preflight

import (
	"context"

	"recflow/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the path checks for the given config. Directories that do
// not exist yet are checked through their nearest existing parent, since the
// orchestrator creates them on demand.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Output directory (always checked)
	results = append(results, CheckCreatable("Output directory", cfg.Paths.OutputDir))
	if cfg.Batch.MinFreeGiB > 0 {
		results = append(results, CheckFreeSpace("Output free space", cfg.Paths.OutputDir, uint64(cfg.Batch.MinFreeGiB)<<30))
	}

	// Log directory (run history and lock file)
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckCreatable("Log directory", cfg.Paths.LogDir))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
