package workflow

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"recflow/internal/logging"
	"recflow/internal/preflight"
	"recflow/internal/services"
)

// BatchRequest describes one RunMany call.
type BatchRequest struct {
	Task TaskRef
	// Inputs are explicit input files, run in addition to any discovered.
	Inputs []string
	// Dir, when set, is scanned for inputs matching Pattern.
	Dir       string
	Pattern   string
	Recursive bool
	// Concurrency is clamped into [1, hard cap]; values below one run
	// sequentially.
	Concurrency int
	// Base replaces the configured base run config when non-nil.
	Base map[string]any
}

// RunMany runs the task over every input with bounded concurrency. Runs that
// fail are reported in the summary. Cancelling ctx stops new runs from
// starting; runs already in flight finish and are included.
func (o *Orchestrator) RunMany(ctx context.Context, req BatchRequest) (BatchSummary, error) {
	def, err := o.resolve(ctx, req.Task)
	if err != nil {
		return BatchSummary{}, err
	}

	var discovered []string
	if strings.TrimSpace(req.Dir) != "" {
		pattern := req.Pattern
		if strings.TrimSpace(pattern) == "" {
			pattern = o.cfg.Batch.Pattern
		}
		discovered, err = DiscoverInputs(o.fs, req.Dir, pattern, req.Recursive)
		if err != nil {
			return BatchSummary{}, err
		}
	}
	inputs := mergeInputs(req.Inputs, discovered)
	if len(inputs) == 0 {
		return BatchSummary{}, services.Wrap(services.ErrMisuse, "", "run batch", "no input files to process", nil)
	}

	batchID := o.newID()
	ctx = services.WithRequestID(ctx, batchID)
	ctx = services.WithTask(ctx, def.Name)
	logger := logging.WithContext(ctx, o.logger)

	o.runPreflight(ctx, logger)
	root, backup, prepErr := o.prepareRoot(def.Name)
	if prepErr != nil {
		logging.ErrorWithContext(logger, "output root unavailable", "output_root_unavailable",
			logging.String("root", root),
			logging.Error(prepErr),
			logging.String(logging.FieldErrorHint, "check permissions on the output directory"),
		)
	}

	workers := o.cfg.EffectiveParallel(req.Concurrency)
	summary := BatchSummary{
		BatchID:     batchID,
		Task:        def.Name,
		Root:        root,
		BackupPath:  backup,
		Concurrency: workers,
	}
	logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("inputs", len(inputs)),
		logging.Int("concurrency", workers),
		logging.String("root", root),
	)

	started := o.now()
	runCtx := context.WithoutCancel(ctx)
	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(workers)
	for i, input := range inputs {
		// Go blocks while the pool is full, so this check runs each time a
		// slot frees up.
		if ctx.Err() != nil {
			summary.Interrupted = true
			summary.Skipped = len(inputs) - i
			break
		}
		p.Go(func() {
			outcome := o.runResolved(runCtx, def.Clone(), input, req.Base, batchID)
			mu.Lock()
			summary.add(outcome)
			done := len(summary.Outcomes)
			mu.Unlock()
			if o.progress != nil {
				o.progress(done, len(inputs), outcome)
			}
		})
	}
	p.Wait()
	summary.Duration = o.now().Sub(started)

	logger.Info("batch finished",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("flagged", summary.Flagged),
		logging.Bool("interrupted", summary.Interrupted),
		logging.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (o *Orchestrator) runPreflight(ctx context.Context, logger *slog.Logger) {
	for _, r := range preflight.Failed(preflight.RunAll(ctx, o.cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported path before long batches"),
			logging.String(logging.FieldImpact, "runs may fail when writing artifacts"),
		)
	}
}
