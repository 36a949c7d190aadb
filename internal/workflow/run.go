package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"recflow/internal/artifact"
	"recflow/internal/lifecycle"
	"recflow/internal/logging"
	"recflow/internal/runconfig"
	"recflow/internal/services"
	"recflow/internal/taskdef"
)

// TaskRef names a task or carries a definition directly.
type TaskRef struct {
	name string
	def  *taskdef.Definition
}

// TaskNamed refers to a task by registry name.
func TaskNamed(name string) TaskRef {
	return TaskRef{name: strings.TrimSpace(name)}
}

// TaskDefinition refers to an already loaded definition.
func TaskDefinition(def *taskdef.Definition) TaskRef {
	return TaskRef{def: def}
}

func (r TaskRef) String() string {
	if r.def != nil {
		return r.def.Name
	}
	return r.name
}

func (o *Orchestrator) resolve(ctx context.Context, ref TaskRef) (*taskdef.Definition, error) {
	if ref.def != nil {
		if err := ref.def.Validate(); err != nil {
			return nil, services.Wrap(services.ErrMisuse, "", "resolve task", "invalid task definition", err)
		}
		return ref.def.Clone(), nil
	}
	if ref.name == "" {
		return nil, services.Wrap(services.ErrMisuse, "", "resolve task", "task name is empty", nil)
	}
	if o.resolver == nil {
		return nil, services.Wrap(services.ErrMisuse, "", "resolve task", "no task registry configured", nil)
	}
	def, ok := o.resolver.Resolve(ctx, ref.name)
	if !ok {
		return nil, services.Wrap(services.ErrMisuse, "", "resolve task", fmt.Sprintf("unknown task %q", ref.name), nil)
	}
	return def, nil
}

// RunOne executes task against a single input. A nil base uses the
// configured base run config. Per-run failures are reported through the
// returned outcome; an error is returned only when the task cannot be
// resolved.
func (o *Orchestrator) RunOne(ctx context.Context, ref TaskRef, input string, base map[string]any) (RunOutcome, error) {
	def, err := o.resolve(ctx, ref)
	if err != nil {
		return RunOutcome{}, err
	}
	outcome := o.runResolved(ctx, def, input, base, "")
	return outcome, nil
}

// runResolved never panics and always returns an outcome. The outcome is
// handed to the recorder before it is returned.
func (o *Orchestrator) runResolved(ctx context.Context, def *taskdef.Definition, input string, base map[string]any, batchID string) (outcome RunOutcome) {
	runID := o.newID()
	started := o.now()
	outcome = RunOutcome{
		RunID:     runID,
		BatchID:   batchID,
		Task:      def.Name,
		Input:     input,
		StartedAt: started,
	}

	ctx = services.WithRunID(ctx, runID)
	ctx = services.WithTask(ctx, def.Name)
	logger := logging.WithContext(ctx, o.logger)

	defer func() {
		if r := recover(); r != nil {
			outcome = failOutcome(outcome, "", services.Wrap(services.ErrStageExecution, "", "run", fmt.Sprintf("panic: %v", r), nil))
		}
		outcome.Duration = o.now().Sub(started)
		o.finish(ctx, logger, outcome)
	}()

	root, err := o.PrepareRoot(def.Name)
	if err != nil {
		return failOutcome(outcome, "", err)
	}

	runLogger, logPath, closeLog := o.openRunLog(ctx, logger, root, runID)
	defer closeLog()
	outcome.LogPath = logPath

	if base == nil {
		base = o.cfg.BaseRunConfig()
	}
	raw := runconfig.Build(base, def.Name, input, runID)

	store, err := artifact.NewStore(o.fs, filepath.Join(root, StagesDir))
	if err != nil {
		return failOutcome(outcome, "", err)
	}
	bindings, err := lifecycle.BindStages(def, o.kinds)
	if err != nil {
		return failOutcome(outcome, "", err)
	}

	task, err := lifecycle.New(def, raw, lifecycle.Capabilities{
		Importer: o.importer,
		Stages:   bindings,
	},
		lifecycle.WithLogger(runLogger),
		lifecycle.WithStore(store),
		lifecycle.WithDurationFloor(o.cfg.Quality.MinDurationSeconds),
	)
	if err != nil {
		runLogger.Warn("run configuration rejected",
			logging.String(logging.FieldEventType, "run_config_invalid"),
			logging.String(logging.FieldErrorHint, "check the stage map and settings in the config file"),
			logging.Error(err),
		)
	}
	res := task.Run(ctx)

	outcome.Flag = res.Flag
	outcome.Artifacts = res.Artifacts
	if res.State != lifecycle.StateCompleted {
		return failOutcome(outcome, res.FailedStage, res.Err)
	}
	outcome.Status = StatusCompleted
	if res.Final != nil {
		path, err := o.writeFinal(ctx, root, runID, input, res.Final)
		if err != nil {
			return failOutcome(outcome, "", err)
		}
		outcome.FinalPath = path
	}
	return outcome
}

func (o *Orchestrator) writeFinal(ctx context.Context, root, runID, input string, final any) (string, error) {
	store, err := artifact.NewStore(o.fs, filepath.Join(root, FinalDir))
	if err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if stem == "" || stem == "." {
		stem = "record"
	}
	return store.Put(ctx, runID, stem, final, "")
}

// openRunLog tees the run's log lines into <root>/logs/<runID>.log and
// stamps the run fields once for both outputs. When the file cannot be
// created the run logs only through logger.
func (o *Orchestrator) openRunLog(ctx context.Context, logger *slog.Logger, root, runID string) (*slog.Logger, string, func()) {
	path := filepath.Join(root, LogsDir, runID+".log")
	file, err := o.fs.Create(path)
	if err != nil {
		logging.WarnWithContext(logger, "run log unavailable", "run_log_unavailable",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run details are only in the main log"),
		)
		return logger, "", func() {}
	}
	return logging.WithContext(ctx, logging.TeeJSON(o.logger, file, slog.LevelDebug)), path, func() { _ = file.Close() }
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, outcome RunOutcome) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("status", string(outcome.Status)),
		logging.String("input_file", outcome.Input),
		logging.Bool("flagged", outcome.Flag.Flagged),
		logging.Duration("duration", outcome.Duration),
	}
	if outcome.Failed() {
		attrs = append(attrs,
			logging.String("failed_stage", outcome.FailedStage),
			logging.String("error_kind", outcome.ErrorKind),
			logging.String("error_message", outcome.ErrorMessage),
		)
		logger.Warn("run failed", logging.Args(attrs...)...)
	} else {
		logger.Info("run completed", logging.Args(attrs...)...)
	}

	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(context.WithoutCancel(ctx), outcome); err != nil {
		logging.WarnWithContext(logger, "failed to record run outcome", "run_history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the run history database"),
			logging.String(logging.FieldImpact, "run is missing from history"),
		)
	}
}

func failOutcome(outcome RunOutcome, failedStage string, err error) RunOutcome {
	if err == nil {
		err = services.Wrap(services.ErrStageExecution, failedStage, "run", "run did not complete", nil)
	}
	details := services.Details(err)
	outcome.Status = StatusFailed
	outcome.FailedStage = failedStage
	outcome.ErrorKind = details.Kind
	outcome.ErrorMessage = details.Message
	outcome.Err = err
	return outcome
}
