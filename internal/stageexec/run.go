package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recflow/internal/artifact"
	"recflow/internal/logging"
	"recflow/internal/record"
	"recflow/internal/runconfig"
	"recflow/internal/services"
	"recflow/internal/stage"
)

// Options controls a single stage execution.
type Options struct {
	// Logger should already carry the run's fields; Run adds only the stage.
	Logger      *slog.Logger
	Store       *artifact.Store
	StageName   string
	Computation stage.Computation
	// Params are the stage parameters from the task definition.
	Params map[string]any
	Config *runconfig.RunConfig
	Record *record.Record
}

// Result describes what a stage did.
type Result struct {
	Record       *record.Record
	Skipped      bool
	ArtifactPath string
	Duration     time.Duration
}

// DerivedArtifactKey is the derived-value key under which a stage's artifact
// location is recorded on the run config.
func DerivedArtifactKey(stageName string) string {
	return "artifact." + stageName
}

// Run executes one stage. Disabled stages are skipped without computing or
// persisting anything; enabled stages compute a new record and persist it
// with the stage's suffix.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Config == nil {
		return Result{}, services.Wrap(services.ErrMisuse, opts.StageName, "run stage", "run config is required", nil)
	}
	if opts.Record == nil {
		return Result{}, services.Wrap(services.ErrMisuse, opts.StageName, "run stage", "input record is required", nil)
	}

	stageCtx := services.WithStage(ctx, opts.StageName)
	stageLogger := opts.Logger
	if stageLogger == nil {
		stageLogger = logging.NewNop()
	}
	stageLogger = stageLogger.With(logging.String(logging.FieldStage, opts.StageName))

	toggle, ok := opts.Config.Stage(opts.StageName)
	if !ok || !toggle.Enabled {
		reason := "disabled"
		if !ok {
			reason = "not configured"
		}
		stageLogger.Debug(
			"stage skipped",
			logging.String(logging.FieldEventType, "stage_skipped"),
			logging.String("reason", reason),
		)
		return Result{Record: opts.Record, Skipped: true}, nil
	}
	if opts.Computation == nil {
		return Result{}, services.Wrap(services.ErrStageExecution, opts.StageName, "run stage", "no computation bound", nil)
	}
	if opts.Store == nil {
		return Result{}, services.Wrap(services.ErrMisuse, opts.StageName, "run stage", "artifact store is required", nil)
	}

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("stage_label", stage.Label(opts.StageName)),
		logging.String("input_file", strings.TrimSpace(opts.Config.Input)),
	)

	start := time.Now()
	out, err := compute(stageCtx, opts)
	if err != nil {
		return Result{}, handleFailure(stageLogger, opts.StageName, err)
	}

	path, err := opts.Store.Put(stageCtx, opts.Config.RunID, opts.StageName, out, toggle.Suffix)
	if err != nil {
		return Result{}, handleFailure(stageLogger, opts.StageName, err)
	}
	opts.Config.SetDerived(DerivedArtifactKey(opts.StageName), path)

	elapsed := time.Since(start)
	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("artifact", path),
		logging.Duration("duration", elapsed),
	)
	return Result{Record: out, ArtifactPath: path, Duration: elapsed}, nil
}

func compute(ctx context.Context, opts Options) (out *record.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = services.Wrap(services.ErrStageExecution, opts.StageName, "compute", fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	settings := stage.Settings{Params: opts.Params, Task: opts.Config.Settings}
	out, err = opts.Computation.Compute(ctx, opts.Record, settings)
	if err != nil {
		if errors.Is(err, services.ErrStageExecution) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrStageExecution, opts.StageName, "compute", "computation failed", err)
	}
	if out == nil {
		return nil, services.Wrap(services.ErrStageExecution, opts.StageName, "compute", "computation returned no record", nil)
	}
	return out, nil
}

func handleFailure(logger *slog.Logger, stageName string, stageErr error) error {
	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = "stage failed"
	}
	logging.ErrorWithContext(
		logger,
		"stage failed",
		"stage_failure",
		logging.String("error_kind", details.Kind),
		logging.String("error_message", message),
		logging.String(logging.FieldErrorHint, fmt.Sprintf("inspect the %s stage parameters and input data", stageName)),
		logging.Error(stageErr),
	)
	return stageErr
}
