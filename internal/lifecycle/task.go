package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"recflow/internal/artifact"
	"recflow/internal/logging"
	"recflow/internal/record"
	"recflow/internal/runconfig"
	"recflow/internal/services"
	"recflow/internal/stage"
	"recflow/internal/stageexec"
	"recflow/internal/taskdef"
)

// StageBinding pairs a stage of the sequence with its computation.
type StageBinding struct {
	Name        string
	Params      map[string]any
	Computation stage.Computation
}

// Capabilities are the collaborators a task runs with.
type Capabilities struct {
	Importer record.Importer
	Stages   []StageBinding
}

// BindStages resolves every stage of def against catalog.
func BindStages(def *taskdef.Definition, catalog *stage.Catalog) ([]StageBinding, error) {
	bindings := make([]StageBinding, 0, len(def.Stages))
	for _, spec := range def.Stages {
		comp, ok := catalog.Lookup(spec.Compute)
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, spec.Name, "bind stage", fmt.Sprintf("unknown compute kind %q", spec.Compute), nil)
		}
		bindings = append(bindings, StageBinding{Name: spec.Name, Params: spec.Params, Computation: comp})
	}
	return bindings, nil
}

// Option configures a Task.
type Option func(*Task)

// WithLogger sets the logger used for transition and stage events. It is
// used as given, so it should already carry the run's identifying fields.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Task) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithStore sets the artifact store.
func WithStore(store *artifact.Store) Option {
	return func(t *Task) { t.store = store }
}

// WithDurationFloor sets the minimum recording length used when the task
// definition does not declare its own.
func WithDurationFloor(seconds float64) Option {
	return func(t *Task) { t.durationFloor = seconds }
}

// Result is the terminal view of a run.
type Result struct {
	RunID       string
	Task        string
	Input       string
	State       State
	Flag        FlagSnapshot
	FailedStage string
	Err         error
	Artifacts   map[string]string
	// Final is the record after the last stage; nil unless completed.
	Final    *record.Record
	Duration time.Duration
}

// Task is one run of a task definition against one input.
type Task struct {
	def           *taskdef.Definition
	caps          Capabilities
	logger        *slog.Logger
	store         *artifact.Store
	durationFloor float64

	mu          sync.Mutex
	state       State
	cfg         *runconfig.RunConfig
	flag        QualityFlag
	failedStage string
	err         error
	ran         bool
	final       *record.Record
}

// New validates raw against def. On a configuration error the returned Task
// is already failed and the error is returned alongside it; running it does
// nothing.
func New(def *taskdef.Definition, raw map[string]any, caps Capabilities, opts ...Option) (*Task, error) {
	if def == nil {
		return nil, services.Wrap(services.ErrMisuse, "", "new task", "task definition is required", nil)
	}
	t := &Task{
		def:    def,
		caps:   caps,
		logger: logging.NewNop(),
		state:  StateCreated,
	}
	for _, opt := range opts {
		opt(t)
	}

	cfg, err := runconfig.Validate(def, raw, t.logger)
	if err != nil {
		t.fail("", err)
		return t, err
	}
	t.cfg = cfg
	if err := t.transition(StateConfigured); err != nil {
		return t, err
	}
	return t, nil
}

// State returns the current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Config returns the validated run config, or nil if validation failed.
func (t *Task) Config() *runconfig.RunConfig {
	return t.cfg
}

// Flag appends a review reason.
func (t *Task) Flag(reason string) {
	t.flag.Flag(reason)
	t.logger.Info("run flagged for review",
		logging.String(logging.FieldEventType, "run_flagged"),
		logging.String("reason", reason),
	)
}

// Run drives the task to a terminal state. It may be called once; later
// calls return the terminal result without side effects.
func (t *Task) Run(ctx context.Context) Result {
	start := time.Now()
	t.mu.Lock()
	already := t.ran || t.state.Terminal()
	t.ran = true
	t.mu.Unlock()
	if already {
		return t.result(0)
	}

	if err := t.execute(ctx); err != nil {
		t.fail(t.failedStageName(), err)
	}
	return t.result(time.Since(start))
}

func (t *Task) execute(ctx context.Context) (err error) {
	ctx = services.WithRunID(ctx, t.cfg.RunID)
	ctx = services.WithTask(ctx, t.def.Name)
	ctx = stage.WithFlagger(ctx, t)

	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrStageExecution, t.failedStageName(), "run task", fmt.Sprintf("panic: %v", r), nil)
			t.logger.Debug("task panic stack", logging.String("stack", string(debug.Stack())))
		}
	}()

	if t.caps.Importer == nil {
		return services.Wrap(services.ErrImport, taskdef.ImportStage, "import", "no importer configured", nil)
	}
	if t.store == nil {
		return services.Wrap(services.ErrMisuse, "", "run task", "artifact store is required", nil)
	}

	t.setFailedStage(taskdef.ImportStage)
	rec, err := t.importRecord(ctx)
	if err != nil {
		return err
	}
	if err := t.transition(StateImported); err != nil {
		return err
	}
	t.checkDuration(rec)
	if err := t.persistImport(ctx, rec); err != nil {
		return err
	}

	t.setFailedStage("")
	if err := t.transition(StateProcessing); err != nil {
		return err
	}
	for _, binding := range t.caps.Stages {
		t.setFailedStage(binding.Name)
		res, err := stageexec.Run(ctx, stageexec.Options{
			Logger:      t.logger,
			Store:       t.store,
			StageName:   binding.Name,
			Computation: binding.Computation,
			Params:      binding.Params,
			Config:      t.cfg,
			Record:      rec,
		})
		if err != nil {
			return err
		}
		rec = res.Record
	}
	t.setFailedStage("")
	if err := t.transition(StateCompleted); err != nil {
		return err
	}
	t.mu.Lock()
	t.final = rec
	t.mu.Unlock()
	return nil
}

func (t *Task) importRecord(ctx context.Context) (*record.Record, error) {
	rec, err := t.caps.Importer.Import(ctx, t.cfg)
	if err != nil {
		if services.Details(err).Kind == "unknown" {
			err = services.Wrap(services.ErrImport, taskdef.ImportStage, "import", t.cfg.Input, err)
		}
		return nil, err
	}
	if err := rec.Check(); err != nil {
		return nil, services.Wrap(services.ErrImport, taskdef.ImportStage, "import", "imported record is malformed", err)
	}
	return rec, nil
}

func (t *Task) checkDuration(rec *record.Record) {
	floor := t.def.MinDurationSeconds
	if floor <= 0 {
		floor = t.durationFloor
	}
	if floor <= 0 {
		return
	}
	if duration := rec.DurationSeconds(); duration < floor {
		t.Flag(fmt.Sprintf("initial duration (%.1fs) less than %.0fs", duration, floor))
	}
}

func (t *Task) persistImport(ctx context.Context, rec *record.Record) error {
	toggle, ok := t.cfg.Stage(taskdef.ImportStage)
	if !ok || !toggle.Enabled {
		t.logger.Debug("stage skipped",
			logging.String(logging.FieldEventType, "stage_skipped"),
			logging.String(logging.FieldStage, taskdef.ImportStage),
		)
		return nil
	}
	path, err := t.store.Put(ctx, t.cfg.RunID, taskdef.ImportStage, rec, toggle.Suffix)
	if err != nil {
		return err
	}
	t.cfg.SetDerived(stageexec.DerivedArtifactKey(taskdef.ImportStage), path)
	return nil
}

func (t *Task) transition(to State) error {
	t.mu.Lock()
	from := t.state
	if !CanTransition(from, to) {
		t.mu.Unlock()
		return &TransitionError{From: from, To: to}
	}
	t.state = to
	t.mu.Unlock()

	t.logger.Info("task transition",
		logging.String(logging.FieldEventType, "task_transition"),
		logging.String("from", string(from)),
		logging.String("to", string(to)),
	)
	return nil
}

func (t *Task) fail(stageName string, err error) {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	from := t.state
	t.state = StateFailed
	t.failedStage = stageName
	t.err = err
	t.mu.Unlock()

	details := services.Details(err)
	logging.ErrorWithContext(t.logger, "task failed", "task_transition",
		logging.String("from", string(from)),
		logging.String("to", string(StateFailed)),
		logging.String("failed_stage", stageName),
		logging.String("error_kind", details.Kind),
		logging.String("error_message", strings.TrimSpace(details.Message)),
	)
}

func (t *Task) setFailedStage(name string) {
	t.mu.Lock()
	t.failedStage = name
	t.mu.Unlock()
}

func (t *Task) failedStageName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failedStage
}

func (t *Task) result(elapsed time.Duration) Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := Result{
		Task:        t.def.Name,
		State:       t.state,
		Flag:        t.flag.Snapshot(),
		FailedStage: t.failedStage,
		Err:         t.err,
		Duration:    elapsed,
	}
	if t.state != StateFailed {
		res.FailedStage = ""
	}
	if t.state == StateCompleted {
		res.Final = t.final
	}
	if t.cfg != nil {
		res.RunID = t.cfg.RunID
		res.Input = t.cfg.Input
		res.Artifacts = t.cfg.Derived()
	}
	return res
}
