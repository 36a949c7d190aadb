package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"recflow/internal/artifact"
	"recflow/internal/lifecycle"
	"recflow/internal/record"
	"recflow/internal/runconfig"
	"recflow/internal/services"
	"recflow/internal/stage"
	"recflow/internal/taskdef"
	"recflow/internal/testsupport"
)

type stubImporter struct {
	calls   int
	seconds int
	err     error
}

func (s *stubImporter) Import(_ context.Context, cfg *runconfig.RunConfig) (*record.Record, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	n := s.seconds
	if n == 0 {
		n = 120
	}
	row := make([]float64, n)
	for i := range row {
		row[i] = float64(i % 7)
	}
	return &record.Record{Source: cfg.Input, SampleRate: 1, Channels: []string{"Cz"}, Data: [][]float64{row}}, nil
}

type countingStage struct {
	calls int
	err   error
	flag  string
}

func (c *countingStage) Compute(ctx context.Context, rec *record.Record, _ stage.Settings) (*record.Record, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if c.flag != "" {
		stage.FlagFromContext(ctx).Flag(c.flag)
	}
	return rec.Clone(), nil
}

func definition() *taskdef.Definition {
	return &taskdef.Definition{
		Name:           "resting",
		Origin:         taskdef.OriginBuiltin,
		RequiredStages: []string{"post_import", "s1"},
		Stages: []taskdef.StageSpec{
			{Name: "s1", Compute: "passthrough"},
			{Name: "s2", Compute: "passthrough"},
			{Name: "s3", Compute: "passthrough"},
		},
	}
}

func rawConfig(stages map[string]any) map[string]any {
	return map[string]any{
		"run_id":   "run-1",
		"input":    "/data/s01.csv",
		"task":     "resting",
		"settings": map[string]any{},
		"stages":   stages,
	}
}

func allEnabled() map[string]any {
	return map[string]any{
		"post_import": map[string]any{"enabled": true, "suffix": "_imp"},
		"s1":          map[string]any{"enabled": true, "suffix": "_s1"},
		"s2":          map[string]any{"enabled": true, "suffix": "_s2"},
		"s3":          map[string]any{"enabled": true, "suffix": "_s3"},
	}
}

func newStore(t *testing.T) *artifact.Store {
	t.Helper()
	store, err := artifact.NewStore(afero.NewMemMapFs(), "/out/stages")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func bindings(stages ...*countingStage) []lifecycle.StageBinding {
	names := []string{"s1", "s2", "s3"}
	out := make([]lifecycle.StageBinding, len(stages))
	for i, s := range stages {
		out[i] = lifecycle.StageBinding{Name: names[i], Computation: s}
	}
	return out
}

func TestRunCompletesAndPersistsEnabledStages(t *testing.T) {
	store := newStore(t)
	logger, capture := testsupport.NewCaptureLogger()
	importer := &stubImporter{}
	s1, s2, s3 := &countingStage{}, &countingStage{}, &countingStage{}
	stages := allEnabled()
	stages["s2"] = map[string]any{"enabled": false, "suffix": "_s2"}

	task, err := lifecycle.New(definition(), rawConfig(stages), lifecycle.Capabilities{
		Importer: importer,
		Stages:   bindings(s1, s2, s3),
	}, lifecycle.WithLogger(logger), lifecycle.WithStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if task.State() != lifecycle.StateConfigured {
		t.Fatalf("expected configured, got %s", task.State())
	}

	res := task.Run(context.Background())
	if res.State != lifecycle.StateCompleted || res.Err != nil {
		t.Fatalf("expected completed, got %s (%v)", res.State, res.Err)
	}
	if s1.calls != 1 || s2.calls != 0 || s3.calls != 1 {
		t.Fatalf("unexpected call counts s1=%d s2=%d s3=%d", s1.calls, s2.calls, s3.calls)
	}
	for _, name := range []string{"post_import", "s1", "s3"} {
		if !store.Exists("run-1", name) {
			t.Fatalf("expected artifact for %s", name)
		}
	}
	if store.Exists("run-1", "s2") {
		t.Fatal("disabled stage must not produce an artifact")
	}
	if len(res.Artifacts) != 3 {
		t.Fatalf("expected three artifact locations, got %v", res.Artifacts)
	}
	transitions := capture.Events("task_transition")
	want := []string{"configured", "imported", "processing", "completed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(transitions))
	}
	for i, rec := range transitions {
		if rec.Attrs["to"] != want[i] {
			t.Fatalf("transition %d: expected %s, got %v", i, want[i], rec.Attrs["to"])
		}
	}
}

func TestRunFailsAtStageKKeepingEarlierArtifacts(t *testing.T) {
	store := newStore(t)
	s1 := &countingStage{}
	s2 := &countingStage{err: errors.New("singular matrix")}
	s3 := &countingStage{}

	task, err := lifecycle.New(definition(), rawConfig(allEnabled()), lifecycle.Capabilities{
		Importer: &stubImporter{},
		Stages:   bindings(s1, s2, s3),
	}, lifecycle.WithStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := task.Run(context.Background())
	if res.State != lifecycle.StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if res.FailedStage != "s2" {
		t.Fatalf("expected failed stage s2, got %q", res.FailedStage)
	}
	if !errors.Is(res.Err, services.ErrStageExecution) {
		t.Fatalf("expected stage execution error, got %v", res.Err)
	}
	if !store.Exists("run-1", "post_import") || !store.Exists("run-1", "s1") {
		t.Fatal("artifacts before the failing stage must remain")
	}
	if store.Exists("run-1", "s2") || store.Exists("run-1", "s3") {
		t.Fatal("no artifacts expected from the failing stage onward")
	}
	if s3.calls != 0 {
		t.Fatal("stages after the failure must not run")
	}
}

func TestConfigErrorFailsBeforeImport(t *testing.T) {
	importer := &stubImporter{}
	stages := allEnabled()
	delete(stages, "post_import")

	task, err := lifecycle.New(definition(), rawConfig(stages), lifecycle.Capabilities{
		Importer: importer,
		Stages:   bindings(&countingStage{}),
	}, lifecycle.WithStore(newStore(t)))
	var stageErr *runconfig.StageConfigError
	if !errors.As(err, &stageErr) || stageErr.Stage != "post_import" {
		t.Fatalf("expected stage config error for post_import, got %v", err)
	}
	if task.State() != lifecycle.StateFailed {
		t.Fatalf("expected failed, got %s", task.State())
	}
	res := task.Run(context.Background())
	if res.State != lifecycle.StateFailed || !errors.Is(res.Err, services.ErrConfiguration) {
		t.Fatalf("expected failed configuration result, got %s (%v)", res.State, res.Err)
	}
	if importer.calls != 0 {
		t.Fatal("importer must not be called after a configuration error")
	}
}

func TestImportFailureAndPanic(t *testing.T) {
	store := newStore(t)
	task, _ := lifecycle.New(definition(), rawConfig(allEnabled()), lifecycle.Capabilities{
		Importer: &stubImporter{err: errors.New("truncated header")},
	}, lifecycle.WithStore(store))
	res := task.Run(context.Background())
	if res.State != lifecycle.StateFailed || res.FailedStage != "post_import" || !errors.Is(res.Err, services.ErrImport) {
		t.Fatalf("expected import failure, got %+v", res)
	}

	panicking := stage.Func(func(context.Context, *record.Record, stage.Settings) (*record.Record, error) {
		panic("index out of range")
	})
	task, _ = lifecycle.New(definition(), rawConfig(allEnabled()), lifecycle.Capabilities{
		Importer: &stubImporter{},
		Stages:   []lifecycle.StageBinding{{Name: "s1", Computation: panicking}},
	}, lifecycle.WithStore(newStore(t)))
	res = task.Run(context.Background())
	if res.State != lifecycle.StateFailed || res.FailedStage != "s1" {
		t.Fatalf("expected panic to fail stage s1, got %+v", res)
	}
}

func TestDurationFloorAndStageFlagsAreAdvisory(t *testing.T) {
	task, err := lifecycle.New(definition(), rawConfig(allEnabled()), lifecycle.Capabilities{
		Importer: &stubImporter{seconds: 30},
		Stages:   bindings(&countingStage{flag: "noisy"}),
	}, lifecycle.WithStore(newStore(t)), lifecycle.WithDurationFloor(60))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := task.Run(context.Background())
	if res.State != lifecycle.StateCompleted {
		t.Fatalf("flags must not fail the run, got %s (%v)", res.State, res.Err)
	}
	if !res.Flag.Flagged || len(res.Flag.Reasons) != 2 {
		t.Fatalf("expected two flag reasons, got %+v", res.Flag)
	}
	if res.Flag.Reasons[0] != "initial duration (30.0s) less than 60s" {
		t.Fatalf("unexpected duration reason %q", res.Flag.Reasons[0])
	}
}

func TestRunIsOnceOnly(t *testing.T) {
	s1 := &countingStage{}
	task, _ := lifecycle.New(definition(), rawConfig(allEnabled()), lifecycle.Capabilities{
		Importer: &stubImporter{},
		Stages:   bindings(s1),
	}, lifecycle.WithStore(newStore(t)))
	first := task.Run(context.Background())
	second := task.Run(context.Background())
	if first.State != lifecycle.StateCompleted || second.State != lifecycle.StateCompleted {
		t.Fatalf("unexpected states %s / %s", first.State, second.State)
	}
	if s1.calls != 1 {
		t.Fatalf("expected a single execution, got %d", s1.calls)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to lifecycle.State
		ok       bool
	}{
		{lifecycle.StateCreated, lifecycle.StateConfigured, true},
		{lifecycle.StateCreated, lifecycle.StateImported, false},
		{lifecycle.StateConfigured, lifecycle.StateFailed, true},
		{lifecycle.StateImported, lifecycle.StateCompleted, false},
		{lifecycle.StateProcessing, lifecycle.StateCompleted, true},
		{lifecycle.StateCompleted, lifecycle.StateFailed, false},
		{lifecycle.StateFailed, lifecycle.StateConfigured, false},
	}
	for _, tt := range tests {
		if got := lifecycle.CanTransition(tt.from, tt.to); got != tt.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.ok, got)
		}
	}
}

func TestBindStagesRejectsUnknownKind(t *testing.T) {
	def := definition()
	def.Stages[1].Compute = "wavelet"
	if _, err := lifecycle.BindStages(def, stage.Builtins()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	def.Stages[1].Compute = "detrend"
	got, err := lifecycle.BindStages(def, stage.Builtins())
	if err != nil || len(got) != 3 {
		t.Fatalf("expected three bindings, got %d (%v)", len(got), err)
	}
}
