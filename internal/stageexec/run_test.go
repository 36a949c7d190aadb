package stageexec_test

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"recflow/internal/artifact"
	"recflow/internal/record"
	"recflow/internal/runconfig"
	"recflow/internal/services"
	"recflow/internal/stage"
	"recflow/internal/stageexec"
	"recflow/internal/testsupport"
)

type countingComputation struct {
	calls int
	err   error
	panic bool
}

func (c *countingComputation) Compute(_ context.Context, rec *record.Record, s stage.Settings) (*record.Record, error) {
	c.calls++
	if c.panic {
		panic("boom")
	}
	if c.err != nil {
		return nil, c.err
	}
	out := rec.Clone()
	label, _ := s.String("label", "counted")
	out.AddHistory(label)
	return out, nil
}

func newRunConfig(stages map[string]runconfig.StageToggle) *runconfig.RunConfig {
	return &runconfig.RunConfig{
		RunID:    "run-1",
		Input:    "/data/s01.csv",
		Task:     "resting",
		Settings: map[string]any{"label": "from-task"},
		Stages:   stages,
	}
}

func newRecord() *record.Record {
	return &record.Record{SampleRate: 1, Channels: []string{"a"}, Data: [][]float64{{1, 2}}}
}

func newStore(t *testing.T) *artifact.Store {
	t.Helper()
	store, err := artifact.NewStore(afero.NewMemMapFs(), "/stages")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestRunSkipsDisabledAndUnconfiguredStages(t *testing.T) {
	store := newStore(t)
	logger, capture := testsupport.NewCaptureLogger()
	cfg := newRunConfig(map[string]runconfig.StageToggle{
		"post_clean_raw": {Enabled: false, Suffix: "_clean"},
	})
	for _, name := range []string{"post_clean_raw", "post_epochs"} {
		comp := &countingComputation{}
		in := newRecord()
		res, err := stageexec.Run(context.Background(), stageexec.Options{
			Logger:      logger,
			Store:       store,
			StageName:   name,
			Computation: comp,
			Config:      cfg,
			Record:      in,
		})
		if err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		if !res.Skipped || res.Record != in {
			t.Fatalf("%s: expected skip passing the record through", name)
		}
		if comp.calls != 0 {
			t.Fatalf("%s: computation should not run", name)
		}
		if store.Exists(cfg.RunID, name) {
			t.Fatalf("%s: no artifact expected", name)
		}
	}
	if got := len(capture.Events("stage_skipped")); got != 2 {
		t.Fatalf("expected 2 stage_skipped events, got %d", got)
	}
	if len(capture.Events("stage_start")) != 0 {
		t.Fatal("skipped stages must not log stage_start")
	}
}

func TestRunComputesAndPersists(t *testing.T) {
	store := newStore(t)
	logger, capture := testsupport.NewCaptureLogger()
	cfg := newRunConfig(map[string]runconfig.StageToggle{
		"post_clean_raw": {Enabled: true, Suffix: "_clean"},
	})
	comp := &countingComputation{}
	res, err := stageexec.Run(context.Background(), stageexec.Options{
		Logger:      logger,
		Store:       store,
		StageName:   "post_clean_raw",
		Computation: comp,
		Params:      map[string]any{"label": "from-params"},
		Config:      cfg,
		Record:      newRecord(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if comp.calls != 1 || res.Skipped {
		t.Fatalf("expected one computation, got %d (skipped=%v)", comp.calls, res.Skipped)
	}
	if got := res.Record.History; len(got) != 1 || got[0] != "from-params" {
		t.Fatalf("expected stage params to win over task settings, got %v", got)
	}
	var saved record.Record
	if err := store.Load("run-1", "post_clean_raw", "_clean", &saved); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Derived()[stageexec.DerivedArtifactKey("post_clean_raw")] != res.ArtifactPath {
		t.Fatalf("expected derived artifact path, got %v", cfg.Derived())
	}
	starts := capture.Events("stage_start")
	if len(starts) != 1 || starts[0].Attrs["stage"] != "post_clean_raw" {
		t.Fatalf("expected stage_start with stage field, got %+v", starts)
	}
	if len(capture.Events("stage_complete")) != 1 {
		t.Fatal("expected stage_complete event")
	}
}

func TestRunReportsFailures(t *testing.T) {
	tests := []struct {
		name string
		comp *countingComputation
	}{
		{name: "error", comp: &countingComputation{err: errors.New("filter diverged")}},
		{name: "panic", comp: &countingComputation{panic: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			logger, capture := testsupport.NewCaptureLogger()
			cfg := newRunConfig(map[string]runconfig.StageToggle{"post_comp": {Enabled: true}})
			_, err := stageexec.Run(context.Background(), stageexec.Options{
				Logger:      logger,
				Store:       store,
				StageName:   "post_comp",
				Computation: tt.comp,
				Config:      cfg,
				Record:      newRecord(),
			})
			if !errors.Is(err, services.ErrStageExecution) {
				t.Fatalf("expected stage execution error, got %v", err)
			}
			if store.Exists("run-1", "post_comp") {
				t.Fatal("failed stage must not persist an artifact")
			}
			failures := capture.Events("stage_failure")
			if len(failures) != 1 || failures[0].Attrs["error_kind"] != "stage_execution" {
				t.Fatalf("expected one stage_failure event, got %+v", failures)
			}
		})
	}
}

func TestRunPersistFailure(t *testing.T) {
	store, err := artifact.NewStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/stages")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	cfg := newRunConfig(map[string]runconfig.StageToggle{"post_comp": {Enabled: true}})
	_, err = stageexec.Run(context.Background(), stageexec.Options{
		Store:       store,
		StageName:   "post_comp",
		Computation: &countingComputation{},
		Config:      cfg,
		Record:      newRecord(),
	})
	if !errors.Is(err, services.ErrArtifactPersist) {
		t.Fatalf("expected artifact persist error, got %v", err)
	}
}
