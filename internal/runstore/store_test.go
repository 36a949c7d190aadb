package runstore_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"recflow/internal/lifecycle"
	"recflow/internal/runstore"
	"recflow/internal/testsupport"
	"recflow/internal/workflow"
)

func outcome(id, task string, status workflow.Status, started time.Time) workflow.RunOutcome {
	o := workflow.RunOutcome{
		RunID:     id,
		BatchID:   "batch-1",
		Task:      task,
		Input:     "/data/" + id + ".csv",
		Status:    status,
		Artifacts: map[string]string{"artifact.post_import": "/out/" + id + "/post_import.json"},
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
	}
	if status == workflow.StatusFailed {
		o.FailedStage = "post_epochs"
		o.ErrorKind = "stage_execution"
		o.ErrorMessage = "post_epochs: compute: boom"
	}
	return o
}

func TestRecordAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunStore(t, cfg)
	ctx := context.Background()

	started := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	o := outcome("r1", "resting", workflow.StatusFailed, started)
	o.Flag = lifecycle.FlagSnapshot{Flagged: true, Reasons: []string{"initial duration (12.0s) less than 60s"}}
	if err := store.Record(ctx, o); err != nil {
		t.Fatalf("Record: %v", err)
	}

	run, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if run == nil {
		t.Fatal("expected recorded run")
	}
	if !run.Failed() || run.FailedStage != "post_epochs" || run.ErrorKind != "stage_execution" {
		t.Fatalf("unexpected run %+v", run)
	}
	if !run.Flagged || len(run.FlagReasons) != 1 {
		t.Fatalf("flag not persisted: %+v", run)
	}
	if run.Artifacts["artifact.post_import"] == "" {
		t.Fatalf("artifacts not persisted: %+v", run.Artifacts)
	}
	if !run.StartedAt.Equal(started) || run.Duration != 1500*time.Millisecond {
		t.Fatalf("timing not persisted: %v %v", run.StartedAt, run.Duration)
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown run, got %+v %v", missing, err)
	}
}

func TestRecordReplacesSameRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunStore(t, cfg)
	ctx := context.Background()

	started := time.Now()
	if err := store.Record(ctx, outcome("r1", "resting", workflow.StatusFailed, started)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, outcome("r1", "resting", workflow.StatusCompleted, started)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	runs, err := store.List(ctx, runstore.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 || runs[0].Failed() {
		t.Fatalf("expected a single completed run, got %+v", runs)
	}
}

func TestRecordRequiresRunID(t *testing.T) {
	store := testsupport.MustOpenRunStore(t, testsupport.NewConfig(t))
	if err := store.Record(context.Background(), workflow.RunOutcome{Task: "resting"}); err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestListFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunStore(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	records := []workflow.RunOutcome{
		outcome("a", "resting", workflow.StatusCompleted, base),
		outcome("b", "resting", workflow.StatusFailed, base.Add(time.Second)),
		outcome("c", "chirp", workflow.StatusCompleted, base.Add(2*time.Second)),
		outcome("d", "resting", workflow.StatusCompleted, base.Add(500*time.Millisecond)),
	}
	for _, o := range records {
		if err := store.Record(ctx, o); err != nil {
			t.Fatalf("Record %s: %v", o.RunID, err)
		}
	}

	all, err := store.List(ctx, runstore.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := ids(all); got != "c,b,d,a" {
		t.Fatalf("expected newest first, got %s", got)
	}

	resting, err := store.List(ctx, runstore.ListOptions{Task: "RESTING", Limit: 2})
	if err != nil {
		t.Fatalf("List task: %v", err)
	}
	if got := ids(resting); got != "b,d" {
		t.Fatalf("unexpected task filter result %s", got)
	}

	failed, err := store.List(ctx, runstore.ListOptions{FailedOnly: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got := ids(failed); got != "b" {
		t.Fatalf("unexpected failed filter result %s", got)
	}

	stats, err := store.Stats(ctx, "resting")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 || stats.Completed != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestPrune(t *testing.T) {
	store := testsupport.MustOpenRunStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now()
	for i, started := range []time.Time{now.Add(-72 * time.Hour), now.Add(-48 * time.Hour), now} {
		if err := store.Record(ctx, outcome(string(rune('a'+i)), "resting", workflow.StatusCompleted, started)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	removed, err := store.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
}

func TestConcurrentRecords(t *testing.T) {
	store := testsupport.MustOpenRunStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "run-" + string(rune('a'+i))
			errs <- store.Record(ctx, outcome(id, "resting", workflow.StatusCompleted, time.Now()))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Record: %v", err)
		}
	}
	stats, err := store.Stats(ctx, "")
	if err != nil || stats.Total != 16 {
		t.Fatalf("expected 16 runs, got %+v (%v)", stats, err)
	}
}

func TestSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := runstore.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", filepath.Clean(cfg.RunDBPath()))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	_ = db.Close()

	if _, err := runstore.Open(cfg); !errors.Is(err, runstore.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func ids(runs []*runstore.Run) string {
	out := ""
	for i, run := range runs {
		if i > 0 {
			out += ","
		}
		out += run.RunID
	}
	return out
}

func TestFindByPrefix(t *testing.T) {
	store := testsupport.MustOpenRunStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for _, id := range []string{"abc-1", "abd-2", "a_x-3"} {
		if err := store.Record(ctx, outcome(id, "resting", workflow.StatusCompleted, time.Now())); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	runs, err := store.FindByPrefix(ctx, "abc")
	if err != nil || len(runs) != 1 || runs[0].RunID != "abc-1" {
		t.Fatalf("unexpected prefix match %+v %v", runs, err)
	}
	runs, err = store.FindByPrefix(ctx, "ab")
	if err != nil || len(runs) != 2 {
		t.Fatalf("expected two matches, got %+v %v", runs, err)
	}
	runs, err = store.FindByPrefix(ctx, "a_")
	if err != nil || len(runs) != 1 || runs[0].RunID != "a_x-3" {
		t.Fatalf("underscore must match literally, got %+v %v", runs, err)
	}
	if _, err := store.FindByPrefix(ctx, " "); err == nil {
		t.Fatal("expected error for empty prefix")
	}
}
