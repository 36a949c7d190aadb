package workflow_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"recflow/internal/testsupport"
	"recflow/internal/workflow"
)

func TestListAndPruneBackups(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, path := range []string{
		"/out/resting/stages/r1/post_import.json",
		"/out/resting_backup_20260101_120000/stages/r0/post_import.json",
		"/out/resting_backup_20260101_120000_1/final/r0/s01.json",
		"/out/chirp_backup_20260301_080000/logs/r9.log",
		"/out/notes_backup_later/readme.txt",
	} {
		if err := afero.WriteFile(fs, path, []byte("0123456789"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	backups, err := workflow.ListBackups(fs, "/out")
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("expected 3 backups, got %+v", backups)
	}
	if backups[0].Task != "resting" || backups[2].Task != "chirp" {
		t.Fatalf("expected oldest first, got %+v", backups)
	}
	if backups[0].Size != 10 {
		t.Fatalf("expected size 10, got %d", backups[0].Size)
	}

	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.Local)
	dry, err := workflow.PruneBackups(context.Background(), fs, "/out", cutoff, true, nil)
	if err != nil {
		t.Fatalf("PruneBackups dry run: %v", err)
	}
	if len(dry.Removed) != 2 {
		t.Fatalf("expected two candidates, got %+v", dry.Removed)
	}
	if ok, _ := afero.DirExists(fs, "/out/resting_backup_20260101_120000"); !ok {
		t.Fatal("dry run must not remove anything")
	}

	logger, capture := testsupport.NewCaptureLogger()
	res, err := workflow.PruneBackups(context.Background(), fs, "/out", cutoff, false, logger)
	if err != nil {
		t.Fatalf("PruneBackups: %v", err)
	}
	if len(res.Removed) != 2 || len(res.Errors) != 0 {
		t.Fatalf("unexpected prune result %+v", res)
	}
	for _, gone := range []string{"/out/resting_backup_20260101_120000", "/out/resting_backup_20260101_120000_1"} {
		if ok, _ := afero.DirExists(fs, gone); ok {
			t.Fatalf("%s should be removed", gone)
		}
	}
	for _, kept := range []string{"/out/resting", "/out/chirp_backup_20260301_080000", "/out/notes_backup_later"} {
		if ok, _ := afero.DirExists(fs, kept); !ok {
			t.Fatalf("%s should be kept", kept)
		}
	}
	if len(capture.Events("backup_pruned")) != 2 {
		t.Fatal("expected backup_pruned events")
	}
}

func TestListBackupsMissingDir(t *testing.T) {
	backups, err := workflow.ListBackups(afero.NewMemMapFs(), filepath.Join("/", "missing"))
	if err != nil || len(backups) != 0 {
		t.Fatalf("expected no backups, got %+v %v", backups, err)
	}
}

func TestBackupsFromOrchestratorAreListed(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 15, 9, 26, 0, time.Local)
	f := newFixture(t, workflow.WithClock(func() time.Time { return fixed }))
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.OutputDir, "resting", "old.txt"), "x")
	if _, err := f.orch.PrepareRoot("resting"); err != nil {
		t.Fatalf("PrepareRoot: %v", err)
	}
	backups, err := workflow.ListBackups(afero.NewOsFs(), f.cfg.Paths.OutputDir)
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 1 || !backups[0].Created.Equal(fixed) || backups[0].Task != "resting" {
		t.Fatalf("unexpected backups %+v", backups)
	}
}
