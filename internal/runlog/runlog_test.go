package runlog_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"recflow/internal/runlog"
)

func TestTailLastLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/out/logs/run.log", []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	result, err := runlog.Tail(context.Background(), "/out/logs/run.log", runlog.TailOptions{Offset: -1, Limit: 2, FS: fs})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if strings.Join(result.Lines, ",") != "b,c" {
		t.Fatalf("unexpected lines %#v", result.Lines)
	}
	if result.Offset != 6 {
		t.Fatalf("expected offset 6, got %d", result.Offset)
	}
}

func TestTailFromOffsetKeepsPartialLine(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/run.log", []byte("one\ntwo\npart"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	result, err := runlog.Tail(context.Background(), "/run.log", runlog.TailOptions{Offset: 4, FS: fs})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if strings.Join(result.Lines, ",") != "two" || result.Offset != 8 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := runlog.Tail(context.Background(), "/nope.log", runlog.TailOptions{Offset: -1, Limit: 5, FS: afero.NewMemMapFs()})
	if err != nil || len(result.Lines) != 0 {
		t.Fatalf("expected empty result, got %+v %v", result, err)
	}
}

func TestTailFollowWaitsForAppend(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewBasePathFs(afero.NewOsFs(), dir)
	if err := afero.WriteFile(fs, "/run.log", []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	done := make(chan runlog.TailResult, 1)
	go func() {
		res, err := runlog.Tail(context.Background(), "/run.log", runlog.TailOptions{Offset: 6, Follow: true, Wait: 5 * time.Second, FS: fs})
		if err != nil {
			t.Errorf("follow: %v", err)
		}
		done <- res
	}()

	time.Sleep(100 * time.Millisecond)
	f, err := fs.OpenFile("/run.log", os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = f.Close()

	select {
	case res := <-done:
		if strings.Join(res.Lines, ",") != "later" {
			t.Fatalf("unexpected follow lines %#v", res.Lines)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("follow did not return")
	}
}

func TestFollowHonorsCancel(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/run.log", []byte("x\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runlog.Tail(ctx, "/run.log", runlog.TailOptions{Offset: 2, Follow: true, Wait: time.Minute, FS: fs})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestFormat(t *testing.T) {
	line := `{"ts":"2026-05-01T10:00:00.123Z","level":"info","msg":"stage completed","event_type":"stage_complete","stage":"post_epochs","run_id":"r1","artifact":"/out/a.json"}`
	got := runlog.Format(line)
	for _, want := range []string{"INFO", "[post_epochs]", "stage completed (stage_complete)", "artifact=/out/a.json"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
	if strings.Contains(got, "run_id") {
		t.Fatalf("run_id should not be repeated per line: %q", got)
	}
	if runlog.Format("plain text") != "plain text" {
		t.Fatal("non-JSON lines should pass through")
	}
}
