package workflow

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"

	"recflow/internal/logging"
)

var backupNamePattern = regexp.MustCompile(`^(.+)_backup_(\d{8}_\d{6})(?:_\d+)?$`)

// Backup is an output root that was moved aside by PrepareRoot.
type Backup struct {
	Task    string
	Path    string
	Created time.Time
	Size    int64
}

// PruneResult reports a PruneBackups pass.
type PruneResult struct {
	Removed []Backup
	Errors  []PruneError
}

// PruneError pairs a backup path with its removal error.
type PruneError struct {
	Path  string
	Error error
}

// ListBackups returns the backup directories directly under outputDir,
// oldest first. The creation time comes from the directory name; the
// modification time is used when the name carries no valid timestamp.
func ListBackups(fsys afero.Fs, outputDir string) ([]Backup, error) {
	outputDir = strings.TrimSpace(outputDir)
	if outputDir == "" {
		return nil, nil
	}
	entries, err := afero.ReadDir(fsys, outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var backups []Backup
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		match := backupNamePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		created, err := time.ParseInLocation(backupTimeLayout, match[2], time.Local)
		if err != nil {
			created = entry.ModTime()
		}
		path := filepath.Join(outputDir, entry.Name())
		size, _ := dirSize(fsys, path)
		backups = append(backups, Backup{
			Task:    match[1],
			Path:    path,
			Created: created,
			Size:    size,
		})
	}
	slices.SortFunc(backups, func(a, b Backup) int {
		return a.Created.Compare(b.Created)
	})
	return backups, nil
}

// PruneBackups removes backups created before cutoff. With dryRun set it
// only reports what would be removed.
func PruneBackups(ctx context.Context, fsys afero.Fs, outputDir string, cutoff time.Time, dryRun bool, logger *slog.Logger) (PruneResult, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	backups, err := ListBackups(fsys, outputDir)
	if err != nil {
		return PruneResult{}, err
	}

	var result PruneResult
	for _, backup := range backups {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !backup.Created.Before(cutoff) {
			continue
		}
		if dryRun {
			result.Removed = append(result.Removed, backup)
			continue
		}
		if err := fsys.RemoveAll(backup.Path); err != nil {
			result.Errors = append(result.Errors, PruneError{Path: backup.Path, Error: err})
			logging.WarnWithContext(logger, "failed to remove output backup", "backup_prune_failed",
				logging.String("path", backup.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check output_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, backup)
		logger.Info("removed output backup",
			logging.String(logging.FieldEventType, "backup_pruned"),
			logging.String("path", backup.Path),
			logging.String(logging.FieldTask, backup.Task),
			logging.Duration("age", time.Since(backup.Created)),
		)
	}
	return result, nil
}

func dirSize(fsys afero.Fs, path string) (int64, error) {
	var size int64
	err := afero.Walk(fsys, path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
