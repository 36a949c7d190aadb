package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"recflow/internal/logging"
	"recflow/internal/services"
)

// Output root subdirectories.
const (
	StagesDir = "stages"
	LogsDir   = "logs"
	FinalDir  = "final"
)

const backupTimeLayout = "20060102_150405"

// OutputRoot returns the output root for a task.
func (o *Orchestrator) OutputRoot(task string) string {
	return filepath.Join(o.cfg.Paths.OutputDir, task)
}

// BackupPath returns where a pre-existing root was moved by this
// orchestrator, or "" when no backup happened.
func (o *Orchestrator) BackupPath(task string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.backups[o.OutputRoot(task)]
}

// PrepareRoot makes the task's output root ready for writing. On the first
// call for a root that already exists, the existing root is renamed aside.
// Later calls never back up again.
func (o *Orchestrator) PrepareRoot(task string) (string, error) {
	root, _, err := o.prepareRoot(task)
	return root, err
}

// prepareRoot is PrepareRoot that also reports the backup made by this call,
// or "" when the root was not moved now.
func (o *Orchestrator) prepareRoot(task string) (root, backup string, err error) {
	root = o.OutputRoot(task)

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, seen := o.backups[root]; !seen {
		backup, err = o.backupExisting(root)
		if err != nil {
			return root, "", services.Wrap(services.ErrArtifactPersist, "", "prepare output root", "back up "+root, err)
		}
		o.backups[root] = backup
		if backup != "" {
			o.logger.Info("existing output root moved aside",
				logging.String(logging.FieldEventType, "output_root_backup"),
				logging.String(logging.FieldTask, task),
				logging.String("root", root),
				logging.String("backup", backup),
			)
		}
	}
	if o.ready[root] {
		return root, backup, nil
	}
	for _, sub := range []string{StagesDir, LogsDir, FinalDir} {
		if err := o.fs.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return root, backup, services.Wrap(services.ErrArtifactPersist, "", "prepare output root", "create "+sub, err)
		}
	}
	if err := o.checkWritable(root); err != nil {
		return root, backup, services.Wrap(services.ErrArtifactPersist, "", "prepare output root", root+" is not writable", err)
	}
	o.ready[root] = true
	return root, backup, nil
}

func (o *Orchestrator) backupExisting(root string) (string, error) {
	info, err := o.fs.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s exists and is not a directory", root)
	}
	base := fmt.Sprintf("%s_backup_%s", root, o.now().Format(backupTimeLayout))
	candidate := base
	for n := 1; ; n++ {
		exists, err := afero.Exists(o.fs, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
	if err := o.fs.Rename(root, candidate); err != nil {
		return "", err
	}
	return candidate, nil
}

func (o *Orchestrator) checkWritable(root string) error {
	probe, err := afero.TempFile(o.fs, root, ".write-check-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return err
	}
	return o.fs.Remove(name)
}
