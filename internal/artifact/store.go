package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"recflow/internal/services"
)

const extension = ".json"

// Store writes stage artifacts beneath a root directory.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore returns a store rooted at root on fs. A nil fs uses the OS filesystem.
func NewStore(fs afero.Fs, root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, services.Wrap(services.ErrMisuse, "artifact", "new store", "artifact root is empty", nil)
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, root: filepath.Clean(root)}, nil
}

// Root returns the directory artifacts are written beneath.
func (s *Store) Root() string {
	return s.root
}

// Location returns where the artifact for (runID, stage) is stored.
func (s *Store) Location(runID, stage, suffix string) string {
	return filepath.Join(s.root, runID, stage+suffix+extension)
}

// Put serializes payload and stores it under (runID, stage). The returned
// path is the artifact's final location.
func (s *Store) Put(ctx context.Context, runID, stage string, payload any, suffix string) (string, error) {
	if err := checkKey(runID, stage); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", services.Wrap(services.ErrArtifactPersist, stage, "put artifact", "context cancelled", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrArtifactPersist, stage, "encode artifact", "payload is not serializable", err)
	}
	dir := filepath.Join(s.root, runID)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrArtifactPersist, stage, "create run directory", dir, err)
	}
	path := s.Location(runID, stage, suffix)
	if err := s.writeAtomic(dir, path, data); err != nil {
		return "", services.Wrap(services.ErrArtifactPersist, stage, "write artifact", path, err)
	}
	if err := s.writeAtomic(dir, s.keyPath(runID, stage), []byte(suffix)); err != nil {
		return "", services.Wrap(services.ErrArtifactPersist, stage, "write artifact key", path, err)
	}
	return path, nil
}

// keyPath is the marker recording which suffix the (runID, stage) artifact
// was last written with.
func (s *Store) keyPath(runID, stage string) string {
	return filepath.Join(s.root, runID, "."+stage+".key")
}

// Exists reports whether an artifact was stored for exactly (runID, stage),
// whatever suffix it was written with.
func (s *Store) Exists(runID, stage string) bool {
	if checkKey(runID, stage) != nil {
		return false
	}
	suffix, err := afero.ReadFile(s.fs, s.keyPath(runID, stage))
	if err != nil {
		return false
	}
	ok, err := afero.Exists(s.fs, s.Location(runID, stage, string(suffix)))
	return err == nil && ok
}

// Load decodes the artifact for (runID, stage, suffix) into v.
func (s *Store) Load(runID, stage, suffix string, v any) error {
	if err := checkKey(runID, stage); err != nil {
		return err
	}
	path := s.Location(runID, stage, suffix)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, stage, "load artifact", path, err)
		}
		return services.Wrap(services.ErrArtifactPersist, stage, "load artifact", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return services.Wrap(services.ErrArtifactPersist, stage, "decode artifact", path, err)
	}
	return nil
}

func (s *Store) writeAtomic(dir, path string, data []byte) error {
	tmp, err := afero.TempFile(s.fs, dir, ".artifact-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func checkKey(runID, stage string) error {
	if strings.TrimSpace(runID) == "" {
		return services.Wrap(services.ErrArtifactPersist, stage, "artifact key", "run id is empty", nil)
	}
	if strings.TrimSpace(stage) == "" {
		return services.Wrap(services.ErrArtifactPersist, "", "artifact key", "stage name is empty", nil)
	}
	if strings.ContainsAny(runID+stage, `/\`) {
		return services.Wrap(services.ErrArtifactPersist, stage, "artifact key", "run id and stage must not contain path separators", nil)
	}
	return nil
}
