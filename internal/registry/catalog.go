package registry

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"recflow/internal/taskdef"
)

//go:embed builtin/*.toml
var builtinFS embed.FS

// Candidate is one loadable definition source. Load returns the definition,
// or a skip reason, or an error.
type Candidate struct {
	Source string
	Load   func() (*taskdef.Definition, string, error)
}

// Catalog enumerates definition candidates from one origin.
type Catalog interface {
	Origin() taskdef.Origin
	// Root identifies the catalog in discovery reports.
	Root() string
	Candidates() ([]Candidate, error)
}

// BuiltinCatalog serves the definitions compiled into the binary.
type BuiltinCatalog struct {
	fsys fs.FS
	dir  string
}

// NewBuiltinCatalog returns the embedded catalog.
func NewBuiltinCatalog() *BuiltinCatalog {
	return &BuiltinCatalog{fsys: builtinFS, dir: "builtin"}
}

// NewFSCatalog returns a built-in style catalog over an arbitrary fs.FS.
func NewFSCatalog(fsys fs.FS, dir string) *BuiltinCatalog {
	return &BuiltinCatalog{fsys: fsys, dir: dir}
}

func (c *BuiltinCatalog) Origin() taskdef.Origin { return taskdef.OriginBuiltin }

func (c *BuiltinCatalog) Root() string { return "builtin:" + c.dir }

func (c *BuiltinCatalog) Candidates() ([]Candidate, error) {
	entries, err := fs.ReadDir(c.fsys, c.dir)
	if err != nil {
		return nil, fmt.Errorf("read built-in catalog: %w", err)
	}
	var out []Candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		format, err := taskdef.FormatFromPath(name)
		if err != nil {
			continue
		}
		file := path.Join(c.dir, name)
		source := "builtin:" + name
		out = append(out, Candidate{
			Source: source,
			Load: func() (*taskdef.Definition, string, error) {
				data, err := fs.ReadFile(c.fsys, file)
				if err != nil {
					return nil, "", err
				}
				return taskdef.Parse(data, format, taskdef.OriginBuiltin, source)
			},
		})
	}
	sortCandidates(out)
	return out, nil
}

// DirCatalog serves definition files from a workspace directory.
type DirCatalog struct {
	fs  afero.Fs
	dir string
}

// NewDirCatalog returns a catalog over dir. A nil fs uses the OS filesystem.
func NewDirCatalog(fsys afero.Fs, dir string) *DirCatalog {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &DirCatalog{fs: fsys, dir: dir}
}

func (c *DirCatalog) Origin() taskdef.Origin { return taskdef.OriginWorkspace }

func (c *DirCatalog) Root() string { return c.dir }

// Candidates lists the definition files directly inside the directory. A
// missing or unset directory has no candidates.
func (c *DirCatalog) Candidates() ([]Candidate, error) {
	if strings.TrimSpace(c.dir) == "" {
		return nil, nil
	}
	entries, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workspace catalog: %w", err)
	}
	var out []Candidate
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		format, err := taskdef.FormatFromPath(name)
		if err != nil {
			continue
		}
		file := filepath.Join(c.dir, name)
		out = append(out, Candidate{
			Source: file,
			Load: func() (*taskdef.Definition, string, error) {
				data, err := afero.ReadFile(c.fs, file)
				if err != nil {
					return nil, "", err
				}
				return taskdef.Parse(data, format, taskdef.OriginWorkspace, file)
			},
		})
	}
	sortCandidates(out)
	return out, nil
}

func sortCandidates(c []Candidate) {
	sort.Slice(c, func(i, j int) bool { return c[i].Source < c[j].Source })
}
