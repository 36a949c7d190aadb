package workflow

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"recflow/internal/config"
	"recflow/internal/services"
)

// DiscoverInputs lists files under dir whose base name matches pattern. Bare
// extensions such as ".raw" are treated as "*.raw". Hidden files and
// directories are ignored. Results are sorted.
func DiscoverInputs(fsys afero.Fs, dir, pattern string, recursive bool) ([]string, error) {
	pattern = config.NormalizePattern(pattern)
	if pattern == "" {
		return nil, services.Wrap(services.ErrMisuse, "", "discover inputs", "file pattern is empty", nil)
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, services.Wrap(services.ErrMisuse, "", "discover inputs", fmt.Sprintf("invalid pattern %q", pattern), err)
	}
	info, err := fsys.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrDiscovery, "", "discover inputs", dir+" does not exist", nil)
		}
		return nil, services.Wrap(services.ErrDiscovery, "", "discover inputs", dir, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrDiscovery, "", "discover inputs", dir+" is not a directory", nil)
	}

	var found []string
	match := func(path string, entry os.FileInfo) {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			return
		}
		if ok, _ := filepath.Match(pattern, name); ok {
			found = append(found, path)
		}
	}

	if !recursive {
		entries, err := afero.ReadDir(fsys, dir)
		if err != nil {
			return nil, services.Wrap(services.ErrDiscovery, "", "discover inputs", dir, err)
		}
		for _, entry := range entries {
			match(filepath.Join(dir, entry.Name()), entry)
		}
	} else {
		err := afero.Walk(fsys, dir, func(path string, entry os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() && path != dir && strings.HasPrefix(entry.Name(), ".") {
				return fs.SkipDir
			}
			match(path, entry)
			return nil
		})
		if err != nil {
			return nil, services.Wrap(services.ErrDiscovery, "", "discover inputs", dir, err)
		}
	}
	slices.Sort(found)
	return found, nil
}

// mergeInputs appends discovered to explicit, dropping blanks and duplicates
// while keeping first-seen order.
func mergeInputs(explicit, discovered []string) []string {
	seen := make(map[string]struct{}, len(explicit)+len(discovered))
	var out []string
	for _, list := range [][]string{explicit, discovered} {
		for _, input := range list {
			input = strings.TrimSpace(input)
			if input == "" {
				continue
			}
			key := filepath.Clean(input)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, input)
		}
	}
	return out
}
