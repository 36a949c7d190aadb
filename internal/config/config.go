package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir    string `toml:"output_dir"`
	WorkspaceDir string `toml:"workspace_dir"`
	LogDir       string `toml:"log_dir"`
}

// Batch contains configuration for multi-input processing.
type Batch struct {
	// Parallel is the default number of concurrent runs.
	Parallel int `toml:"parallel"`
	// HardCap bounds Parallel; each in-flight run holds a full recording in memory.
	HardCap    int    `toml:"hard_cap"`
	Pattern    string `toml:"pattern"`
	Recursive  bool   `toml:"recursive"`
	MinFreeGiB int    `toml:"min_free_gib"`
}

// Quality contains thresholds for advisory run flagging.
type Quality struct {
	MinDurationSeconds float64 `toml:"min_duration_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// StageToggle is the default per-stage entry merged into every run config.
type StageToggle struct {
	Enabled bool   `toml:"enabled"`
	Suffix  string `toml:"suffix"`
}

// Config encapsulates all configuration values for recflow.
//
// Configuration sections by subsystem:
//   - Paths: output root, workspace task directory, logs and run history
//   - Batch: concurrency, input pattern and recursion defaults
//   - Quality: import heuristics that flag runs for review
//   - Logging: log format and level
//   - Stages: default stage map (enabled flag and artifact suffix per stage)
//   - Settings: base task settings merged under every run
type Config struct {
	Paths    Paths                  `toml:"paths"`
	Batch    Batch                  `toml:"batch"`
	Quality  Quality                `toml:"quality"`
	Logging  Logging                `toml:"logging"`
	Stages   map[string]StageToggle `toml:"stages"`
	Settings map[string]any         `toml:"settings"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/recflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		// The stage map from a file replaces the defaults rather than merging.
		cfg.Stages = nil
		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("recflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the CLI needs before any run.
// The output root itself is prepared per task by the orchestrator.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunDBPath returns the location of the run history database.
func (c *Config) RunDBPath() string {
	return filepath.Join(c.Paths.LogDir, "runs.db")
}

// LockPath returns the lock file guarding batch processing for this log directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "recflow.lock")
}

// BaseRunConfig renders the configured default stage map and settings in the
// generic mapping shape run configs are validated from.
func (c *Config) BaseRunConfig() map[string]any {
	stages := make(map[string]any, len(c.Stages))
	for name, toggle := range c.Stages {
		stages[name] = map[string]any{
			"enabled": toggle.Enabled,
			"suffix":  toggle.Suffix,
		}
	}
	settings := make(map[string]any, len(c.Settings))
	for key, value := range c.Settings {
		settings[key] = value
	}
	return map[string]any{
		"stages":   stages,
		"settings": settings,
	}
}

// EffectiveParallel clamps a requested concurrency into [1, HardCap]. Values
// below one run sequentially; callers wanting the configured default pass
// Batch.Parallel.
func (c *Config) EffectiveParallel(requested int) int {
	limit := max(1, requested)
	if c.Batch.HardCap > 0 && limit > c.Batch.HardCap {
		limit = c.Batch.HardCap
	}
	return limit
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
