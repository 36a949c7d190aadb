package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBatch()
	c.normalizeStages()
	c.normalizeLogging()
	if c.Settings == nil {
		c.Settings = map[string]any{}
	}
	return nil
}

func (c *Config) applyEnv() {
	if value, ok := os.LookupEnv("RECFLOW_OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("RECFLOW_WORKSPACE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.WorkspaceDir = strings.TrimSpace(value)
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		c.Paths.WorkspaceDir = defaultWorkspaceDir
	}
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBatch() {
	if c.Batch.HardCap <= 0 {
		c.Batch.HardCap = defaultBatchHardCap
	}
	if c.Batch.Parallel <= 0 {
		c.Batch.Parallel = defaultBatchParallel
	}
	c.Batch.Pattern = NormalizePattern(c.Batch.Pattern)
	if c.Batch.Pattern == "" {
		c.Batch.Pattern = defaultBatchPattern
	}
}

func (c *Config) normalizeStages() {
	if len(c.Stages) == 0 {
		c.Stages = defaultStageMap()
		return
	}
	normalized := make(map[string]StageToggle, len(c.Stages))
	for name, toggle := range c.Stages {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		toggle.Suffix = strings.TrimSpace(toggle.Suffix)
		normalized[name] = toggle
	}
	c.Stages = normalized
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// NormalizePattern turns bare extensions into glob patterns, so ".raw" and
// "raw" both become "*.raw". Patterns that already contain a wildcard are
// returned unchanged.
func NormalizePattern(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.ContainsAny(pattern, "*?[") {
		return pattern
	}
	if strings.HasPrefix(pattern, ".") {
		return "*" + pattern
	}
	if !strings.Contains(pattern, ".") {
		return "*." + pattern
	}
	return pattern
}
