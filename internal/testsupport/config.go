package testsupport

import (
	"path/filepath"
	"testing"

	"recflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.WorkspaceDir = filepath.Join(base, "tasks")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Batch.MinFreeGiB = 0
	cfgVal.Quality.MinDurationSeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithParallel sets the default batch concurrency.
func WithParallel(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.Parallel = n
	}
}

// WithStage adds or replaces a default stage toggle.
func WithStage(name string, enabled bool, suffix string) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Stages == nil {
			b.cfg.Stages = make(map[string]config.StageToggle)
		}
		b.cfg.Stages[name] = config.StageToggle{Enabled: enabled, Suffix: suffix}
	}
}

// WithMinDuration sets the import duration floor.
func WithMinDuration(seconds float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Quality.MinDurationSeconds = seconds
	}
}

// WithSetting adds a base task setting.
func WithSetting(key string, value any) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Settings == nil {
			b.cfg.Settings = make(map[string]any)
		}
		b.cfg.Settings[key] = value
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
